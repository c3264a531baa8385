package models

// Plan is the LLM agent's final structured output for one alert (§4.10):
// a root-cause analysis, an ordered command list, and a self-assessed risk
// level. Optional fields are zero-valued when the model omits them.
type Plan struct {
	Analysis         string
	Commands         []string
	Risk             RiskLevel
	ExpectedOutcome  string
	Reasoning        string
	EstimatedDuration string

	Confidence              float64
	TargetHost              string
	InstanceLabelMisleading bool
	InvestigationSteps      []string
}

// FallbackPlan is returned when the agent's tool-use loop exhausts its
// iteration cap, the LLM API call fails, or the model stops for an
// unexpected reason: a HIGH-risk
// placeholder that forces escalation rather than acting on unparsed intent.
func FallbackPlan(reason string, executedCommands []string) Plan {
	return Plan{
		Analysis:          "analysis incomplete",
		Commands:          executedCommands,
		Risk:              RiskHigh,
		ExpectedOutcome:   "manual intervention required",
		Reasoning:         reason,
		EstimatedDuration: "unknown",
	}
}
