package llmagent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/homelab/warden/pkg/models"
)

// jsonObjectPattern finds the first top-level-looking {...} span in the
// model's closing text, matching original_source/app/claude_agent.py's
// _parse_analysis_from_text regex search.
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// systemPrompt is the fixed instruction set handed to the model on every
// analysis. Kept verbatim in spirit with claude_agent.py's prompt, with the
// host/service vocabulary generalized to this engine's naming (§4.2).
const systemPrompt = `You are an AI SRE managing a homelab fleet. You receive alerts from Prometheus/Alertmanager and must diagnose and fix issues.

You have access to tools to gather logs, check service status, restart services, and execute safe commands. Use these tools to:

1. First, gather logs to understand what's happening
2. Check service status if needed
3. Based on your analysis, restart services or execute safe commands to fix the issue

After using tools to diagnose and attempt remediation, provide your final analysis in this exact JSON format:

{
  "analysis": "Brief root cause analysis based on what you found",
  "commands": ["command1", "command2"],
  "risk": "low|medium|high",
  "expected_outcome": "What should happen after executing these commands",
  "reasoning": "Why these commands will resolve the issue",
  "estimated_duration": "30 seconds"
}

SAFETY CONSTRAINTS:
- Only use systemctl restart, docker restart, basic service management
- DO NOT suggest: reboots, data deletion, firewall changes, file edits
- If the issue requires human intervention, set risk="high"
- Commands must be idempotent (safe to run multiple times)

The commands you list should reflect what you've already done via tools, or what should be done if you haven't used tools yet.`

// Agent is the LLM Agent (C10): builds the prompt, drives the tool-use loop
// against an Anthropic model, and parses the final message into a Plan.
// Grounded on original_source/app/claude_agent.py's analyze_alert_with_tools.
type Agent struct {
	client   anthropic.Client
	model    string
	maxTokens int64
	temperature float64
	maxIterations int

	tools    []ToolSpec
	executor *ToolExecutor

	log *slog.Logger
}

// Config bundles the settings New needs, mirroring config.LLMConfig's fields
// so main.go can wire it directly without this package importing pkg/config.
type Config struct {
	APIKey        string
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int
}

// New builds an Agent. haAvailable/workflowAvailable gate the optional tools
// in the catalog (§9 Open Question ii).
func New(cfg Config, executor *ToolExecutor, haAvailable, workflowAvailable bool, log *slog.Logger) *Agent {
	maxIter := cfg.MaxIterations
	if maxIter <= 0 {
		maxIter = 5
	}
	if log == nil {
		log = slog.Default()
	}
	return &Agent{
		client:        anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:         cfg.Model,
		maxTokens:     int64(cfg.MaxTokens),
		temperature:   cfg.Temperature,
		maxIterations: maxIter,
		tools:         BaseCatalog(haAvailable, workflowAvailable),
		executor:      executor,
		log:           log,
	}
}

// sdkTools converts the host-agnostic catalog into the Anthropic SDK's tool
// union params, kept as a method so the conversion lives in one place.
func (a *Agent) sdkTools() []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(a.tools))
	for _, t := range a.tools {
		props, _ := t.Schema["properties"].(map[string]any)
		var required []string
		if req, ok := t.Schema["required"].([]string); ok {
			required = req
		}
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	return out
}

// Analyze runs the tool-use loop for one alert and returns the agent's
// remediation plan. system_context and hints are free-form additions to the
// user prompt (runbook text, pattern hints) built by the caller (§4.14).
func (a *Agent) Analyze(ctx context.Context, alert models.Alert, systemContext, hintsText string) models.Plan {
	alertName := alert.AlertName
	instance := alert.Instance
	severity := alert.Severity
	description := alert.Annotations["description"]
	if description == "" {
		description = "No description provided"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Alert Details\n- **Alert Name:** %s\n- **Instance:** %s\n- **Severity:** %s\n- **Description:** %s\n\n",
		alertName, instance, severity, description)
	if systemContext != "" {
		fmt.Fprintf(&b, "# System Context\n%s\n\n", systemContext)
	}
	if hintsText != "" {
		b.WriteString(hintsText)
		b.WriteString("\n\n")
	}
	b.WriteString("Please diagnose this alert and attempt remediation. Use your tools first, then provide your final analysis.")

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(b.String())),
	}
	tools := a.sdkTools()
	var executedCommands []string

	a.log.InfoContext(ctx, "starting_llm_analysis", "alert_name", alertName, "alert_instance", instance)

	for iteration := 1; iteration <= a.maxIterations; iteration++ {
		resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:       anthropic.Model(a.model),
			MaxTokens:   a.maxTokens,
			System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
			Messages:    messages,
			Tools:       tools,
			Temperature: anthropic.Float(a.temperature),
		})
		if err != nil {
			a.log.ErrorContext(ctx, "llm_api_error", "error", err.Error(), "iteration", iteration)
			return models.FallbackPlan(fmt.Sprintf("LLM API error: %s", err), executedCommands)
		}

		a.log.InfoContext(ctx, "llm_response_received", "stop_reason", string(resp.StopReason), "iteration", iteration)

		switch resp.StopReason {
		case anthropic.StopReasonToolUse:
			var toolResults []anthropic.ContentBlockParamUnion
			for _, block := range resp.Content {
				if block.Type != "tool_use" {
					continue
				}
				tu := block.AsToolUse()
				output, cmd := a.executor.Execute(ctx, tu.Name, json.RawMessage(tu.Input))
				if cmd != "" {
					executedCommands = append(executedCommands, cmd)
				}
				toolResults = append(toolResults, anthropic.NewToolResultBlock(tu.ID, output, false))
			}

			messages = append(messages, resp.ToParam())
			messages = append(messages, anthropic.NewUserMessage(toolResults...))

		case anthropic.StopReasonEndTurn:
			var finalText strings.Builder
			for _, block := range resp.Content {
				if block.Type == "text" {
					finalText.WriteString(block.AsText().Text)
				}
			}

			plan := parseAnalysisFromText(finalText.String())
			if len(plan.Commands) == 0 && len(executedCommands) > 0 {
				plan.Commands = executedCommands
			}

			a.log.InfoContext(ctx, "llm_analysis_completed", "alert_name", alertName, "risk", string(plan.Risk), "command_count", len(plan.Commands))
			return plan

		default:
			a.log.WarnContext(ctx, "unexpected_stop_reason", "stop_reason", string(resp.StopReason))
			return models.FallbackPlan(fmt.Sprintf("unexpected stop reason: %s", resp.StopReason), executedCommands)
		}
	}

	a.log.WarnContext(ctx, "max_iterations_reached", "iterations", a.maxIterations)
	return models.FallbackPlan("analysis incomplete - max iterations reached", executedCommands)
}

// parseAnalysisFromText extracts a Plan from the model's closing message,
// matching claude_agent.py's regex-search-then-json.loads strategy: find the
// first greedy {...} span and decode it, falling back to a HIGH-risk
// placeholder on any failure.
func parseAnalysisFromText(text string) models.Plan {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return fallbackParse(text)
	}

	var data struct {
		Analysis          string   `json:"analysis"`
		Commands          []string `json:"commands"`
		Risk              string   `json:"risk"`
		ExpectedOutcome   string   `json:"expected_outcome"`
		Reasoning         string   `json:"reasoning"`
		EstimatedDuration string   `json:"estimated_duration"`
	}
	if err := json.Unmarshal([]byte(match), &data); err != nil {
		return fallbackParse(text)
	}

	risk := models.RiskLevel(data.Risk)
	switch risk {
	case models.RiskLow, models.RiskMedium, models.RiskHigh:
	default:
		risk = models.RiskHigh
	}

	analysis := data.Analysis
	if analysis == "" {
		analysis = "No analysis provided"
	}
	outcome := data.ExpectedOutcome
	if outcome == "" {
		outcome = "Unknown"
	}
	reasoning := data.Reasoning
	if reasoning == "" {
		reasoning = "No reasoning provided"
	}
	duration := data.EstimatedDuration
	if duration == "" {
		duration = "unknown"
	}

	return models.Plan{
		Analysis:          analysis,
		Commands:          data.Commands,
		Risk:              risk,
		ExpectedOutcome:   outcome,
		Reasoning:         reasoning,
		EstimatedDuration: duration,
	}
}

func fallbackParse(text string) models.Plan {
	snippet := text
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	return models.Plan{
		Analysis:          "Failed to parse analysis from response",
		Commands:          nil,
		Risk:              models.RiskHigh,
		ExpectedOutcome:   "Manual review required",
		Reasoning:         snippet,
		EstimatedDuration: "unknown",
	}
}
