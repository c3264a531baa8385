package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFallbackPlan_ForcesHighRiskEscalation(t *testing.T) {
	plan := FallbackPlan("tool-use loop exhausted", []string{"docker restart app"})

	assert.Equal(t, RiskHigh, plan.Risk)
	assert.Equal(t, []string{"docker restart app"}, plan.Commands)
	assert.Equal(t, "tool-use loop exhausted", plan.Reasoning)
	assert.Equal(t, "manual intervention required", plan.ExpectedOutcome)
}
