package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemediationAttempt_IsEscalationOnlyMarker(t *testing.T) {
	assert.True(t, RemediationAttempt{Escalated: true}.IsEscalationOnlyMarker())
	assert.False(t, RemediationAttempt{Escalated: true, ExecutedCommands: []string{"docker restart app"}}.IsEscalationOnlyMarker())
	assert.False(t, RemediationAttempt{Escalated: false}.IsEscalationOnlyMarker())
}

func TestRemediationAttempt_Validate(t *testing.T) {
	ok := RemediationAttempt{
		ExecutedCommands: []string{"a", "b"},
		CommandOutputs:   []string{"out1", "out2"},
		ExitCodes:        []int{0, 1},
	}
	require.NoError(t, ok.Validate())

	mismatched := RemediationAttempt{
		ExecutedCommands: []string{"a", "b"},
		CommandOutputs:   []string{"out1"},
		ExitCodes:        []int{0, 1},
	}
	assert.ErrorIs(t, mismatched.Validate(), ErrParallelArrayMismatch)
}

func TestRemediationAttempt_AllExitCodesZero(t *testing.T) {
	assert.True(t, RemediationAttempt{ExitCodes: []int{0, 0, 0}}.AllExitCodesZero())
	assert.False(t, RemediationAttempt{ExitCodes: []int{0, 1}}.AllExitCodesZero())
	assert.True(t, RemediationAttempt{}.AllExitCodesZero(), "empty command list is vacuously true")
}
