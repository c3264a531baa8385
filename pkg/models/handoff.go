package models

import "time"

// RestartTarget names what a self-preservation handoff restarts.
type RestartTarget string

// Restart targets (§3 SelfPreservationHandoff).
const (
	RestartEngine       RestartTarget = "engine"
	RestartEngineDB      RestartTarget = "engine_db"
	RestartHost          RestartTarget = "host"
	RestartDockerDaemon  RestartTarget = "docker_daemon"
)

// HandoffStatus is the lifecycle state of a self-preservation handoff.
type HandoffStatus string

// Handoff statuses.
const (
	HandoffPending    HandoffStatus = "pending"
	HandoffInProgress HandoffStatus = "in_progress"
	HandoffCompleted  HandoffStatus = "completed"
	HandoffFailed     HandoffStatus = "failed"
	HandoffTimeout    HandoffStatus = "timeout"
	HandoffCancelled  HandoffStatus = "cancelled"
)

// Terminal reports whether a handoff in this status can no longer transition.
func (s HandoffStatus) Terminal() bool {
	switch s {
	case HandoffCompleted, HandoffFailed, HandoffTimeout, HandoffCancelled:
		return true
	default:
		return false
	}
}

// RemediationContext is the size-capped, JSON-serializable snapshot of an
// in-flight remediation attempt carried across a self-restart (§4.13).
type RemediationContext struct {
	AlertName        string   `json:"alert_name"`
	AlertInstance    string   `json:"alert_instance"`
	AlertFingerprint string   `json:"alert_fingerprint"`
	Severity         string   `json:"severity"`

	AttemptNumber    int      `json:"attempt_number"`
	CommandsExecuted []string `json:"commands_executed"`
	CommandOutputs   []string `json:"command_outputs"`

	AIAnalysis      string   `json:"ai_analysis,omitempty"`
	AIReasoning     string   `json:"ai_reasoning,omitempty"`
	PlannedCommands []string `json:"planned_commands,omitempty"`

	TargetHost  string `json:"target_host"`
	ServiceName string `json:"service_name,omitempty"`
	ServiceType string `json:"service_type,omitempty"`

	StartedAt time.Time `json:"started_at"`

	RestartCount int `json:"restart_count"`
	MaxRestarts  int `json:"max_restarts"`
}

// SelfPreservationHandoff is a durable record of an in-flight self-restart,
// owned exclusively by the Self-Preservation component (§3).
type SelfPreservationHandoff struct {
	HandoffID           string
	RestartTarget       RestartTarget
	RestartReason       string
	RemediationContext  RemediationContext
	Status              HandoffStatus
	CallbackURL         string
	ExternalExecutionID string
	Error               string
	CreatedAt           time.Time
	CompletedAt         *time.Time
}
