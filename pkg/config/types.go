package config

import "time"

// HostConfig is one entry in the closed SSH host set (§4.2).
type HostConfig struct {
	Name        string `validate:"required"`
	Address     string `validate:"required"`
	User        string `validate:"required"`
	PrivateKeyPath string `validate:"required"`
}

// IsLocal reports whether this host should be reached via a local subprocess
// instead of SSH (§4.2's "running on the box it's remediating" case).
func (h HostConfig) IsLocal() bool {
	return h.Address == "localhost" || h.Address == "127.0.0.1"
}

// DatabaseConfig configures the connection pool (§5).
type DatabaseConfig struct {
	URL             string `validate:"required"`
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectRetries  int
	ConnectBackoff  time.Duration
}

// LLMConfig configures the Anthropic client and the tool-use loop (§4.10).
type LLMConfig struct {
	APIKey      string `validate:"required"`
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxIterations int
}

// SlackConfig configures the escalation chat sink (§4.12).
type SlackConfig struct {
	Token   string
	Channel string
}

// WebhookAuthConfig configures HTTP Basic auth on write endpoints (§6).
type WebhookAuthConfig struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

// RemediationConfig tunes the pipeline's gating thresholds (§4.14, §6).
type RemediationConfig struct {
	MaxAttemptsPerAlert     int
	AttemptWindow           time.Duration
	CommandExecutionTimeout time.Duration
	FingerprintCooldown     time.Duration
	EscalationCooldown      time.Duration
	MaintenanceMode         bool
	VerificationEnabled     bool
	VerifierMaxWait         time.Duration
	VerifierPollInterval    time.Duration
	VerifierInitialDelay    time.Duration
	CorrelationWindow       time.Duration
	SelfRestartMaxRestarts  int
	StaleHandoffCleanupAge  time.Duration
	ProactiveCheckInterval  time.Duration
}

// QueueConfig tunes the degraded-mode FIFO (§4.5).
type QueueConfig struct {
	Capacity      int
	DrainBatch    int
	DrainInterval time.Duration
}

// MetricsClientConfig and LogsClientConfig configure the external query
// clients (§4.3).
type MetricsClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

type LogsClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// OrchestratorConfig configures the external workflow orchestrator webhook
// used by Self-Preservation handoffs (§4.13).
type OrchestratorConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

// HomeAssistantConfig configures the optional home-automation tool surface;
// a zero-value (Token == "") disables those LLM tools (§9 Open Question ii).
type HomeAssistantConfig struct {
	BaseURL string
	Token   string
}

// RunbookConfig configures the markdown runbook loader (§4.15).
type RunbookConfig struct {
	Directory string
}

// Config is the fully resolved application configuration, loaded once at
// startup from the environment (§6).
type Config struct {
	HTTPHost string
	HTTPPort string
	LogLevel string
	LogFormat string // "json" | "console"

	Database     DatabaseConfig
	LLM          LLMConfig
	Slack        SlackConfig
	WebhookAuth  WebhookAuthConfig
	Remediation  RemediationConfig
	Queue        QueueConfig
	Metrics      MetricsClientConfig
	Logs         LogsClientConfig
	Orchestrator OrchestratorConfig
	HomeAutomation HomeAssistantConfig
	Runbook      RunbookConfig

	Hosts map[string]HostConfig
}
