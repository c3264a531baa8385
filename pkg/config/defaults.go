package config

import "time"

// Default values for optional configuration, per §6.
const (
	defaultHTTPPort = "8080"
	defaultLogLevel = "info"
	defaultLogFormat = "json"

	defaultDBMaxOpenConns = 10
	defaultDBMaxIdleConns = 5
	defaultDBConnMaxLife  = 30 * time.Minute
	defaultDBConnMaxIdle  = 5 * time.Minute
	defaultDBConnectRetries = 5
	defaultDBConnectBackoff = 2 * time.Second

	defaultLLMModel       = "claude-sonnet-4-5"
	defaultLLMMaxTokens   = 4000
	defaultLLMTemperature = 0.0
	defaultLLMTimeout     = 60 * time.Second
	defaultLLMMaxIterations = 5

	defaultMaxAttemptsPerAlert     = 3
	defaultAttemptWindow           = 2 * time.Hour
	defaultCommandExecutionTimeout = 60 * time.Second
	defaultFingerprintCooldown     = 300 * time.Second
	defaultEscalationCooldown      = 4 * time.Hour
	defaultVerifierMaxWait         = 3 * time.Minute
	defaultVerifierPollInterval    = 10 * time.Second
	defaultVerifierInitialDelay    = 15 * time.Second
	defaultCorrelationWindow       = 120 * time.Second
	defaultSelfRestartMaxRestarts  = 2
	defaultStaleHandoffCleanupAge  = 30 * time.Minute
	defaultProactiveCheckInterval  = 15 * time.Minute

	defaultQueueCapacity      = 500
	defaultQueueDrainBatch    = 100
	defaultQueueDrainInterval = 30 * time.Second

	defaultSSHConnectionTimeout = 10 * time.Second
	defaultMetricsTimeout       = 10 * time.Second
	defaultLogsTimeout          = 10 * time.Second
	defaultOrchestratorTimeout  = 10 * time.Second
)
