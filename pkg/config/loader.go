package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// hostNames is the closed SSH host enum (§4.2). Renamed from the homelab
// original's literal box names to neutral roles: nexus (general compute),
// automation (home-automation hub), outpost (edge box, often local), core
// (the box the engine itself usually runs on).
var hostNames = []string{"nexus", "automation", "outpost", "core"}

func loadHosts() map[string]HostConfig {
	hosts := make(map[string]HostConfig, len(hostNames))
	for _, name := range hostNames {
		upper := strings.ToUpper(name)
		hosts[name] = HostConfig{
			Name:           name,
			Address:        getEnv("SSH_"+upper+"_HOST", ""),
			User:           getEnv("SSH_"+upper+"_USER", "root"),
			PrivateKeyPath: getEnv("SSH_"+upper+"_KEY_PATH", "/etc/warden/ssh_key"),
		}
	}
	return hosts
}

// Load builds a Config from the current process environment. Callers
// typically godotenv.Load a .env file before calling Load (see cmd/warden).
func Load() (*Config, error) {
	cfg := &Config{
		HTTPHost:  getEnv("HTTP_HOST", "0.0.0.0"),
		HTTPPort:  getEnv("HTTP_PORT", defaultHTTPPort),
		LogLevel:  getEnv("LOG_LEVEL", defaultLogLevel),
		LogFormat: getEnv("LOG_FORMAT", defaultLogFormat),

		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", defaultDBMaxOpenConns),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", defaultDBMaxIdleConns),
			ConnMaxLifetime: getEnvSeconds("DATABASE_CONN_MAX_LIFETIME_SECONDS", defaultDBConnMaxLife),
			ConnMaxIdleTime: getEnvSeconds("DATABASE_CONN_MAX_IDLE_SECONDS", defaultDBConnMaxIdle),
			ConnectRetries:  getEnvInt("DATABASE_CONNECT_RETRIES", defaultDBConnectRetries),
			ConnectBackoff:  getEnvSeconds("DATABASE_CONNECT_BACKOFF_SECONDS", defaultDBConnectBackoff),
		},

		LLM: LLMConfig{
			APIKey:        os.Getenv("ANTHROPIC_API_KEY"),
			Model:         getEnv("CLAUDE_MODEL", defaultLLMModel),
			MaxTokens:     getEnvInt("CLAUDE_MAX_TOKENS", defaultLLMMaxTokens),
			Temperature:   getEnvFloat("CLAUDE_TEMPERATURE", defaultLLMTemperature),
			Timeout:       getEnvSeconds("CLAUDE_TIMEOUT_SECONDS", defaultLLMTimeout),
			MaxIterations: getEnvInt("CLAUDE_MAX_ITERATIONS", defaultLLMMaxIterations),
		},

		Slack: SlackConfig{
			Token:   os.Getenv("SLACK_BOT_TOKEN"),
			Channel: os.Getenv("SLACK_CHANNEL"),
		},

		WebhookAuth: WebhookAuthConfig{
			Username: getEnv("WEBHOOK_AUTH_USERNAME", "alertmanager"),
			Password: os.Getenv("WEBHOOK_AUTH_PASSWORD"),
		},

		Remediation: RemediationConfig{
			MaxAttemptsPerAlert:     getEnvInt("MAX_ATTEMPTS_PER_ALERT", defaultMaxAttemptsPerAlert),
			AttemptWindow:           time.Duration(getEnvInt("ATTEMPT_WINDOW_HOURS", int(defaultAttemptWindow.Hours()))) * time.Hour,
			CommandExecutionTimeout: getEnvSeconds("COMMAND_EXECUTION_TIMEOUT", defaultCommandExecutionTimeout),
			FingerprintCooldown:     getEnvSeconds("FINGERPRINT_COOLDOWN_SECONDS", defaultFingerprintCooldown),
			EscalationCooldown:      time.Duration(getEnvInt("ESCALATION_COOLDOWN_HOURS", int(defaultEscalationCooldown.Hours()))) * time.Hour,
			MaintenanceMode:         getEnvBool("MAINTENANCE_MODE", false),
			VerificationEnabled:     getEnvBool("VERIFICATION_ENABLED", true),
			VerifierMaxWait:         getEnvSeconds("VERIFIER_MAX_WAIT_SECONDS", defaultVerifierMaxWait),
			VerifierPollInterval:    getEnvSeconds("VERIFIER_POLL_INTERVAL_SECONDS", defaultVerifierPollInterval),
			VerifierInitialDelay:    getEnvSeconds("VERIFIER_INITIAL_DELAY_SECONDS", defaultVerifierInitialDelay),
			CorrelationWindow:       getEnvSeconds("CORRELATION_WINDOW_SECONDS", defaultCorrelationWindow),
			SelfRestartMaxRestarts:  getEnvInt("SELF_RESTART_MAX_RESTARTS", defaultSelfRestartMaxRestarts),
			StaleHandoffCleanupAge:  time.Duration(getEnvInt("STALE_HANDOFF_CLEANUP_MINUTES", int(defaultStaleHandoffCleanupAge.Minutes()))) * time.Minute,
			ProactiveCheckInterval:  time.Duration(getEnvInt("PROACTIVE_CHECK_INTERVAL_MINUTES", int(defaultProactiveCheckInterval.Minutes()))) * time.Minute,
		},

		Queue: QueueConfig{
			Capacity:      getEnvInt("QUEUE_CAPACITY", defaultQueueCapacity),
			DrainBatch:    getEnvInt("QUEUE_DRAIN_BATCH", defaultQueueDrainBatch),
			DrainInterval: getEnvSeconds("QUEUE_DRAIN_INTERVAL_SECONDS", defaultQueueDrainInterval),
		},

		Metrics: MetricsClientConfig{
			BaseURL: os.Getenv("METRICS_BASE_URL"),
			Timeout: getEnvSeconds("METRICS_TIMEOUT_SECONDS", defaultMetricsTimeout),
		},
		Logs: LogsClientConfig{
			BaseURL: os.Getenv("LOGS_BASE_URL"),
			Timeout: getEnvSeconds("LOGS_TIMEOUT_SECONDS", defaultLogsTimeout),
		},

		Orchestrator: OrchestratorConfig{
			WebhookURL: os.Getenv("ORCHESTRATOR_WEBHOOK_URL"),
			Timeout:    getEnvSeconds("ORCHESTRATOR_TIMEOUT_SECONDS", defaultOrchestratorTimeout),
		},

		HomeAutomation: HomeAssistantConfig{
			BaseURL: os.Getenv("HOME_AUTOMATION_BASE_URL"),
			Token:   os.Getenv("HOME_AUTOMATION_TOKEN"),
		},

		Runbook: RunbookConfig{
			Directory: getEnv("RUNBOOK_DIR", "./runbooks"),
		},

		Hosts: loadHosts(),
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
