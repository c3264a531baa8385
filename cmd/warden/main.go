// Command warden runs the alert remediation engine: it receives Alertmanager
// webhooks, plans and executes remediation over SSH, escalates to Slack, and
// serves the HTTP surface of SPEC_FULL.md §6. Grounded on
// cmd/tarsy/main.go's single-binary wiring style (load config, open the
// database, construct every service, mount a gin router, serve).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/homelab/warden/pkg/api"
	"github.com/homelab/warden/pkg/config"
	"github.com/homelab/warden/pkg/database"
	"github.com/homelab/warden/pkg/degradequeue"
	"github.com/homelab/warden/pkg/escalation"
	"github.com/homelab/warden/pkg/homeassistant"
	"github.com/homelab/warden/pkg/hostmonitor"
	"github.com/homelab/warden/pkg/learning"
	"github.com/homelab/warden/pkg/llmagent"
	"github.com/homelab/warden/pkg/logsclient"
	"github.com/homelab/warden/pkg/maintenance"
	"github.com/homelab/warden/pkg/metricsclient"
	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/orchestrator"
	"github.com/homelab/warden/pkg/pipeline"
	"github.com/homelab/warden/pkg/proactive"
	"github.com/homelab/warden/pkg/rollback"
	"github.com/homelab/warden/pkg/runbook"
	"github.com/homelab/warden/pkg/selfmetrics"
	"github.com/homelab/warden/pkg/selfpreserve"
	"github.com/homelab/warden/pkg/sshexec"
	"github.com/homelab/warden/pkg/store"
	"github.com/homelab/warden/pkg/suppressor"
	"github.com/homelab/warden/pkg/validator"
	"github.com/homelab/warden/pkg/verifier"
	"github.com/homelab/warden/pkg/version"
)

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	envPath := *configDir + "/.env"
	if err := godotenv.Load(envPath); err != nil {
		log("warn", "could not load %s: %v (continuing with process environment)", envPath, err)
	}

	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("starting warden", "version", version.Full(), "http_port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := database.NewClient(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectRetries:  cfg.Database.ConnectRetries,
		ConnectBackoff:  cfg.Database.ConnectBackoff,
	})
	if err != nil {
		fatalf("connect database: %v", err)
	}
	defer dbClient.Close()
	logger.Info("connected to database")

	db := store.New(dbClient.DB)
	alertCache := store.NewAlertCache(db)
	cooldowns := store.NewEscalationCooldowns(db)
	remediationLog := store.NewRemediationLog(db)
	patterns := store.NewPatterns(db)
	failures := store.NewFailures(db)
	maintenanceDAO := store.NewMaintenance(db)
	hostStatusLog := store.NewHostStatusLog(db)
	snapshots := store.NewSnapshots(db)
	handoffs := store.NewHandoffs(db)
	proactiveChecks := store.NewProactiveChecks(db)

	protectedNames := []string{"warden", "warden-db"}
	planValidator := validator.New(protectedNames...)

	sshExecutor := sshexec.New(cfg.Hosts, cfg.Remediation.CommandExecutionTimeout, nil)
	defer sshExecutor.Close()

	escalationNotifier := escalation.New(cfg.Slack.Token, cfg.Slack.Channel, cooldowns, cfg.Remediation.EscalationCooldown, logger)

	hostNames := make([]string, 0, len(cfg.Hosts))
	for name := range cfg.Hosts {
		hostNames = append(hostNames, name)
	}
	hostMonitor := hostmonitor.New(hostNames, escalationNotifier, sshExecutor, hostStatusLog, 5*time.Minute)
	sshExecutor.SetObserver(hostMonitor)
	hostMonitor.Start(ctx)
	defer hostMonitor.Stop()

	suppressorSvc := suppressor.New(hostMonitor, maintenanceDAO, escalationNotifier)
	go suppressorSvc.RunSummaryLoop(ctx, 15*time.Minute)

	learningEngine := learning.New(patterns, failures)

	metricsClient := metricsclient.New(cfg.Metrics.BaseURL, cfg.Metrics.Timeout)
	metricsAdapter := pipeline.NewMetricsAdapter(metricsClient)

	verifierSvc := verifier.New(metricsAdapter, verifier.Config{
		MaxWait:      cfg.Remediation.VerifierMaxWait,
		PollInterval: cfg.Remediation.VerifierPollInterval,
		InitialDelay: cfg.Remediation.VerifierInitialDelay,
	})

	logsClient := logsclient.New(cfg.Logs.BaseURL, cfg.Logs.Timeout)

	orchestratorClient := orchestrator.New(cfg.Orchestrator.WebhookURL, cfg.Orchestrator.Timeout)

	haAvailable := cfg.HomeAutomation.Token != ""
	var haAdapter llmagent.HomeAutomation
	if haAvailable {
		haClient := homeassistant.New(cfg.HomeAutomation.BaseURL, cfg.HomeAutomation.Token, 30*time.Second)
		haAdapter = newHomeAutomationAdapter(haClient)
	}
	workflowAvailable := cfg.Orchestrator.WebhookURL != ""

	toolExecutor := &llmagent.ToolExecutor{
		SSH:      sshExecutor,
		Logs:     logsClient,
		Metrics:  metricsAdapter,
		HA:       haAdapter,
		Flows:    orchestratorClient,
		Validate: planValidator.ValidateCommand,
	}

	llmAgent := llmagent.New(llmagent.Config{
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		MaxIterations: cfg.LLM.MaxIterations,
	}, toolExecutor, haAvailable, workflowAvailable, logger)

	rollbackHelper := rollback.New(sshExecutor, snapshots)

	selfPreserveMgr := selfpreserve.New(handoffs, orchestratorClient, selfpreserve.Config{
		EngineExternalURL: fmt.Sprintf("http://%s:%s", cfg.HTTPHost, cfg.HTTPPort),
		MaxRestarts:       cfg.Remediation.SelfRestartMaxRestarts,
	}, logger)

	degradeQueue := degradequeue.New(cfg.Queue.Capacity, cfg.Queue.DrainBatch, cfg.Queue.DrainInterval, remediationLog)
	degradeQueue.Start(ctx)
	defer degradeQueue.Stop()

	runbookSvc := runbook.New(cfg.Runbook.Directory, 5*time.Minute)
	if n, err := runbookSvc.Load(); err != nil {
		logger.Warn("runbook load failed", "error", err)
	} else {
		logger.Info("runbooks loaded", "count", n)
	}

	registry := prometheus.NewRegistry()
	metrics := selfmetrics.New(registry)
	go runGaugeUpdater(ctx, metrics, degradeQueue, hostMonitor)

	proactiveTargets := buildProactiveTargets(cfg)
	proactiveMonitor := proactive.New(
		pipeline.NewProactivePredictor(metricsAdapter),
		proactiveChecks,
		escalationNotifier,
		proactiveTargets,
		proactive.Config{
			CheckInterval:  cfg.Remediation.ProactiveCheckInterval,
			WarningHorizon: 6 * time.Hour,
			NotifyCooldown: cfg.Remediation.EscalationCooldown,
		},
		logger,
	)
	if len(proactiveTargets) > 0 {
		if err := proactiveMonitor.Start(ctx); err != nil {
			logger.Warn("proactive monitor did not start", "error", err)
		} else {
			defer proactiveMonitor.Stop()
		}
	}

	coordinator := pipeline.New(pipeline.Config{
		MaxAttemptsPerAlert:     cfg.Remediation.MaxAttemptsPerAlert,
		AttemptWindow:           cfg.Remediation.AttemptWindow,
		CommandExecutionTimeout: cfg.Remediation.CommandExecutionTimeout,
		FingerprintCooldown:     cfg.Remediation.FingerprintCooldown,
		CorrelationWindow:       cfg.Remediation.CorrelationWindow,
		VerificationEnabled:     cfg.Remediation.VerificationEnabled,
	}, logger)
	coordinator.Cache = alertCache
	coordinator.Attempts = remediationLog
	coordinator.Suppressor = suppressorSvc
	coordinator.Patterns = learningEngine
	coordinator.Planner = llmAgent
	coordinator.Validator = planValidator
	coordinator.Executor = sshExecutor
	coordinator.Verifier = verifierSvc
	coordinator.Notifier = escalationNotifier
	coordinator.Runbooks = runbookSvc
	coordinator.Snapshots = rollbackHelper
	coordinator.DegradeQ = degradeQueue

	maintenanceSvc := maintenance.New(maintenanceDAO)

	externalChecks := []api.ExternalServiceCheck{
		{Name: "metrics", Check: httpReachabilityCheck(cfg.Metrics.BaseURL)},
		{Name: "logs", Check: httpReachabilityCheck(cfg.Logs.BaseURL)},
		{Name: "orchestrator", Check: httpReachabilityCheck(cfg.Orchestrator.WebhookURL)},
	}
	if haAvailable {
		externalChecks = append(externalChecks, api.ExternalServiceCheck{
			Name:  "home_automation",
			Check: httpReachabilityCheck(cfg.HomeAutomation.BaseURL),
		})
	}

	server := &api.Server{
		Coordinator:    &instrumentedCoordinator{inner: coordinator, m: metrics},
		DB:             dbClient,
		Maintenance:    api.NewMaintenanceHandlers(maintenanceSvc),
		Patterns:       api.NewPatternHandlers(patterns, remediationLog),
		Runbooks:       api.NewRunbookHandlers(runbookSvc),
		SelfPreserve:   api.NewSelfPreserveHandlers(selfPreserveMgr),
		External:       api.NewExternalServicesHandler(externalChecks, 5*time.Second),
		Queue:          degradeQueue,
		AuthUsername:   cfg.WebhookAuth.Username,
		AuthPassword:   cfg.WebhookAuth.Password,
		MetricsHandler: selfmetrics.Handler(registry),
		Log:            logger,
	}

	if cfg.LogFormat != "console" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := server.Router()

	httpServer := &http.Server{
		Addr:    cfg.HTTPHost + ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}
}

// buildProactiveTargets derives the fixed disk/memory exhaustion checks
// (§4.16) from the configured host set, one pair of checks per SSH-reachable
// host, querying the conventional node_exporter metric names referenced in
// llmagent/catalog.go's tool description.
func buildProactiveTargets(cfg *config.Config) []proactive.Target {
	var targets []proactive.Target
	for name, host := range cfg.Hosts {
		if host.Address == "" {
			continue
		}
		instance := fmt.Sprintf("%s:9100", host.Address)
		targets = append(targets,
			proactive.Target{
				CheckType: models.ProactiveCheckDiskExhaustion,
				Metric:    "node_filesystem_avail_bytes",
				Instance:  instance,
				Host:      name,
				Threshold: 1 << 30, // 1 GiB free
			},
			proactive.Target{
				CheckType: models.ProactiveCheckMemoryExhaustion,
				Metric:    "node_memory_MemAvailable_bytes",
				Instance:  instance,
				Host:      name,
				Threshold: 256 << 20, // 256 MiB free
			},
		)
	}
	return targets
}

// httpReachabilityCheck builds an ExternalServiceCheck.Check probing baseURL
// with a plain GET, used for /external-services (§6). A blank baseURL means
// the dependency isn't configured, so the check reports it unreachable
// rather than silently skipping it.
func httpReachabilityCheck(baseURL string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if baseURL == "" {
			return errors.New("not configured")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return nil
	}
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "console" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func log(level, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "["+level+"] "+format+"\n", args...)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[fatal] "+format+"\n", args...)
	os.Exit(1)
}
