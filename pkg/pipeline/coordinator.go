// Package pipeline implements the Pipeline Coordinator (C14): the
// sequential, stateful machine a firing alert traverses from webhook arrival
// to final outcome, wiring together every other component in the engine.
// Grounded directly on spec.md §4.14's sixteen states and
// original_source/app/main.py's process_alert, the reference
// implementation's single largest function.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/homelab/warden/pkg/apperrors"
	"github.com/homelab/warden/pkg/correlator"
	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/sshexec"
	"github.com/homelab/warden/pkg/suppressor"
	"github.com/homelab/warden/pkg/validator"
	"github.com/homelab/warden/pkg/verifier"
)

// Cache is the subset of *store.AlertCache the coordinator needs (§8
// property 1).
type Cache interface {
	TryClaim(ctx context.Context, fingerprint, alertName, alertInstance string, cooldown time.Duration) (bool, error)
	Clear(ctx context.Context, fingerprint string) error
}

// AttemptLog is the subset of *store.RemediationLog the coordinator needs.
type AttemptLog interface {
	Insert(ctx context.Context, a *models.RemediationAttempt) (int64, error)
	CountAttempts(ctx context.Context, alertName, alertInstance string, window time.Duration) (int, error)
	ClearAttempts(ctx context.Context, alertName, alertInstance string) error
	RecentForIdentity(ctx context.Context, alertName, alertInstance string, limit int) ([]*models.RemediationAttempt, error)
}

// SuppressionGate is the subset of *suppressor.Suppressor the coordinator
// needs (§4.6-§4.8).
type SuppressionGate interface {
	Check(ctx context.Context, alert models.Alert, targetHost string) (suppressor.Decision, error)
	RegisterRootCause(alertName string)
	ClearRootCause(alertName string)
}

// PatternEngine is the subset of *learning.Engine the coordinator needs
// (§4.9).
type PatternEngine interface {
	Decide(ctx context.Context, alertName string, labels map[string]string) (models.EffectiveConfidenceTier, *models.RemediationPattern, float64, error)
	ExtractPattern(ctx context.Context, attempt *models.RemediationAttempt, labels map[string]string) (int64, error)
	RecordOutcome(ctx context.Context, patternID int64, success bool, commands []string, execDurationSec float64) error
	RecordFailure(ctx context.Context, alertName, alertInstance, fingerprint string, commands []string, reason string) error
}

// Planner is the subset of *llmagent.Agent the coordinator needs (§4.10).
type Planner interface {
	Analyze(ctx context.Context, alert models.Alert, systemContext, hintsText string) models.Plan
}

// PlanValidator is the subset of *validator.Validator the coordinator needs
// (§4.1).
type PlanValidator interface {
	ValidatePlan(commands []string) validator.PlanResult
}

// CommandExecutor is the subset of *sshexec.Executor the coordinator needs
// (§4.2).
type CommandExecutor interface {
	Execute(ctx context.Context, host string, cmds []string, timeout time.Duration) sshexec.Result
}

// AlertVerifier is the subset of *verifier.Verifier the coordinator needs
// (§4.11).
type AlertVerifier interface {
	Verify(ctx context.Context, alertName, instance string, labels map[string]string) verifier.VerifyResult
}

// Notifier is the subset of *escalation.Notifier the coordinator needs
// (§4.12).
type Notifier interface {
	NotifySuccess(ctx context.Context, attempt *models.RemediationAttempt, execution time.Duration, maxAttempts int) error
	NotifyFailure(ctx context.Context, attempt *models.RemediationAttempt, execution time.Duration, maxAttempts int) error
	NotifyEscalation(ctx context.Context, attempt *models.RemediationAttempt, previous []*models.RemediationAttempt) (bool, error)
	NotifyDangerousCommand(ctx context.Context, alertName, alertInstance string, rejected, reasons []string) error
	ClearEscalation(ctx context.Context, alertName, alertInstance string) error
}

// RunbookLookup is the subset of *runbook.Service the coordinator needs.
type RunbookLookup interface {
	Context(alertName string) string
}

// SnapshotHelper is the subset of *rollback.Helper the coordinator needs.
type SnapshotHelper interface {
	SnapshotContainer(ctx context.Context, host, container, alertContext string) (string, error)
}

// DegradeQueue is the subset of *degradequeue.Queue the coordinator needs
// (§8 property 12).
type DegradeQueue interface {
	Enqueue(a *models.RemediationAttempt)
}

// Config bundles the pipeline's tunable thresholds, mirroring
// config.RemediationConfig's fields (§4.14, §6).
type Config struct {
	MaxAttemptsPerAlert     int
	AttemptWindow           time.Duration
	CommandExecutionTimeout time.Duration
	FingerprintCooldown     time.Duration
	CorrelationWindow       time.Duration
	VerificationEnabled     bool
	MinFailuresToAvoid      int
}

func (c Config) withDefaults() Config {
	if c.MaxAttemptsPerAlert <= 0 {
		c.MaxAttemptsPerAlert = 3
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = 2 * time.Hour
	}
	if c.CommandExecutionTimeout <= 0 {
		c.CommandExecutionTimeout = 60 * time.Second
	}
	if c.FingerprintCooldown <= 0 {
		c.FingerprintCooldown = 300 * time.Second
	}
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = 10 * time.Minute
	}
	if c.MinFailuresToAvoid <= 0 {
		c.MinFailuresToAvoid = 2
	}
	return c
}

// Coordinator wires every remediation component into the sixteen-state
// machine of §4.14. Every dependency is a narrow interface so the state
// machine itself can be exercised without a database, live SSH, or a live
// LLM.
type Coordinator struct {
	Cache       Cache
	Attempts    AttemptLog
	Suppressor  SuppressionGate
	Patterns    PatternEngine
	Planner     Planner
	Validator   PlanValidator
	Executor    CommandExecutor
	Verifier    AlertVerifier
	Notifier    Notifier
	Runbooks    RunbookLookup   // optional; nil disables runbook context injection
	Snapshots   SnapshotHelper  // optional; nil disables pre-change snapshots
	DegradeQ    DegradeQueue    // optional; nil means Insert errors propagate directly
	Log         *slog.Logger

	cfg Config

	mu      sync.Mutex
	recent  []recentAlert // sliding window for correlation (§4.8)
}

type recentAlert struct {
	alert models.Alert
	at    time.Time
}

// New builds a Coordinator.
func New(cfg Config, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{cfg: cfg.withDefaults(), Log: log}
}

// Process runs one firing alert through the sixteen-state machine,
// returning its terminal outcome. It never returns an error for a
// well-formed alert; internal component failures degrade to an `error`
// outcome rather than propagating.
func (c *Coordinator) Process(ctx context.Context, alert models.Alert) models.Result {
	identity := models.Identity{AlertName: alert.AlertName, AlertInstance: alert.Instance}

	// 1. Intake.
	if alert.Fingerprint == "" {
		return models.Result{Identity: identity, Outcome: models.OutcomeError, Reason: "empty fingerprint"}
	}
	alert.Instance = models.BuildInstance(alert.AlertName, alert.Labels)
	identity = alert.Identity()

	// 2. Dedup.
	claimed, err := c.Cache.TryClaim(ctx, alert.Fingerprint, alert.AlertName, alert.Instance, c.cfg.FingerprintCooldown)
	if err != nil {
		c.Log.ErrorContext(ctx, "dedup_check_failed", "alert_name", alert.AlertName, "error", err.Error())
		return models.Result{Identity: identity, Outcome: models.OutcomeError, Reason: err.Error()}
	}
	if !claimed {
		return models.Result{Identity: identity, Outcome: models.OutcomeDeduplicated, Reason: "within fingerprint cooldown"}
	}

	// 3. Counter.
	attemptCount, err := c.Attempts.CountAttempts(ctx, alert.AlertName, alert.Instance, c.cfg.AttemptWindow)
	if err != nil {
		return models.Result{Identity: identity, Outcome: models.OutcomeError, Reason: err.Error()}
	}
	if attemptCount >= c.cfg.MaxAttemptsPerAlert {
		return c.escalateNoAttempt(ctx, identity, alert, fmt.Sprintf("attempt count %d reached max %d", attemptCount, c.cfg.MaxAttemptsPerAlert))
	}

	// 4. Hints.
	hints := ExtractHints(alert)

	// 5. Routing.
	targetHost := DetermineTargetHost(alert, hints)
	serviceName := hints.Service
	if serviceName == "" {
		serviceName = ExtractServiceName(alert)
	}
	serviceType := DetermineServiceType(alert, serviceName)

	// 6+7. Maintenance and suppression gates (pkg/suppressor applies both,
	// plus the offline-host gate, in one ordered check).
	decision, err := c.Suppressor.Check(ctx, alert, targetHost)
	if err != nil {
		return models.Result{Identity: identity, Outcome: models.OutcomeError, Reason: err.Error()}
	}
	if decision.Suppressed {
		return models.Result{Identity: identity, Outcome: models.OutcomeSuppressed, Reason: decision.Reason}
	}

	// 8. Correlation gate.
	if inc, ok := c.correlate(alert); ok && !inc.IsRootCause(alert.AlertName) {
		return models.Result{Identity: identity, Outcome: models.OutcomeSkipped, Reason: fmt.Sprintf("correlated under %s (%s)", inc.RootCause, inc.Type)}
	} else if ok {
		c.Suppressor.RegisterRootCause(alert.AlertName)
	}
	c.rememberAlert(alert)

	// 9. Pattern lookup.
	tier, pattern, effectiveConfidence, err := c.Patterns.Decide(ctx, alert.AlertName, alert.Labels)
	if err != nil {
		c.Log.WarnContext(ctx, "pattern_lookup_failed", "error", err.Error())
		tier = models.TierIgnore
	}

	// 10. Plan.
	usedPattern := false
	var plan models.Plan
	if tier == models.TierDirect && pattern != nil {
		plan = planFromPattern(pattern, targetHost)
		usedPattern = true
		c.Log.InfoContext(ctx, "pattern_direct_apply", "alert_name", alert.AlertName, "pattern_id", pattern.ID, "effective_confidence", effectiveConfidence)
	} else {
		systemContext := c.buildSystemContext(alert, hints, targetHost, serviceName, serviceType, tier, pattern)
		hintsText := formatHintsText(hints)
		plan = c.Planner.Analyze(ctx, alert, systemContext, hintsText)
		if plan.TargetHost == "" {
			plan.TargetHost = targetHost
		}
	}

	// 11. Validate plan.
	planResult := c.Validator.ValidatePlan(plan.Commands)
	if !planResult.Safe {
		c.rejectUnsafePlan(ctx, alert, identity, planResult)
		return models.Result{Identity: identity, Outcome: models.OutcomeRejected, Reason: "unsafe commands rejected"}
	}

	// 12. Risk gate.
	if plan.Risk == models.RiskHigh && !validator.AllSimple(plan.Commands) {
		return c.escalateNoAttempt(ctx, identity, alert, "high risk plan requires non-simple commands")
	}

	// 13. Classify commands.
	actionable, _ := validator.ClassifyCommands(plan.Commands)
	if len(actionable) == 0 {
		return models.Result{Identity: identity, Outcome: models.OutcomeDiagnosticOnly, Reason: "no actionable commands"}
	}

	if avoid, reason, err := c.shouldAvoidPlan(ctx, alert.AlertName, plan.Commands); err == nil && avoid {
		c.Log.InfoContext(ctx, "plan_avoided_known_failure", "alert_name", alert.AlertName, "reason", reason)
	}

	c.maybeSnapshot(ctx, targetHost, serviceType, hints, alert)

	// 14. Execute.
	start := time.Now()
	execResult := c.Executor.Execute(ctx, targetHost, plan.Commands, c.cfg.CommandExecutionTimeout)
	duration := time.Since(start)

	executedCommands := plan.Commands
	if len(execResult.ExitCodes) < len(executedCommands) {
		executedCommands = executedCommands[:len(execResult.ExitCodes)]
	}

	// 15. Verify.
	success := allZero(execResult.ExitCodes) && len(execResult.ExitCodes) > 0
	verifyMessage := ""
	if success && c.cfg.VerificationEnabled && c.Verifier != nil {
		vr := c.Verifier.Verify(ctx, alert.AlertName, alert.Instance, alert.Labels)
		success = vr.OK
		verifyMessage = vr.Message
	}

	attempt := &models.RemediationAttempt{
		Timestamp:             time.Now(),
		AlertName:             alert.AlertName,
		AlertInstance:         alert.Instance,
		AlertFingerprint:      alert.Fingerprint,
		Severity:              alert.Severity,
		AttemptNumber:         attemptCount + 1,
		AIAnalysis:            plan.Analysis,
		AIReasoning:           plan.Reasoning,
		RemediationPlan:       plan.ExpectedOutcome,
		ExecutedCommands:      executedCommands,
		CommandOutputs:        execResult.Outputs,
		ExitCodes:             execResult.ExitCodes,
		Success:               success,
		ErrorMessage:          firstNonEmpty(execResult.Error, verifyMessage),
		ExecutionDurationSecs: duration.Seconds(),
		RiskLevel:             plan.Risk,
	}

	// 16. Persist + Learn.
	return c.persistAndLearn(ctx, identity, attempt, alert.Labels, usedPattern, pattern)
}

func allZero(codes []int) bool {
	if len(codes) == 0 {
		return false
	}
	for _, c := range codes {
		if c != 0 {
			return false
		}
	}
	return true
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Coordinator) persistAndLearn(ctx context.Context, identity models.Identity, attempt *models.RemediationAttempt, labels map[string]string, usedPattern bool, pattern *models.RemediationPattern) models.Result {
	c.insertAttempt(ctx, attempt)

	if attempt.Success {
		if err := c.Notifier.NotifySuccess(ctx, attempt, time.Duration(attempt.ExecutionDurationSecs*float64(time.Second)), c.cfg.MaxAttemptsPerAlert); err != nil {
			c.Log.WarnContext(ctx, "notify_success_failed", "error", err.Error())
		}
		if usedPattern && pattern != nil {
			if err := c.Patterns.RecordOutcome(ctx, pattern.ID, true, attempt.ExecutedCommands, attempt.ExecutionDurationSecs); err != nil {
				c.Log.WarnContext(ctx, "record_pattern_outcome_failed", "error", err.Error())
			}
		} else {
			if _, err := c.Patterns.ExtractPattern(ctx, attempt, labels); err != nil {
				c.Log.WarnContext(ctx, "extract_pattern_failed", "error", err.Error())
			}
		}
		return models.Result{Identity: identity, Outcome: models.OutcomeRemediated, Attempt: attempt}
	}

	if err := c.Notifier.NotifyFailure(ctx, attempt, time.Duration(attempt.ExecutionDurationSecs*float64(time.Second)), c.cfg.MaxAttemptsPerAlert); err != nil {
		c.Log.WarnContext(ctx, "notify_failure_failed", "error", err.Error())
	}
	if usedPattern && pattern != nil {
		if err := c.Patterns.RecordOutcome(ctx, pattern.ID, false, attempt.ExecutedCommands, attempt.ExecutionDurationSecs); err != nil {
			c.Log.WarnContext(ctx, "record_pattern_outcome_failed", "error", err.Error())
		}
	}
	if err := c.Patterns.RecordFailure(ctx, attempt.AlertName, attempt.AlertInstance, attempt.AlertFingerprint, attempt.ExecutedCommands, attempt.ErrorMessage); err != nil {
		c.Log.WarnContext(ctx, "record_failure_pattern_failed", "error", err.Error())
	}

	if attempt.AttemptNumber >= c.cfg.MaxAttemptsPerAlert {
		c.escalate(ctx, identity, attempt)
		return models.Result{Identity: identity, Outcome: models.OutcomeEscalated, Attempt: attempt}
	}
	return models.Result{Identity: identity, Outcome: models.OutcomeFailed, Attempt: attempt}
}

// insertAttempt persists attempt, falling back to the degraded-mode queue
// when the store reports a transient failure (§7, §8 property 12).
func (c *Coordinator) insertAttempt(ctx context.Context, attempt *models.RemediationAttempt) {
	if _, err := c.Attempts.Insert(ctx, attempt); err != nil {
		if apperrors.Is(err, apperrors.KindTransientExternal) && c.DegradeQ != nil {
			c.Log.WarnContext(ctx, "remediation_log_degraded", "alert_name", attempt.AlertName, "error", err.Error())
			c.DegradeQ.Enqueue(attempt)
			return
		}
		c.Log.ErrorContext(ctx, "remediation_log_insert_failed", "alert_name", attempt.AlertName, "error", err.Error())
	}
}

// escalateNoAttempt handles the two gates (counter exhausted, risk gate)
// that escalate before any command runs: it writes an escalation-only
// marker row (commands_executed=[]), which per §8 property 2 must never
// count toward future attempt totals.
func (c *Coordinator) escalateNoAttempt(ctx context.Context, identity models.Identity, alert models.Alert, reason string) models.Result {
	marker := &models.RemediationAttempt{
		Timestamp:        time.Now(),
		AlertName:        alert.AlertName,
		AlertInstance:    alert.Instance,
		AlertFingerprint: alert.Fingerprint,
		Severity:         alert.Severity,
		Escalated:        true,
		ErrorMessage:     reason,
		RiskLevel:        models.RiskHigh,
	}
	c.insertAttempt(ctx, marker)
	c.escalate(ctx, identity, marker)
	return models.Result{Identity: identity, Outcome: models.OutcomeEscalated, Reason: reason, Attempt: marker}
}

func (c *Coordinator) escalate(ctx context.Context, identity models.Identity, marker *models.RemediationAttempt) {
	previous, err := c.Attempts.RecentForIdentity(ctx, identity.AlertName, identity.AlertInstance, 10)
	if err != nil {
		c.Log.WarnContext(ctx, "recent_attempts_lookup_failed", "error", err.Error())
	}
	if _, err := c.Notifier.NotifyEscalation(ctx, marker, previous); err != nil {
		c.Log.WarnContext(ctx, "notify_escalation_failed", "error", err.Error())
	}
}

func (c *Coordinator) rejectUnsafePlan(ctx context.Context, alert models.Alert, identity models.Identity, planResult validator.PlanResult) {
	if err := c.Notifier.NotifyDangerousCommand(ctx, alert.AlertName, alert.Instance, planResult.Rejected, planResult.Reasons); err != nil {
		c.Log.WarnContext(ctx, "notify_dangerous_command_failed", "error", err.Error())
	}
	marker := &models.RemediationAttempt{
		Timestamp:        time.Now(),
		AlertName:        alert.AlertName,
		AlertInstance:    alert.Instance,
		AlertFingerprint: alert.Fingerprint,
		Severity:         alert.Severity,
		Escalated:        true,
		ErrorMessage:     "unsafe commands rejected: " + strings.Join(planResult.Reasons, "; "),
		RiskLevel:        models.RiskHigh,
	}
	c.insertAttempt(ctx, marker)
}

// shouldAvoidPlan consults the Learning Engine's failure memory so a plan
// that has already failed repeatedly against this alert is logged, not
// silently re-run forever (§4.9).
func (c *Coordinator) shouldAvoidPlan(ctx context.Context, alertName string, commands []string) (bool, string, error) {
	type avoider interface {
		ShouldAvoidCommands(ctx context.Context, alertName string, commands []string, minFailures int) (bool, string, error)
	}
	a, ok := c.Patterns.(avoider)
	if !ok {
		return false, "", nil
	}
	return a.ShouldAvoidCommands(ctx, alertName, commands, c.cfg.MinFailuresToAvoid)
}

func (c *Coordinator) maybeSnapshot(ctx context.Context, targetHost, serviceType string, hints Hints, alert models.Alert) {
	if c.Snapshots == nil || serviceType != "docker" {
		return
	}
	container := hints.Container
	if container == "" {
		container = alert.Labels["container"]
	}
	if container == "" {
		return
	}
	if _, err := c.Snapshots.SnapshotContainer(ctx, targetHost, container, alert.AlertName); err != nil {
		c.Log.WarnContext(ctx, "pre_change_snapshot_failed", "host", targetHost, "container", container, "error", err.Error())
	}
}

// correlate applies §4.8's rules against the in-memory recent-alert window,
// pruned to the configured correlation window.
func (c *Coordinator) correlate(alert models.Alert) (*correlator.Incident, bool) {
	c.mu.Lock()
	cutoff := time.Now().Add(-c.cfg.CorrelationWindow)
	kept := c.recent[:0]
	var recentAlerts []models.Alert
	for _, r := range c.recent {
		if r.at.Before(cutoff) {
			continue
		}
		kept = append(kept, r)
		recentAlerts = append(recentAlerts, r.alert)
	}
	c.recent = kept
	c.mu.Unlock()

	return correlator.Correlate(alert, recentAlerts)
}

func (c *Coordinator) rememberAlert(alert models.Alert) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, recentAlert{alert: alert, at: time.Now()})
}

// ProcessResolution clears every piece of state tied to a resolved alert's
// identity: its attempt history, its escalation cooldown, and (if it was a
// registered cascade root) its suppression registration (§4.14 resolution
// handling, §8 property 3).
func (c *Coordinator) ProcessResolution(ctx context.Context, alert models.Alert) error {
	instance := models.BuildInstance(alert.AlertName, alert.Labels)
	if err := c.Attempts.ClearAttempts(ctx, alert.AlertName, instance); err != nil {
		return fmt.Errorf("clear attempts: %w", err)
	}
	if err := c.Notifier.ClearEscalation(ctx, alert.AlertName, instance); err != nil {
		return fmt.Errorf("clear escalation cooldown: %w", err)
	}
	if alert.Fingerprint != "" {
		if err := c.Cache.Clear(ctx, alert.Fingerprint); err != nil {
			c.Log.WarnContext(ctx, "clear_fingerprint_cache_failed", "error", err.Error())
		}
	}
	c.Suppressor.ClearRootCause(alert.AlertName)
	return nil
}

// planFromPattern synthesizes a plan directly from a high-confidence
// learned pattern, bypassing the LLM entirely (§4.9, S1).
func planFromPattern(p *models.RemediationPattern, targetHost string) models.Plan {
	host := p.TargetHost
	if host == "" {
		host = targetHost
	}
	return models.Plan{
		Analysis:          fmt.Sprintf("Applying learned pattern for %s (root cause: %s)", p.AlertName, p.RootCause),
		Commands:          append([]string(nil), p.SolutionCommands...),
		Risk:              p.RiskLevel,
		ExpectedOutcome:   "Resolve via previously successful remediation",
		Reasoning:         fmt.Sprintf("Pattern has succeeded %d times with %.0f%% confidence", p.SuccessCount, p.Confidence*100),
		EstimatedDuration: "30 seconds",
		Confidence:        p.Confidence,
		TargetHost:        host,
	}
}

func formatHintsText(h Hints) string {
	var b strings.Builder
	if h.RemediationHint != "" {
		fmt.Fprintf(&b, "Operator hint: %s\n", h.RemediationHint)
	}
	if h.SuggestedRemediation != "" {
		fmt.Fprintf(&b, "Suggested remediation: %s\n", h.SuggestedRemediation)
	}
	if h.RunbookURL != "" {
		fmt.Fprintf(&b, "Runbook: %s\n", h.RunbookURL)
	}
	return b.String()
}

func (c *Coordinator) buildSystemContext(alert models.Alert, hints Hints, targetHost, serviceName, serviceType string, tier models.EffectiveConfidenceTier, pattern *models.RemediationPattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target host: %s\nService: %s (%s)\n", targetHost, serviceName, serviceType)
	if IsCrossSystemAlert(alert) {
		b.WriteString("Note: this alert may involve connectivity between multiple hosts.\n")
	}
	if tier == models.TierContext && pattern != nil {
		fmt.Fprintf(&b, "\nA similar issue was previously resolved with: %s (confidence %.0f%%). Consider it, but re-diagnose before acting.\n",
			strings.Join(pattern.SolutionCommands, "; "), pattern.Confidence*100)
	}
	if c.Runbooks != nil {
		if rb := c.Runbooks.Context(alert.AlertName); rb != "" {
			b.WriteString("\n")
			b.WriteString(rb)
		}
	}
	return b.String()
}
