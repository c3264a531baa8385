// Package selfpreserve implements Self-Preservation (C13): the engine's own
// restart handoff protocol. When a remediation plan requires restarting the
// engine's own container or database, the engine cannot perform that restart
// itself (it would kill its own process mid-command), so it persists its
// in-flight state and hands off to an external orchestrator to perform the
// restart and call back once the engine is healthy again.
// Grounded on original_source/app/self_preservation.py's
// initiate_self_restart/resume_from_handoff/check_pending_handoffs/
// cleanup_stale_handoffs/cancel_handoff/get_restart_command, generalized
// from the original's literal "jarvis"/"n8n" naming (§3, §4.13).
package selfpreserve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/homelab/warden/pkg/apperrors"
	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/orchestrator"
	"github.com/homelab/warden/pkg/store"
)

// HandoffStore is the subset of *store.Handoffs the manager needs.
type HandoffStore interface {
	Create(ctx context.Context, h *models.SelfPreservationHandoff) error
	Get(ctx context.Context, id string) (*models.SelfPreservationHandoff, error)
	ActiveHandoff(ctx context.Context) (*models.SelfPreservationHandoff, error)
	UpdateStatus(ctx context.Context, id string, status models.HandoffStatus, errMsg, externalExecutionID string) error
	CleanupStale(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

// RestartTrigger is the subset of *orchestrator.Client the manager needs.
type RestartTrigger interface {
	TriggerRestart(ctx context.Context, input orchestrator.RestartWorkflowInput) (executionID string, err error)
}

// restartCommands maps each protected target to the SSH command an
// orchestrator workflow runs to perform the restart (§4.13).
var restartCommands = map[models.RestartTarget]string{
	models.RestartEngine:      "docker restart warden",
	models.RestartEngineDB:    "docker restart warden-db && sleep 10 && docker restart warden",
	models.RestartDockerDaemon: "sudo systemctl restart docker",
	models.RestartHost:         "sudo reboot",
}

// RestartCommand returns the SSH command an orchestrator workflow should run
// for target, or a descriptive placeholder for an unknown target.
func RestartCommand(target models.RestartTarget) string {
	if cmd, ok := restartCommands[target]; ok {
		return cmd
	}
	return fmt.Sprintf("echo 'unknown restart target: %s'", target)
}

// Manager owns the handoff lifecycle: at most one active handoff at a time
// (enforced by HandoffStore.Create's advisory lock), triggered via an
// external orchestrator, resumed via the /resume callback (§8 property 10).
type Manager struct {
	store        HandoffStore
	trigger      RestartTrigger
	engineURL    string // this engine's own externally-reachable base URL, for callback_url/health_url
	maxRestarts  int
	log          *slog.Logger
}

// Config bundles the settings New needs.
type Config struct {
	EngineExternalURL string
	MaxRestarts        int
}

// New builds a Manager. trigger may be nil, in which case InitiateRestart
// persists the handoff but leaves it pending for manual follow-up, matching
// the original's "n8n not configured" fallback.
func New(s HandoffStore, trigger RestartTrigger, cfg Config, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	maxRestarts := cfg.MaxRestarts
	if maxRestarts <= 0 {
		maxRestarts = 3
	}
	return &Manager{store: s, trigger: trigger, engineURL: cfg.EngineExternalURL, maxRestarts: maxRestarts, log: log}
}

// InitiateRestart persists a new handoff and triggers the orchestrator's
// restart workflow. Returns store.ErrActiveHandoffExists if one is already
// in flight (§8 property 10): callers should treat that as "already
// handled", not as a failure to retry.
func (m *Manager) InitiateRestart(ctx context.Context, target models.RestartTarget, reason string, remCtx *models.RemediationContext, timeoutMinutes int) (*models.SelfPreservationHandoff, error) {
	if remCtx != nil {
		if remCtx.MaxRestarts <= 0 {
			remCtx.MaxRestarts = m.maxRestarts
		}
		if remCtx.RestartCount >= remCtx.MaxRestarts {
			return nil, apperrors.Invariant("selfpreserve.InitiateRestart",
				fmt.Errorf("restart count %d reached max %d for %s", remCtx.RestartCount, remCtx.MaxRestarts, remCtx.AlertName))
		}
		remCtx.RestartCount++
	}

	handoff := &models.SelfPreservationHandoff{
		HandoffID:     "sp-" + uuid.NewString()[:12],
		RestartTarget: target,
		RestartReason: reason,
		Status:        models.HandoffPending,
		CallbackURL:   m.engineURL + "/resume",
		CreatedAt:     time.Now(),
	}
	if remCtx != nil {
		handoff.RemediationContext = *remCtx
	}

	if err := m.store.Create(ctx, handoff); err != nil {
		if errors.Is(err, store.ErrActiveHandoffExists) {
			return nil, err
		}
		return nil, fmt.Errorf("persist handoff: %w", err)
	}

	m.log.InfoContext(ctx, "self_restart_initiated", "handoff_id", handoff.HandoffID, "target", string(target), "reason", reason)

	if m.trigger == nil {
		m.log.WarnContext(ctx, "orchestrator_not_configured", "handoff_id", handoff.HandoffID)
		return handoff, nil
	}

	execID, err := m.trigger.TriggerRestart(ctx, orchestrator.RestartWorkflowInput{
		HandoffID:       handoff.HandoffID,
		RestartTarget:   string(target),
		RestartCommand:  RestartCommand(target),
		RestartReason:   reason,
		CallbackURL:     handoff.CallbackURL,
		EngineHealthURL: m.engineURL + "/health",
		TimeoutMinutes:  timeoutMinutes,
	})
	if err != nil {
		_ = m.store.UpdateStatus(ctx, handoff.HandoffID, models.HandoffFailed, err.Error(), "")
		return nil, fmt.Errorf("trigger restart workflow: %w", err)
	}

	handoff.ExternalExecutionID = execID
	handoff.Status = models.HandoffInProgress
	if err := m.store.UpdateStatus(ctx, handoff.HandoffID, models.HandoffInProgress, "", execID); err != nil {
		return handoff, fmt.Errorf("update handoff status: %w", err)
	}
	return handoff, nil
}

// ResumeResult is returned by ResumeFromHandoff on success.
type ResumeResult struct {
	HandoffID     string
	RestartTarget models.RestartTarget
	Context       *models.RemediationContext
}

// ResumeFromHandoff completes a handoff after the orchestrator confirms the
// engine is healthy again, returning the saved remediation context (if any)
// so the Pipeline Coordinator can continue where it left off.
func (m *Manager) ResumeFromHandoff(ctx context.Context, handoffID string) (*ResumeResult, error) {
	handoff, err := m.store.Get(ctx, handoffID)
	if err != nil {
		return nil, fmt.Errorf("load handoff: %w", err)
	}
	if handoff == nil {
		return nil, fmt.Errorf("handoff %s not found", handoffID)
	}
	if handoff.Status.Terminal() {
		return nil, fmt.Errorf("handoff %s is in terminal status %s, cannot resume", handoffID, handoff.Status)
	}

	if err := m.store.UpdateStatus(ctx, handoffID, models.HandoffCompleted, "", ""); err != nil {
		return nil, fmt.Errorf("mark handoff completed: %w", err)
	}

	m.log.InfoContext(ctx, "handoff_resumed", "handoff_id", handoffID, "target", string(handoff.RestartTarget))

	result := &ResumeResult{HandoffID: handoffID, RestartTarget: handoff.RestartTarget}
	if handoff.RemediationContext.AlertName != "" {
		rc := handoff.RemediationContext
		result.Context = &rc
	}
	return result, nil
}

// CancelHandoff transitions a non-terminal handoff to cancelled.
func (m *Manager) CancelHandoff(ctx context.Context, handoffID, reason string) error {
	handoff, err := m.store.Get(ctx, handoffID)
	if err != nil {
		return fmt.Errorf("load handoff: %w", err)
	}
	if handoff == nil {
		return fmt.Errorf("handoff %s not found", handoffID)
	}
	if handoff.Status.Terminal() {
		return fmt.Errorf("handoff %s already in terminal status %s", handoffID, handoff.Status)
	}
	return m.store.UpdateStatus(ctx, handoffID, models.HandoffCancelled, reason, "")
}

// CheckPendingHandoff is called on engine startup to detect whether the
// process just came back from a self-restart, per §4.13's startup sequence.
func (m *Manager) CheckPendingHandoff(ctx context.Context) (*models.SelfPreservationHandoff, error) {
	handoff, err := m.store.ActiveHandoff(ctx)
	if err != nil {
		m.log.WarnContext(ctx, "pending_handoff_check_failed", "error", err.Error())
		return nil, nil
	}
	if handoff != nil {
		m.log.InfoContext(ctx, "pending_handoff_found_on_startup", "handoff_id", handoff.HandoffID, "target", string(handoff.RestartTarget))
	}
	return handoff, nil
}

// CleanupStale deletes terminal handoffs older than maxAge, called once at
// startup so an old completed/failed handoff never blocks a fresh one
// (§4.13). The advisory lock in HandoffStore.Create already prevents a
// stuck in-progress handoff from blocking forever once it reaches a terminal
// state; this only reclaims storage.
func (m *Manager) CleanupStale(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	n, err := m.store.CleanupStale(ctx, time.Now().Add(-maxAge), batchSize)
	if err != nil {
		m.log.ErrorContext(ctx, "stale_handoff_cleanup_failed", "error", err.Error())
		return 0, err
	}
	return n, nil
}
