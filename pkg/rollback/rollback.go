// Package rollback implements the rollback helper (SPEC_FULL.md §3 NEW): a
// pre-change state capture and best-effort restore, invoked by the Pipeline
// Coordinator before executing an actionable plan whose target is a docker
// container, whatever the plan's risk level. Grounded
// on original_source/app/rollback_manager.py's
// snapshot_container_state/rollback_container/should_rollback, simplified to
// container snapshots only (the original's service/config/database snapshot
// types are never populated by its own callers and are dropped here rather
// than carried as dead variants).
package rollback

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/sshexec"
)

// SSHRunner is the subset of *sshexec.Executor the rollback helper needs.
type SSHRunner interface {
	Execute(ctx context.Context, host string, cmds []string, timeout time.Duration) sshexec.Result
}

// SnapshotStore is the subset of *store.Snapshots the rollback helper needs.
type SnapshotStore interface {
	Insert(ctx context.Context, s *models.Snapshot) error
	Get(ctx context.Context, id string) (*models.Snapshot, error)
	MarkRolledBack(ctx context.Context, id, reason string) error
	CleanupOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

const (
	snapshotTimeout = 30 * time.Second
	rollbackTimeout = 60 * time.Second
)

// containerState is the JSON blob stored in Snapshot.StateData.
type containerState struct {
	Inspect    string    `json:"inspect"`
	Logs       string    `json:"logs"`
	CapturedAt time.Time `json:"captured_at"`
	InspectExit int      `json:"inspect_exit"`
	LogsExit    int      `json:"logs_exit"`
}

// Helper captures and restores container state around risky actionable
// commands.
type Helper struct {
	ssh   SSHRunner
	store SnapshotStore
}

// New builds a Helper.
func New(ssh SSHRunner, store SnapshotStore) *Helper {
	return &Helper{ssh: ssh, store: store}
}

// SnapshotContainer captures a container's current inspect output and recent
// logs before a risky change, returning the snapshot ID to pass to Rollback
// if the change goes wrong. A capture failure is non-fatal to the caller: it
// returns an empty ID and the error so the caller can proceed without a
// rollback net rather than block remediation on the snapshot itself.
func (h *Helper) SnapshotContainer(ctx context.Context, host, container, alertContext string) (string, error) {
	inspect := h.ssh.Execute(ctx, host, []string{fmt.Sprintf("docker inspect %s", container)}, snapshotTimeout)
	logs := h.ssh.Execute(ctx, host, []string{fmt.Sprintf("docker logs --tail 100 %s 2>&1", container)}, snapshotTimeout)

	state := containerState{CapturedAt: time.Now(), InspectExit: -1, LogsExit: -1}
	if len(inspect.Outputs) > 0 {
		state.Inspect = inspect.Outputs[0]
	}
	if len(inspect.ExitCodes) > 0 {
		state.InspectExit = inspect.ExitCodes[0]
	}
	if len(logs.Outputs) > 0 {
		state.Logs = logs.Outputs[0]
	}
	if len(logs.ExitCodes) > 0 {
		state.LogsExit = logs.ExitCodes[0]
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot state: %w", err)
	}

	snapshotID := "snap-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	snapshot := &models.Snapshot{
		SnapshotID:   snapshotID,
		Host:         host,
		TargetType:   "container",
		TargetName:   container,
		StateData:    string(stateJSON),
		AlertContext: alertContext,
		CreatedAt:    time.Now(),
	}
	if err := h.store.Insert(ctx, snapshot); err != nil {
		return "", fmt.Errorf("persist snapshot: %w", err)
	}
	return snapshotID, nil
}

// RollbackResult is the outcome of a Rollback call.
type RollbackResult struct {
	Success bool
	Output  string
	Error   string
}

// Rollback restores a container to a known-working state by restarting it,
// the same best-effort mechanism the original uses (a restart clears
// corrupted in-process state and returns the container to its image
// defaults; it does not revert image/config changes).
func (h *Helper) Rollback(ctx context.Context, snapshotID, reason string) (RollbackResult, error) {
	snapshot, err := h.store.Get(ctx, snapshotID)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("load snapshot: %w", err)
	}
	if snapshot == nil {
		return RollbackResult{Success: false, Error: "snapshot not found"}, nil
	}
	if snapshot.TargetType != "container" {
		return RollbackResult{Success: false, Error: "snapshot is not a container snapshot"}, nil
	}

	res := h.ssh.Execute(ctx, snapshot.Host, []string{fmt.Sprintf("docker restart %s", snapshot.TargetName)}, rollbackTimeout)

	if err := h.store.MarkRolledBack(ctx, snapshotID, reason); err != nil {
		return RollbackResult{}, fmt.Errorf("mark snapshot rolled back: %w", err)
	}

	result := RollbackResult{Success: res.Success, Error: res.Error}
	if len(res.Outputs) > 0 {
		result.Output = res.Outputs[0]
	}
	return result, nil
}

// ShouldRollback reports whether the container captured in snapshotID was
// running at capture time, a simple heuristic for whether a rollback is
// likely to help (§3).
func (h *Helper) ShouldRollback(ctx context.Context, snapshotID string) (recommend bool, reason string, err error) {
	snapshot, err := h.store.Get(ctx, snapshotID)
	if err != nil {
		return false, "", fmt.Errorf("load snapshot: %w", err)
	}
	if snapshot == nil {
		return false, "snapshot not found", nil
	}
	if snapshot.RolledBackAt != nil {
		return false, "already rolled back", nil
	}

	var state containerState
	if err := json.Unmarshal([]byte(snapshot.StateData), &state); err != nil {
		return false, fmt.Sprintf("unable to analyze snapshot: %s", err), nil
	}

	var inspect []struct {
		State struct {
			Running bool `json:"Running"`
		} `json:"State"`
	}
	if err := json.Unmarshal([]byte(state.Inspect), &inspect); err != nil || len(inspect) == 0 {
		return false, "unable to parse captured inspect output", nil
	}
	if inspect[0].State.Running {
		return true, "container was running at snapshot time", nil
	}
	return false, "container was not running at snapshot time", nil
}

// CleanupOlderThan deletes snapshots older than retention, in bounded
// batches (§3's 24h default retention).
func (h *Helper) CleanupOlderThan(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	return h.store.CleanupOlderThan(ctx, time.Now().Add(-retention), batchSize)
}
