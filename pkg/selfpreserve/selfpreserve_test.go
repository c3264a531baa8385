package selfpreserve

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/orchestrator"
	"github.com/homelab/warden/pkg/store"
)

type fakeStore struct {
	handoffs       map[string]*models.SelfPreservationHandoff
	createErr      error
	activeErr      error
	active         *models.SelfPreservationHandoff
	cleanupCount   int64
	cleanupErr     error
	lastUpdateArgs []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{handoffs: map[string]*models.SelfPreservationHandoff{}}
}

func (f *fakeStore) Create(ctx context.Context, h *models.SelfPreservationHandoff) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.handoffs[h.HandoffID] = h
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*models.SelfPreservationHandoff, error) {
	h, ok := f.handoffs[id]
	if !ok {
		return nil, nil
	}
	return h, nil
}

func (f *fakeStore) ActiveHandoff(ctx context.Context) (*models.SelfPreservationHandoff, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.active, nil
}

func (f *fakeStore) UpdateStatus(ctx context.Context, id string, status models.HandoffStatus, errMsg, externalExecutionID string) error {
	f.lastUpdateArgs = []string{id, string(status), errMsg, externalExecutionID}
	if h, ok := f.handoffs[id]; ok {
		h.Status = status
		h.Error = errMsg
		h.ExternalExecutionID = externalExecutionID
	}
	return nil
}

func (f *fakeStore) CleanupStale(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return f.cleanupCount, f.cleanupErr
}

type fakeTrigger struct {
	execID string
	err    error
	got    orchestrator.RestartWorkflowInput
}

func (f *fakeTrigger) TriggerRestart(ctx context.Context, input orchestrator.RestartWorkflowInput) (string, error) {
	f.got = input
	if f.err != nil {
		return "", f.err
	}
	return f.execID, nil
}

func newTestManager(s HandoffStore, trigger RestartTrigger) *Manager {
	return New(s, trigger, Config{EngineExternalURL: "http://warden:8080", MaxRestarts: 3}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRestartCommand_KnownTargets(t *testing.T) {
	assert.Equal(t, "docker restart warden", RestartCommand(models.RestartEngine))
	assert.Contains(t, RestartCommand(models.RestartEngineDB), "warden-db")
	assert.Contains(t, RestartCommand(models.RestartHost), "reboot")
}

func TestRestartCommand_UnknownTargetIsDescriptive(t *testing.T) {
	cmd := RestartCommand(models.RestartTarget("bogus"))
	assert.Contains(t, cmd, "unknown restart target")
}

func TestInitiateRestart_PersistsAndTriggers(t *testing.T) {
	s := newFakeStore()
	trigger := &fakeTrigger{execID: "exec-1"}
	m := newTestManager(s, trigger)

	handoff, err := m.InitiateRestart(context.Background(), models.RestartEngine, "disk full", nil, 10)

	require.NoError(t, err)
	assert.Equal(t, models.HandoffInProgress, handoff.Status)
	assert.Equal(t, "exec-1", handoff.ExternalExecutionID)
	assert.Equal(t, "http://warden:8080/resume", trigger.got.CallbackURL)
	assert.Equal(t, "http://warden:8080/health", trigger.got.EngineHealthURL)
}

func TestInitiateRestart_NilTriggerLeavesHandoffPending(t *testing.T) {
	s := newFakeStore()
	m := newTestManager(s, nil)

	handoff, err := m.InitiateRestart(context.Background(), models.RestartEngine, "disk full", nil, 10)

	require.NoError(t, err)
	assert.Equal(t, models.HandoffPending, handoff.Status)
}

func TestInitiateRestart_ActiveHandoffAlreadyExists(t *testing.T) {
	s := newFakeStore()
	s.createErr = store.ErrActiveHandoffExists
	m := newTestManager(s, &fakeTrigger{})

	_, err := m.InitiateRestart(context.Background(), models.RestartEngine, "disk full", nil, 10)

	require.ErrorIs(t, err, store.ErrActiveHandoffExists)
}

func TestInitiateRestart_RejectsWhenRestartCountReachesMax(t *testing.T) {
	s := newFakeStore()
	m := newTestManager(s, &fakeTrigger{})

	remCtx := &models.RemediationContext{AlertName: "DiskFull", RestartCount: 3, MaxRestarts: 3}
	_, err := m.InitiateRestart(context.Background(), models.RestartEngine, "disk full", remCtx, 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "reached max")
}

func TestInitiateRestart_TriggerFailureMarksHandoffFailed(t *testing.T) {
	s := newFakeStore()
	trigger := &fakeTrigger{err: errors.New("orchestrator unreachable")}
	m := newTestManager(s, trigger)

	_, err := m.InitiateRestart(context.Background(), models.RestartEngine, "disk full", nil, 10)

	require.Error(t, err)
	assert.Equal(t, string(models.HandoffFailed), s.lastUpdateArgs[1])
}

func TestResumeFromHandoff_ReturnsSavedContext(t *testing.T) {
	s := newFakeStore()
	s.handoffs["h-1"] = &models.SelfPreservationHandoff{
		HandoffID:     "h-1",
		RestartTarget: models.RestartEngine,
		Status:        models.HandoffInProgress,
		RemediationContext: models.RemediationContext{
			AlertName: "DiskFull", AttemptNumber: 2,
		},
	}
	m := newTestManager(s, nil)

	result, err := m.ResumeFromHandoff(context.Background(), "h-1")

	require.NoError(t, err)
	require.NotNil(t, result.Context)
	assert.Equal(t, "DiskFull", result.Context.AlertName)
	assert.Equal(t, models.HandoffCompleted, s.handoffs["h-1"].Status)
}

func TestResumeFromHandoff_NotFound(t *testing.T) {
	s := newFakeStore()
	m := newTestManager(s, nil)

	_, err := m.ResumeFromHandoff(context.Background(), "missing")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResumeFromHandoff_RejectsTerminalHandoff(t *testing.T) {
	s := newFakeStore()
	s.handoffs["h-1"] = &models.SelfPreservationHandoff{HandoffID: "h-1", Status: models.HandoffCompleted}
	m := newTestManager(s, nil)

	_, err := m.ResumeFromHandoff(context.Background(), "h-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal status")
}

func TestCancelHandoff_TransitionsToCancelled(t *testing.T) {
	s := newFakeStore()
	s.handoffs["h-1"] = &models.SelfPreservationHandoff{HandoffID: "h-1", Status: models.HandoffInProgress}
	m := newTestManager(s, nil)

	require.NoError(t, m.CancelHandoff(context.Background(), "h-1", "operator aborted"))
	assert.Equal(t, models.HandoffCancelled, s.handoffs["h-1"].Status)
}

func TestCheckPendingHandoff_ReturnsActive(t *testing.T) {
	s := newFakeStore()
	s.active = &models.SelfPreservationHandoff{HandoffID: "h-2", Status: models.HandoffInProgress}
	m := newTestManager(s, nil)

	handoff, err := m.CheckPendingHandoff(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "h-2", handoff.HandoffID)
}

func TestCheckPendingHandoff_SwallowsStoreError(t *testing.T) {
	s := newFakeStore()
	s.activeErr = errors.New("db down")
	m := newTestManager(s, nil)

	handoff, err := m.CheckPendingHandoff(context.Background())

	require.NoError(t, err)
	assert.Nil(t, handoff)
}

func TestCleanupStale_ReturnsCount(t *testing.T) {
	s := newFakeStore()
	s.cleanupCount = 4
	m := newTestManager(s, nil)

	n, err := m.CleanupStale(context.Background(), 24*time.Hour, 50)

	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}
