package rollback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/sshexec"
)

type fakeSSH struct {
	results map[string]sshexec.Result
	calls   []string
}

func (f *fakeSSH) Execute(ctx context.Context, host string, cmds []string, timeout time.Duration) sshexec.Result {
	f.calls = append(f.calls, cmds[0])
	if res, ok := f.results[cmds[0]]; ok {
		return res
	}
	return sshexec.Result{Success: true}
}

type fakeStore struct {
	snapshots      map[string]*models.Snapshot
	insertErr      error
	getErr         error
	markRolledBack []string
	cleanupCount   int64
	cleanupErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{snapshots: map[string]*models.Snapshot{}}
}

func (f *fakeStore) Insert(ctx context.Context, s *models.Snapshot) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.snapshots[s.SnapshotID] = s
	return nil
}

func (f *fakeStore) Get(ctx context.Context, id string) (*models.Snapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.snapshots[id], nil
}

func (f *fakeStore) MarkRolledBack(ctx context.Context, id, reason string) error {
	f.markRolledBack = append(f.markRolledBack, id+"/"+reason)
	if s, ok := f.snapshots[id]; ok {
		now := time.Now()
		s.RolledBackAt = &now
		s.RollbackReason = reason
	}
	return nil
}

func (f *fakeStore) CleanupOlderThan(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	return f.cleanupCount, f.cleanupErr
}

func TestSnapshotContainer_PersistsStateJSON(t *testing.T) {
	ssh := &fakeSSH{results: map[string]sshexec.Result{
		"docker inspect app": {Success: true, Outputs: []string{`[{"State":{"Running":true}}]`}, ExitCodes: []int{0}},
	}}
	store := newFakeStore()
	h := New(ssh, store)

	id, err := h.SnapshotContainer(context.Background(), "nexus", "app", "DiskFull alert")

	require.NoError(t, err)
	assert.Contains(t, id, "snap-")
	snap := store.snapshots[id]
	require.NotNil(t, snap)
	assert.Equal(t, "nexus", snap.Host)
	assert.Equal(t, "container", snap.TargetType)
	assert.Equal(t, "app", snap.TargetName)
	assert.Contains(t, snap.StateData, "Running")
}

func TestSnapshotContainer_PersistFailureSurfacesError(t *testing.T) {
	ssh := &fakeSSH{}
	store := newFakeStore()
	store.insertErr = errors.New("db unavailable")
	h := New(ssh, store)

	id, err := h.SnapshotContainer(context.Background(), "nexus", "app", "ctx")

	require.Error(t, err)
	assert.Empty(t, id)
}

func TestRollback_RestartsAndMarksRolledBack(t *testing.T) {
	ssh := &fakeSSH{results: map[string]sshexec.Result{
		"docker restart app": {Success: true, Outputs: []string{"app"}},
	}}
	store := newFakeStore()
	store.snapshots["snap-1"] = &models.Snapshot{SnapshotID: "snap-1", Host: "nexus", TargetType: "container", TargetName: "app"}
	h := New(ssh, store)

	result, err := h.Rollback(context.Background(), "snap-1", "remediation made things worse")

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"snap-1/remediation made things worse"}, store.markRolledBack)
}

func TestRollback_SnapshotNotFound(t *testing.T) {
	store := newFakeStore()
	h := New(&fakeSSH{}, store)

	result, err := h.Rollback(context.Background(), "missing", "reason")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not found")
}

func TestRollback_RejectsNonContainerSnapshot(t *testing.T) {
	store := newFakeStore()
	store.snapshots["snap-2"] = &models.Snapshot{SnapshotID: "snap-2", TargetType: "service"}
	h := New(&fakeSSH{}, store)

	result, err := h.Rollback(context.Background(), "snap-2", "reason")

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not a container snapshot")
}

func TestShouldRollback_RecommendsWhenContainerWasRunning(t *testing.T) {
	store := newFakeStore()
	store.snapshots["snap-3"] = &models.Snapshot{
		SnapshotID: "snap-3",
		TargetType: "container",
		StateData:  `{"inspect": "[{\"State\":{\"Running\":true}}]"}`,
	}
	h := New(&fakeSSH{}, store)

	recommend, reason, err := h.ShouldRollback(context.Background(), "snap-3")

	require.NoError(t, err)
	assert.True(t, recommend)
	assert.Contains(t, reason, "running")
}

func TestShouldRollback_DoesNotRecommendWhenAlreadyRolledBack(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	store.snapshots["snap-4"] = &models.Snapshot{SnapshotID: "snap-4", RolledBackAt: &now}
	h := New(&fakeSSH{}, store)

	recommend, reason, err := h.ShouldRollback(context.Background(), "snap-4")

	require.NoError(t, err)
	assert.False(t, recommend)
	assert.Contains(t, reason, "already rolled back")
}

func TestShouldRollback_NotFound(t *testing.T) {
	store := newFakeStore()
	h := New(&fakeSSH{}, store)

	recommend, reason, err := h.ShouldRollback(context.Background(), "missing")

	require.NoError(t, err)
	assert.False(t, recommend)
	assert.Contains(t, reason, "not found")
}

func TestCleanupOlderThan_DelegatesToStore(t *testing.T) {
	store := newFakeStore()
	store.cleanupCount = 9
	h := New(&fakeSSH{}, store)

	n, err := h.CleanupOlderThan(context.Background(), 24*time.Hour, 100)

	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}
