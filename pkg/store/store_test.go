package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/homelab/warden/pkg/database"
	"github.com/homelab/warden/pkg/models"
)

// newTestStore boots a disposable Postgres container, migrates it via
// database.NewClient (mirroring pkg/database/client_test.go), and wraps the
// result in a Store. Every DAO test in this file shares one container.
func newTestStore(t *testing.T) *Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("warden_test"),
		postgres.WithUsername("warden"),
		postgres.WithPassword("warden"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := database.NewClient(ctx, database.Config{
		URL:             connStr,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		ConnectRetries:  5,
		ConnectBackoff:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return New(client.DB)
}

func TestAlertCache_TryClaim(t *testing.T) {
	s := newTestStore(t)
	d := NewAlertCache(s)
	ctx := context.Background()

	claimed, err := d.TryClaim(ctx, "fp-1", "ContainerDown", "host1:caddy", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed, "first claim within cooldown should succeed")

	claimed, err = d.TryClaim(ctx, "fp-1", "ContainerDown", "host1:caddy", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim within cooldown must be deduplicated")

	require.NoError(t, d.Clear(ctx, "fp-1"))

	claimed, err = d.TryClaim(ctx, "fp-1", "ContainerDown", "host1:caddy", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed, "claim after Clear should succeed again")
}

func TestAlertCache_TryClaim_ExpiredCooldownReclaims(t *testing.T) {
	s := newTestStore(t)
	d := NewAlertCache(s)
	ctx := context.Background()

	claimed, err := d.TryClaim(ctx, "fp-2", "DiskFull", "host2", 0)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Zero cooldown means the very next claim is already "outside" it.
	claimed, err = d.TryClaim(ctx, "fp-2", "DiskFull", "host2", 0)
	require.NoError(t, err)
	assert.True(t, claimed, "a zero-length cooldown should allow reclaiming immediately")
}

func TestEscalationCooldowns(t *testing.T) {
	s := newTestStore(t)
	d := NewEscalationCooldowns(s)
	ctx := context.Background()

	active, ts, err := d.Check(ctx, "Foo", "hostA", time.Hour)
	require.NoError(t, err)
	assert.False(t, active)
	assert.Nil(t, ts)

	require.NoError(t, d.Set(ctx, "Foo", "hostA"))

	active, ts, err = d.Check(ctx, "Foo", "hostA", time.Hour)
	require.NoError(t, err)
	assert.True(t, active)
	require.NotNil(t, ts)

	active, _, err = d.Check(ctx, "Foo", "hostA", 0)
	require.NoError(t, err)
	assert.False(t, active, "zero cooldown should be immediately expired")

	require.NoError(t, d.Clear(ctx, "Foo", "hostA"))
	active, _, err = d.Check(ctx, "Foo", "hostA", time.Hour)
	require.NoError(t, err)
	assert.False(t, active)
}

func TestRemediationLog_InsertAndCount(t *testing.T) {
	s := newTestStore(t)
	d := NewRemediationLog(s)
	ctx := context.Background()

	attempt := &models.RemediationAttempt{
		AlertName:        "ContainerUnhealthy",
		AlertInstance:    "service-host:caddy",
		AlertFingerprint: "fp-3",
		Severity:         "warning",
		AttemptNumber:    1,
		ExecutedCommands: []string{"docker restart caddy"},
		CommandOutputs:   []string{"restarted"},
		ExitCodes:        []int{0},
		Success:          true,
		RiskLevel:        models.RiskLow,
	}
	id, err := d.Insert(ctx, attempt)
	require.NoError(t, err)
	assert.NotZero(t, id)

	n, err := d.CountAttempts(ctx, "ContainerUnhealthy", "service-host:caddy", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Escalation-only marker must not count (§8 property 2).
	marker := &models.RemediationAttempt{
		AlertName:        "ContainerUnhealthy",
		AlertInstance:    "service-host:caddy",
		AlertFingerprint: "fp-3",
		Severity:         "warning",
		AttemptNumber:    2,
		ExecutedCommands: []string{},
		CommandOutputs:   []string{},
		ExitCodes:        []int{},
		Escalated:        true,
		RiskLevel:        models.RiskHigh,
	}
	_, err = d.Insert(ctx, marker)
	require.NoError(t, err)

	n, err = d.CountAttempts(ctx, "ContainerUnhealthy", "service-host:caddy", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "escalation-only marker must not be counted")

	recent, err := d.RecentForIdentity(ctx, "ContainerUnhealthy", "service-host:caddy", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 2, recent[0].AttemptNumber, "most recent first")

	stats, err := d.StatisticsSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 1, stats.Successful)
	assert.Equal(t, 1, stats.Escalated)

	require.NoError(t, d.ClearAttempts(ctx, "ContainerUnhealthy", "service-host:caddy"))
	n, err = d.CountAttempts(ctx, "ContainerUnhealthy", "service-host:caddy", 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "resolution clears attempt rows (§8 property 3)")
}

func TestRemediationLog_Insert_RejectsMismatchedArrays(t *testing.T) {
	s := newTestStore(t)
	d := NewRemediationLog(s)
	ctx := context.Background()

	bad := &models.RemediationAttempt{
		AlertName:        "Foo",
		AlertInstance:    "bar",
		AlertFingerprint: "fp-x",
		ExecutedCommands: []string{"cmd"},
		CommandOutputs:   []string{},
		ExitCodes:        []int{0},
	}
	_, err := d.Insert(ctx, bad)
	assert.ErrorIs(t, err, models.ErrParallelArrayMismatch)
}

func TestMaintenance(t *testing.T) {
	s := newTestStore(t)
	d := NewMaintenance(s)
	ctx := context.Background()

	global, err := d.Start(ctx, "", "fleet patch", "ops")
	require.NoError(t, err)
	assert.Empty(t, global.Host)
	assert.True(t, global.IsActive)

	scoped, err := d.Start(ctx, "service-host", "disk swap", "ops")
	require.NoError(t, err)
	assert.Equal(t, "service-host", scoped.Host)

	active, err := d.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, d.IncrementSuppressed(ctx, global.ID))
	active, err = d.Active(ctx)
	require.NoError(t, err)
	for _, w := range active {
		if w.ID == global.ID {
			assert.Equal(t, 1, w.SuppressedCount)
		}
	}

	require.NoError(t, d.End(ctx, scoped.ID))
	active, err = d.Active(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	err = d.End(ctx, scoped.ID)
	assert.Error(t, err, "ending an already-ended window should fail")
}

func TestPatterns_InsertLookupAndOutcome(t *testing.T) {
	s := newTestStore(t)
	d := NewPatterns(s)
	ctx := context.Background()

	p := &models.RemediationPattern{
		AlertName:          "ContainerUnhealthy",
		Category:           "container",
		SymptomFingerprint: "ContainerUnhealthy|system:service-host|container:caddy",
		RootCause:          "stuck healthcheck",
		SolutionCommands:   []string{"docker restart caddy"},
		SuccessCount:       1,
		FailureCount:       0,
		Confidence:         0.9,
		RiskLevel:          models.RiskLow,
		UsageCount:         1,
		TargetHost:         "service-host",
		Enabled:            true,
	}
	id, err := d.Insert(ctx, p)
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := d.ByFingerprint(ctx, "ContainerUnhealthy", p.SymptomFingerprint)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "service-host", got.TargetHost)
	assert.Equal(t, []string{"docker restart caddy"}, got.SolutionCommands)

	byAlert, err := d.ByAlertName(ctx, "ContainerUnhealthy")
	require.NoError(t, err)
	require.Len(t, byAlert, 1)

	all, err := d.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	fetched, err := d.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, p.RootCause, fetched.RootCause)

	before, err := d.Get(ctx, id)
	require.NoError(t, err)
	require.NoError(t, d.RecordOutcome(ctx, id, true, []string{"docker restart caddy"}, 2.5))
	after, err := d.Get(ctx, id)
	require.NoError(t, err)
	assert.Greater(t, after.Confidence, before.Confidence, "confidence must increase after a success (§8 property 7)")

	beforeFail := after
	require.NoError(t, d.RecordOutcome(ctx, id, false, []string{"docker restart caddy"}, 1.0))
	afterFail, err := d.Get(ctx, id)
	require.NoError(t, err)
	assert.Less(t, afterFail.Confidence, beforeFail.Confidence, "confidence must decrease after a failure (§8 property 7)")

	missing, err := d.Get(ctx, id+999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFailures_RecordIsIdempotentAndCounts(t *testing.T) {
	s := newTestStore(t)
	d := NewFailures(s)
	ctx := context.Background()

	sig := "sig-1"
	require.NoError(t, d.Record(ctx, sig, "FooDown", "hostA", "FooDown|hostA", []string{"systemctl restart foo"}, "still firing"))

	got, err := d.Get(ctx, sig)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.FailureCount)

	require.NoError(t, d.Record(ctx, sig, "FooDown", "hostA", "FooDown|hostA", []string{"systemctl restart foo"}, "still firing"))
	got, err = d.Get(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FailureCount, "repeat failures of the same signature increment the counter")

	missing, err := d.Get(ctx, "no-such-signature")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHandoffs_MutualExclusionAndLifecycle(t *testing.T) {
	s := newTestStore(t)
	d := NewHandoffs(s)
	ctx := context.Background()

	h1 := &models.SelfPreservationHandoff{
		HandoffID:     "h1",
		RestartTarget: models.RestartEngineDB,
		RestartReason: "corruption",
		Status:        models.HandoffPending,
		CallbackURL:   "http://orchestrator/callback",
		RemediationContext: models.RemediationContext{
			AlertName: "DBDown",
			MaxRestarts: 2,
		},
	}
	require.NoError(t, d.Create(ctx, h1))

	h2 := &models.SelfPreservationHandoff{
		HandoffID:     "h2",
		RestartTarget: models.RestartEngine,
		RestartReason: "oom",
		Status:        models.HandoffPending,
	}
	err := d.Create(ctx, h2)
	assert.ErrorIs(t, err, ErrActiveHandoffExists, "a second non-terminal handoff must be rejected (§8 property 10)")

	active, err := d.ActiveHandoff(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "h1", active.HandoffID)

	got, err := d.Get(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "DBDown", got.RemediationContext.AlertName)
	assert.Equal(t, 2, got.RemediationContext.MaxRestarts)

	require.NoError(t, d.UpdateStatus(ctx, "h1", models.HandoffCompleted, "", "exec-123"))

	completed, err := d.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, models.HandoffCompleted, completed.Status)
	assert.Equal(t, "exec-123", completed.ExternalExecutionID)
	require.NotNil(t, completed.CompletedAt)

	active, err = d.ActiveHandoff(ctx)
	require.NoError(t, err)
	assert.Nil(t, active, "no non-terminal handoff remains")

	// Now that h1 is terminal, a new handoff may be created.
	require.NoError(t, d.Create(ctx, h2))
}

func TestHandoffs_CleanupStale(t *testing.T) {
	s := newTestStore(t)
	d := NewHandoffs(s)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h := &models.SelfPreservationHandoff{
			HandoffID:     "stale-" + string(rune('a'+i)),
			RestartTarget: models.RestartHost,
			Status:        models.HandoffPending,
		}
		require.NoError(t, d.Create(ctx, h))
		require.NoError(t, d.UpdateStatus(ctx, h.HandoffID, models.HandoffFailed, "boom", ""))
	}

	n, err := d.CleanupStale(ctx, time.Now().Add(time.Hour), 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n, "cleanup is bounded to the requested batch size")

	n, err = d.CleanupStale(ctx, time.Now().Add(time.Hour), 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "remaining stale row is cleaned up on the next pass")
}

func TestHostStatusLog(t *testing.T) {
	s := newTestStore(t)
	d := NewHostStatusLog(s)
	ctx := context.Background()

	require.NoError(t, d.Record(ctx, models.HostState{
		Host:          "service-host",
		Status:        models.HostOnline,
		FailureCount:  0,
		LastSuccessAt: time.Now(),
		LastAttemptAt: time.Now(),
	}, ""))

	require.NoError(t, d.Record(ctx, models.HostState{
		Host:          "service-host",
		Status:        models.HostOffline,
		FailureCount:  3,
		LastAttemptAt: time.Now(),
	}, "connection refused"))

	recent, err := d.Recent(ctx, "service-host", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.HostOffline, recent[0].Status, "most recent first")
	assert.Equal(t, "connection refused", recent[0].Error)
}

func TestSnapshots(t *testing.T) {
	s := newTestStore(t)
	d := NewSnapshots(s)
	ctx := context.Background()

	snap := &models.Snapshot{
		SnapshotID: "snap-1",
		Host:       "service-host",
		TargetType: "container",
		TargetName: "caddy",
		StateData:  `{"running":true}`,
	}
	require.NoError(t, d.Insert(ctx, snap))

	got, err := d.Get(ctx, "snap-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "caddy", got.TargetName)
	assert.Nil(t, got.RolledBackAt)

	require.NoError(t, d.MarkRolledBack(ctx, "snap-1", "restart failed to recover"))
	got, err = d.Get(ctx, "snap-1")
	require.NoError(t, err)
	require.NotNil(t, got.RolledBackAt)
	assert.Equal(t, "restart failed to recover", got.RollbackReason)

	missing, err := d.Get(ctx, "no-such-snapshot")
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := d.CleanupOlderThan(ctx, time.Now().Add(time.Hour), 100)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestProactiveChecks(t *testing.T) {
	s := newTestStore(t)
	d := NewProactiveChecks(s)
	ctx := context.Background()

	id, err := d.Record(ctx, models.ProactiveCheck{
		CheckType:   models.ProactiveCheckDiskExhaustion,
		Target:      "service-host:/",
		Finding:     "6h to full at current rate",
		ActionTaken: "notified",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = d.Record(ctx, models.ProactiveCheck{
		CheckType: models.ProactiveCheckMemoryExhaustion,
		Target:    "service-host",
		Finding:   "within horizon but no action taken",
	})
	require.NoError(t, err)

	recent, err := d.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, models.ProactiveCheckMemoryExhaustion, recent[0].CheckType, "most recent first")
}
