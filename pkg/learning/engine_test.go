package learning

import (
	"context"
	"testing"

	"github.com/homelab/warden/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePatternStore struct {
	patterns      []*models.RemediationPattern
	recordCalls   []int64
	insertCalls   []*models.RemediationPattern
	nextID        int64
	byFingerprint *models.RemediationPattern
}

func (f *fakePatternStore) All(ctx context.Context) ([]*models.RemediationPattern, error) {
	return f.patterns, nil
}

func (f *fakePatternStore) ByFingerprint(ctx context.Context, alertName, symptomFingerprint string) (*models.RemediationPattern, error) {
	return f.byFingerprint, nil
}

func (f *fakePatternStore) Insert(ctx context.Context, p *models.RemediationPattern) (int64, error) {
	f.nextID++
	f.insertCalls = append(f.insertCalls, p)
	return f.nextID, nil
}

func (f *fakePatternStore) RecordOutcome(ctx context.Context, id int64, success bool, commands []string, execDurationSec float64) error {
	f.recordCalls = append(f.recordCalls, id)
	return nil
}

type fakeFailureStore struct {
	recorded []string
	get      *models.FailurePattern
}

func (f *fakeFailureStore) Record(ctx context.Context, signature, alertName, alertInstance, symptomFingerprint string, commands []string, reason string) error {
	f.recorded = append(f.recorded, signature)
	return nil
}

func (f *fakeFailureStore) Get(ctx context.Context, signature string) (*models.FailurePattern, error) {
	return f.get, nil
}

func pattern(alertName, fingerprint string, success, failure int, targetHost string) *models.RemediationPattern {
	return &models.RemediationPattern{
		AlertName:          alertName,
		SymptomFingerprint: fingerprint,
		SuccessCount:       success,
		FailureCount:       failure,
		Confidence:         models.LaplaceConfidence(success, failure),
		TargetHost:         targetHost,
		Enabled:            true,
	}
}

func TestLookup_FiltersByAlertNameAndThresholds(t *testing.T) {
	ps := &fakePatternStore{patterns: []*models.RemediationPattern{
		pattern("ContainerUnhealthy", "ContainerUnhealthy|system:outpost|container:caddy", 5, 0, "outpost"),
		pattern("OtherAlert", "OtherAlert|x:1", 5, 0, ""),
		pattern("ContainerUnhealthy", "ContainerUnhealthy|system:outpost", 1, 0, "outpost"), // below min success count
	}}
	e := New(ps, &fakeFailureStore{})

	candidates, err := e.Lookup(context.Background(), "ContainerUnhealthy", map[string]string{
		"system": "outpost", "container": "caddy",
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "outpost", candidates[0].Pattern.TargetHost)
}

func TestLookup_TargetHostDiscipline(t *testing.T) {
	ps := &fakePatternStore{patterns: []*models.RemediationPattern{
		pattern("BackupStale", "BackupStale|system:outpost", 5, 0, "outpost"),
		pattern("BackupStale", "BackupStale|system:nexus", 5, 0, "nexus"),
		pattern("BackupStale", "BackupStale|category:backup", 5, 0, ""), // generic, skipped when alert has system label
	}}
	e := New(ps, &fakeFailureStore{})

	candidates, err := e.Lookup(context.Background(), "BackupStale", map[string]string{"system": "outpost"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "outpost", candidates[0].Pattern.TargetHost)
}

func TestDecide_TiersByEffectiveConfidence(t *testing.T) {
	ps := &fakePatternStore{patterns: []*models.RemediationPattern{
		pattern("ContainerUnhealthy", "ContainerUnhealthy|system:outpost|container:caddy", 20, 0, "outpost"),
	}}
	e := New(ps, &fakeFailureStore{})

	tier, p, _, err := e.Decide(context.Background(), "ContainerUnhealthy", map[string]string{
		"system": "outpost", "container": "caddy",
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, models.TierDirect, tier)
}

func TestDecide_NoCandidatesIsTierIgnore(t *testing.T) {
	e := New(&fakePatternStore{}, &fakeFailureStore{})
	tier, p, _, err := e.Decide(context.Background(), "Unknown", nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, models.TierIgnore, tier)
}

func TestRecordOutcome_InvalidatesCache(t *testing.T) {
	ps := &fakePatternStore{}
	e := New(ps, &fakeFailureStore{})
	_, _ = e.Lookup(context.Background(), "X", nil) // seeds cachedAt

	require.NoError(t, e.RecordOutcome(context.Background(), 7, true, []string{"docker restart caddy"}, 1.5))
	assert.Equal(t, []int64{7}, ps.recordCalls)
	assert.True(t, e.cachedAt.IsZero())
}

func TestExtractPattern_CreatesNewWhenNoneExists(t *testing.T) {
	ps := &fakePatternStore{}
	e := New(ps, &fakeFailureStore{})
	attempt := &models.RemediationAttempt{
		AlertName:             "ContainerUnhealthy",
		ExecutedCommands:      []string{"docker restart caddy"},
		ExecutionDurationSecs: 2,
		RiskLevel:             models.RiskLow,
		AIAnalysis:            "The container was stuck in a crash loop. Restart fixed it.",
	}
	id, err := e.ExtractPattern(context.Background(), attempt, map[string]string{"system": "outpost", "container": "caddy"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.Len(t, ps.insertCalls, 1)
	assert.Equal(t, "outpost", ps.insertCalls[0].TargetHost)
	assert.Equal(t, "The container was stuck in a crash loop.", ps.insertCalls[0].RootCause)
}

func TestExtractPattern_UpdatesExisting(t *testing.T) {
	existing := pattern("ContainerUnhealthy", "fp", 1, 0, "outpost")
	existing.ID = 42
	ps := &fakePatternStore{byFingerprint: existing}
	e := New(ps, &fakeFailureStore{})
	attempt := &models.RemediationAttempt{AlertName: "ContainerUnhealthy", ExecutedCommands: []string{"docker restart caddy"}}

	id, err := e.ExtractPattern(context.Background(), attempt, map[string]string{"system": "outpost"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, []int64{42}, ps.recordCalls)
	assert.Empty(t, ps.insertCalls)
}

func TestFailureSignature_OrderInsensitiveToCommandOrder(t *testing.T) {
	a := FailureSignature("X", []string{"b", "a"})
	b := FailureSignature("X", []string{"a", "b"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestShouldAvoidCommands(t *testing.T) {
	fs := &fakeFailureStore{get: &models.FailurePattern{FailureCount: 3, FailureReason: "made it worse"}}
	e := New(&fakePatternStore{}, fs)

	avoid, reason, err := e.ShouldAvoidCommands(context.Background(), "X", []string{"a"}, 2)
	require.NoError(t, err)
	assert.True(t, avoid)
	assert.Contains(t, reason, "made it worse")
}

func TestShouldAvoidCommands_BelowThreshold(t *testing.T) {
	fs := &fakeFailureStore{get: &models.FailurePattern{FailureCount: 1}}
	e := New(&fakePatternStore{}, fs)

	avoid, _, err := e.ShouldAvoidCommands(context.Background(), "X", []string{"a"}, 2)
	require.NoError(t, err)
	assert.False(t, avoid)
}

func TestRecordFailure_DelegatesToFailureStore(t *testing.T) {
	fs := &fakeFailureStore{}
	e := New(&fakePatternStore{}, fs)
	require.NoError(t, e.RecordFailure(context.Background(), "X", "inst", "fp", []string{"a"}, "bad"))
	assert.Len(t, fs.recorded, 1)
}
