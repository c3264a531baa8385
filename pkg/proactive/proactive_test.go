package proactive

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
)

type fakePredictor struct {
	pred *Prediction
	err  error
}

func (f *fakePredictor) PredictExhaustion(ctx context.Context, metric, instance string, threshold float64) (*Prediction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pred, nil
}

type fakeRecorder struct {
	recorded []models.ProactiveCheck
	err      error
}

func (f *fakeRecorder) Record(ctx context.Context, c models.ProactiveCheck) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.recorded = append(f.recorded, c)
	return int64(len(f.recorded)), nil
}

type fakeNotifier struct {
	calls []string
	err   error
}

func (f *fakeNotifier) NotifyPredictedExhaustion(ctx context.Context, checkType, target, finding string) error {
	f.calls = append(f.calls, target)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckTarget_NoExhaustionSkipsNotifyAndRecord(t *testing.T) {
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	m := New(&fakePredictor{pred: &Prediction{WillExhaust: false}}, recorder, notifier,
		[]Target{{Host: "nexus"}}, Config{}, testLogger())

	err := m.checkTarget(context.Background(), Target{Host: "nexus", CheckType: models.ProactiveCheckDiskExhaustion})

	require.NoError(t, err)
	assert.Empty(t, recorder.recorded)
	assert.Empty(t, notifier.calls)
}

func TestCheckTarget_ExhaustionWithinHorizonNotifiesAndRecords(t *testing.T) {
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	m := New(&fakePredictor{pred: &Prediction{WillExhaust: true, HoursRemaining: 2, Current: 1 << 30}}, recorder, notifier,
		nil, Config{WarningHorizon: 6 * time.Hour}, testLogger())

	err := m.checkTarget(context.Background(), Target{Host: "nexus", CheckType: models.ProactiveCheckDiskExhaustion})

	require.NoError(t, err)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, "nexus", notifier.calls[0])
	require.Len(t, recorder.recorded, 1)
	assert.Equal(t, "notified", recorder.recorded[0].ActionTaken)
}

func TestCheckTarget_ExhaustionBeyondHorizonRecordsWithoutNotifying(t *testing.T) {
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	m := New(&fakePredictor{pred: &Prediction{WillExhaust: true, HoursRemaining: 48}}, recorder, notifier,
		nil, Config{WarningHorizon: 6 * time.Hour}, testLogger())

	err := m.checkTarget(context.Background(), Target{Host: "nexus", CheckType: models.ProactiveCheckDiskExhaustion})

	require.NoError(t, err)
	assert.Empty(t, notifier.calls)
	require.Len(t, recorder.recorded, 1)
	assert.Empty(t, recorder.recorded[0].ActionTaken)
}

func TestCheckTarget_CooldownSuppressesRepeatNotification(t *testing.T) {
	recorder := &fakeRecorder{}
	notifier := &fakeNotifier{}
	m := New(&fakePredictor{pred: &Prediction{WillExhaust: true, HoursRemaining: 1}}, recorder, notifier,
		nil, Config{WarningHorizon: 6 * time.Hour, NotifyCooldown: time.Hour}, testLogger())

	target := Target{Host: "nexus", CheckType: models.ProactiveCheckDiskExhaustion}
	require.NoError(t, m.checkTarget(context.Background(), target))
	require.NoError(t, m.checkTarget(context.Background(), target))

	assert.Len(t, notifier.calls, 1, "second check within the cooldown window should not renotify")
	assert.Len(t, recorder.recorded, 2, "every cycle still records a check regardless of notify cooldown")
}

func TestCheckTarget_PredictorErrorPropagates(t *testing.T) {
	m := New(&fakePredictor{err: errors.New("metrics backend down")}, &fakeRecorder{}, &fakeNotifier{},
		nil, Config{}, testLogger())

	err := m.checkTarget(context.Background(), Target{Host: "nexus"})

	require.Error(t, err)
}

func TestCheckTarget_RecordErrorPropagates(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	m := New(&fakePredictor{pred: &Prediction{WillExhaust: false}}, recorder, &fakeNotifier{},
		nil, Config{}, testLogger())

	err := m.checkTarget(context.Background(), Target{Host: "nexus"})

	require.Error(t, err)
}

func TestNew_DefaultsZeroValueConfig(t *testing.T) {
	m := New(&fakePredictor{}, &fakeRecorder{}, &fakeNotifier{}, nil, Config{}, nil)

	assert.Equal(t, 15*time.Minute, m.cfg.CheckInterval)
	assert.Equal(t, 6*time.Hour, m.cfg.WarningHorizon)
	assert.Equal(t, 4*time.Hour, m.cfg.NotifyCooldown)
}

func TestRunCycle_ContinuesPastOneTargetError(t *testing.T) {
	recorder := &fakeRecorder{err: errors.New("db down")}
	notifier := &fakeNotifier{}
	predictor := &fakePredictor{pred: &Prediction{WillExhaust: true, HoursRemaining: 1}}
	m := New(predictor, recorder, notifier, []Target{
		{Host: "nexus"}, {Host: "outpost"},
	}, Config{}, testLogger())

	m.runCycle(context.Background())

	assert.Len(t, recorder.recorded, 0)
	assert.Equal(t, []string{"nexus", "outpost"}, notifier.calls)
}
