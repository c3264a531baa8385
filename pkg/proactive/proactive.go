// Package proactive implements the Proactive Monitor: a periodic job that
// checks a configured set of metrics for predicted resource exhaustion
// before they ever fire an alert, and escalates early when one is found.
// Grounded on original_source/app/proactive_monitor.py's
// check_disk_fill_rates/check_memory_trends polling loop, scheduled with
// robfig/cron/v3 (adopted from marcus-qen-infraagent's go.mod, per
// SPEC_FULL.md §4.15) instead of the original's bespoke asyncio sleep loop.
package proactive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/homelab/warden/pkg/models"
)

// Predictor is the subset of *metricsclient.Client the monitor needs.
type Predictor interface {
	PredictExhaustion(ctx context.Context, metric, instance string, threshold float64) (*Prediction, error)
}

// Prediction mirrors metricsclient.ExhaustionPrediction so this package
// doesn't need to import metricsclient; callers pass an adapter (or the
// client directly, if its method already returns this shape).
type Prediction struct {
	WillExhaust    bool
	Current        float64
	Threshold      float64
	HoursRemaining float64
	TrendPerHour   float64
}

// Recorder is the subset of *store.ProactiveChecks the monitor needs.
type Recorder interface {
	Record(ctx context.Context, c models.ProactiveCheck) (int64, error)
}

// Notifier is the subset of *escalation.Notifier the monitor needs to
// announce a predicted exhaustion.
type Notifier interface {
	NotifyPredictedExhaustion(ctx context.Context, checkType, target, finding string) error
}

// Target is one metric/instance/threshold triple checked on each cycle.
type Target struct {
	CheckType models.ProactiveCheckType
	Metric    string
	Instance  string
	Host      string // human-readable host name for the check log and notification
	Threshold float64
}

// Config bundles the monitor's tunables.
type Config struct {
	CheckInterval    time.Duration // how often the cron schedule fires
	WarningHorizon   time.Duration // notify only if predicted exhaustion is within this horizon
	NotifyCooldown   time.Duration // suppress repeat notifications for the same target within this window
}

// Monitor periodically predicts resource exhaustion for a fixed list of
// targets and escalates early when one is imminent (§4.16).
type Monitor struct {
	predictor Predictor
	recorder  Recorder
	notifier  Notifier
	targets   []Target
	cfg       Config
	log       *slog.Logger

	cr *cron.Cron

	mu       sync.Mutex
	notified map[string]time.Time
}

// New builds a Monitor. cfg zero values default to a 15 minute interval, a
// 6 hour warning horizon, and a 4 hour notification cooldown, matching the
// original's defaults.
func New(predictor Predictor, recorder Recorder, notifier Notifier, targets []Target, cfg Config, log *slog.Logger) *Monitor {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 15 * time.Minute
	}
	if cfg.WarningHorizon <= 0 {
		cfg.WarningHorizon = 6 * time.Hour
	}
	if cfg.NotifyCooldown <= 0 {
		cfg.NotifyCooldown = 4 * time.Hour
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		predictor: predictor,
		recorder:  recorder,
		notifier:  notifier,
		targets:   targets,
		cfg:       cfg,
		log:       log,
		notified:  make(map[string]time.Time),
	}
}

// Start schedules the check cycle on a cron.Cron and runs it immediately
// once, matching the original's "check on startup, then on interval"
// behavior.
func (m *Monitor) Start(ctx context.Context) error {
	m.cr = cron.New()
	spec := fmt.Sprintf("@every %s", m.cfg.CheckInterval)
	if _, err := m.cr.AddFunc(spec, func() { m.runCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule proactive check cycle: %w", err)
	}
	m.cr.Start()
	go m.runCycle(ctx)
	return nil
}

// Stop cancels the schedule and waits for any in-flight cycle to finish.
func (m *Monitor) Stop() {
	if m.cr != nil {
		<-m.cr.Stop().Done()
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	for _, t := range m.targets {
		if err := m.checkTarget(ctx, t); err != nil {
			m.log.WarnContext(ctx, "proactive_check_failed", "check_type", string(t.CheckType), "target", t.Host, "error", err.Error())
		}
	}
}

func (m *Monitor) checkTarget(ctx context.Context, t Target) error {
	prediction, err := m.predictor.PredictExhaustion(ctx, t.Metric, t.Instance, t.Threshold)
	if err != nil {
		return err
	}
	if !prediction.WillExhaust {
		return nil
	}

	finding := fmt.Sprintf("%s on %s predicted to exhaust in %.1fh (current %.2f, threshold %.2f)",
		t.Metric, t.Host, prediction.HoursRemaining, prediction.Current, t.Threshold)

	var action string
	withinHorizon := time.Duration(prediction.HoursRemaining*float64(time.Hour)) < m.cfg.WarningHorizon
	if withinHorizon && m.shouldNotify(t.Host) {
		if err := m.notifier.NotifyPredictedExhaustion(ctx, string(t.CheckType), t.Host, finding); err != nil {
			m.log.WarnContext(ctx, "proactive_notify_failed", "target", t.Host, "error", err.Error())
		} else {
			action = "notified"
		}
	}

	if _, err := m.recorder.Record(ctx, models.ProactiveCheck{
		CheckType:   t.CheckType,
		Target:      t.Host,
		Finding:     finding,
		ActionTaken: action,
	}); err != nil {
		return fmt.Errorf("record proactive check: %w", err)
	}
	return nil
}

func (m *Monitor) shouldNotify(issueKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.notified[issueKey]; ok && time.Since(last) < m.cfg.NotifyCooldown {
		return false
	}
	m.notified[issueKey] = time.Now()
	return true
}
