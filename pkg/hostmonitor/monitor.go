// Package hostmonitor implements the Host Monitor (C6): an in-memory
// ONLINE/OFFLINE/CHECKING state machine per host, fed by the SSH Executor's
// connection attempts and driving the Alert Suppressor's offline-host gate.
package hostmonitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/sshexec"
)

// offlineThreshold is the consecutive-failure count that demotes a host to
// OFFLINE (§4.6).
const offlineThreshold = 3

// Notifier is the subset of the escalation sink the monitor needs to emit
// offline/recovery notifications without importing pkg/escalation directly.
type Notifier interface {
	NotifyHostStatus(host string, status models.HostStatus, detail string)
}

// Pinger probes a host without running a full command batch, used by the
// recovery loop. Implemented by *sshexec.Executor via Ping.
type Pinger interface {
	Ping(ctx context.Context, host string) error
}

// Recorder persists host status transitions to the audit log.
type Recorder interface {
	Record(ctx context.Context, h models.HostState, errMsg string) error
}

// Monitor tracks per-host availability and notifies on state transitions. It
// satisfies sshexec.ConnectionObserver.
type Monitor struct {
	notifier Notifier
	pinger   Pinger
	recorder Recorder
	interval time.Duration

	mu     sync.RWMutex
	states map[string]*models.HostState

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ sshexec.ConnectionObserver = (*Monitor)(nil)

// New builds a Monitor seeded ONLINE for every known host (§4.6: "the
// Pipeline treats unknown hosts as available" implies a new, never-contacted
// host starts available too).
func New(hosts []string, notifier Notifier, pinger Pinger, recorder Recorder, recoveryInterval time.Duration) *Monitor {
	states := make(map[string]*models.HostState, len(hosts))
	for _, h := range hosts {
		states[h] = &models.HostState{Host: h, Status: models.HostOnline}
	}
	return &Monitor{
		notifier: notifier,
		pinger:   pinger,
		recorder: recorder,
		interval: recoveryInterval,
		states:   states,
		stopCh:   make(chan struct{}),
	}
}

// RecordConnectionAttempt implements sshexec.ConnectionObserver, driving the
// ONLINE/OFFLINE transition on SSH connect success/failure (§4.6).
func (m *Monitor) RecordConnectionAttempt(host string, success bool, errMsg string) {
	m.mu.Lock()
	st, ok := m.states[host]
	if !ok {
		st = &models.HostState{Host: host, Status: models.HostOnline}
		m.states[host] = st
	}

	var transitioned bool
	var toNotify models.HostStatus

	if success {
		st.LastSuccessAt = time.Now()
		st.LastAttemptAt = st.LastSuccessAt
		st.Error = ""
		wasOffline := st.Status == models.HostOffline
		st.FailureCount = 0
		st.Status = models.HostOnline
		if wasOffline {
			transitioned = true
			toNotify = models.HostOnline
		}
	} else {
		st.LastAttemptAt = time.Now()
		st.Error = errMsg
		st.FailureCount++
		if st.FailureCount >= offlineThreshold && st.Status != models.HostOffline {
			st.Status = models.HostOffline
			transitioned = true
			toNotify = models.HostOffline
		}
	}
	snapshot := *st
	m.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.Record(context.Background(), snapshot, errMsg); err != nil {
			slog.Warn("failed to record host status transition", "host", host, "error", err)
		}
	}
	if transitioned && m.notifier != nil {
		m.notifier.NotifyHostStatus(host, toNotify, errMsg)
	}
}

// IsAvailable reports whether remediation may target host: true for ONLINE
// and CHECKING, false for OFFLINE. Unknown hosts are treated as available
// (§4.6).
func (m *Monitor) IsAvailable(host string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[host]
	if !ok {
		return true
	}
	return st.IsAvailable()
}

// State returns a copy of the current state for host, or a zero-value
// ONLINE state if the host is unknown.
func (m *Monitor) State(host string) models.HostState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.states[host]; ok {
		return *st
	}
	return models.HostState{Host: host, Status: models.HostOnline}
}

// All returns a snapshot of every tracked host's state.
func (m *Monitor) All() []models.HostState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.HostState, 0, len(m.states))
	for _, st := range m.states {
		out = append(out, *st)
	}
	return out
}

// Start launches the recovery-ping background loop (§4.6, §5 background
// task (b)): every interval, OFFLINE hosts are pinged; success moves them to
// CHECKING (the next real SSH call confirms ONLINE).
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.checkOfflineHosts(ctx)
			}
		}
	}()
}

// Stop halts the recovery loop and waits for it to exit. Safe to call
// multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) checkOfflineHosts(ctx context.Context) {
	m.mu.RLock()
	var offline []string
	for host, st := range m.states {
		if st.Status == models.HostOffline {
			offline = append(offline, host)
		}
	}
	m.mu.RUnlock()

	for _, host := range offline {
		if m.pinger == nil {
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := m.pinger.Ping(pingCtx, host)
		cancel()
		if err != nil {
			continue
		}

		m.mu.Lock()
		if st, ok := m.states[host]; ok && st.Status == models.HostOffline {
			st.Status = models.HostChecking
		}
		m.mu.Unlock()
		slog.Info("offline host responded to recovery ping, moving to CHECKING", "host", host)
	}
}
