// Package suppressor implements the Alert Suppressor (C7): offline-host,
// cascade-parent, and maintenance-window suppression gates, tried in that
// order (§4.7).
package suppressor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/store"
)

// HostAvailability reports whether a host is currently available for
// remediation, implemented by *hostmonitor.Monitor.
type HostAvailability interface {
	IsAvailable(host string) bool
}

// Notifier emits a single consolidated notification, used for periodic
// per-host suppression summaries rather than per-alert spam (§4.7).
type Notifier interface {
	NotifySuppressionSummary(host string, count int)
}

// cascadeChildren is the reverse of correlator's cascade table: for a given
// root-cause alert name, which children are suppressed while it is active
// (§4.7 rule 2). Kept local (not imported from pkg/correlator) because the
// Suppressor and Correlator are independent consumers of the same cascade
// knowledge per §4.8's note that the two components' decisions are separate
// and advisory with respect to each other.
var cascadeChildren = map[string][]string{
	"WireGuardVPNDown": {"OutpostDown", "AutomationDown"},
	"ReverseProxyDown":  {"ContainerUnhealthy", "ServiceUnreachable"},
}

// Decision is the outcome of a suppression check.
type Decision struct {
	Suppressed bool
	Reason     string
}

// Suppressor holds the in-memory registry of active root-cause alerts
// alongside per-host suppression counters, and gates against maintenance
// windows via the store.
type Suppressor struct {
	hosts       HostAvailability
	maintenance *store.Maintenance
	notifier    Notifier

	mu          sync.Mutex
	activeRoots map[string]bool // alert_name -> registered active root cause
	hostCounts  map[string]int  // host -> suppressed count since last summary flush
}

// New builds a Suppressor.
func New(hosts HostAvailability, maintenance *store.Maintenance, notifier Notifier) *Suppressor {
	return &Suppressor{
		hosts:       hosts,
		maintenance: maintenance,
		notifier:    notifier,
		activeRoots: make(map[string]bool),
		hostCounts:  make(map[string]int),
	}
}

// RegisterRootCause marks alertName as an active root cause, suppressing its
// registered cascade children until ClearRootCause is called (§4.7).
func (s *Suppressor) RegisterRootCause(alertName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeRoots[alertName] = true
}

// ClearRootCause removes alertName from the active root-cause registry, used
// when its alert resolves (§4.7).
func (s *Suppressor) ClearRootCause(alertName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeRoots, alertName)
}

// Check applies the three suppression rules in order against alert, whose
// target host has already been determined by the Pipeline's routing step.
func (s *Suppressor) Check(ctx context.Context, alert models.Alert, targetHost string) (Decision, error) {
	if dec := s.offlineHostCheck(targetHost); dec.Suppressed {
		return dec, nil
	}
	if dec := s.cascadeCheck(alert); dec.Suppressed {
		return dec, nil
	}
	return s.maintenanceCheck(ctx, alert, targetHost)
}

func (s *Suppressor) offlineHostCheck(host string) Decision {
	if host == "" || s.hosts == nil || s.hosts.IsAvailable(host) {
		return Decision{}
	}
	s.mu.Lock()
	s.hostCounts[host]++
	s.mu.Unlock()
	return Decision{Suppressed: true, Reason: fmt.Sprintf("host %s is offline", host)}
}

func (s *Suppressor) cascadeCheck(alert models.Alert) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	for root := range s.activeRoots {
		children, ok := cascadeChildren[root]
		if !ok {
			continue
		}
		for _, child := range children {
			if child == alert.AlertName {
				return Decision{Suppressed: true, Reason: fmt.Sprintf("Cascading from %s", root)}
			}
		}
	}
	return Decision{}
}

func (s *Suppressor) maintenanceCheck(ctx context.Context, alert models.Alert, targetHost string) (Decision, error) {
	windows, err := s.maintenance.Active(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("check maintenance windows: %w", err)
	}
	for _, w := range windows {
		if !w.Active() || !w.Matches(targetHost) {
			continue
		}
		if err := s.maintenance.IncrementSuppressed(ctx, w.ID); err != nil {
			slog.Warn("failed to increment maintenance window suppression counter", "window_id", w.ID, "error", err)
		}
		reason := "maintenance window active"
		if w.Reason != "" {
			reason = "maintenance window active: " + w.Reason
		}
		return Decision{Suppressed: true, Reason: reason}, nil
	}
	return Decision{}, nil
}

// FlushSummaries returns and resets the accumulated per-host suppression
// counts, emitting one consolidated notification per host with a nonzero
// count instead of per-alert spam (§4.7). Intended to be called by a
// periodic background task.
func (s *Suppressor) FlushSummaries() {
	s.mu.Lock()
	counts := s.hostCounts
	s.hostCounts = make(map[string]int)
	s.mu.Unlock()

	if s.notifier == nil {
		return
	}
	for host, count := range counts {
		if count > 0 {
			s.notifier.NotifySuppressionSummary(host, count)
		}
	}
}

// RunSummaryLoop periodically flushes suppression summaries until ctx is
// cancelled.
func (s *Suppressor) RunSummaryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.FlushSummaries()
		}
	}
}
