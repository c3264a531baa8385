package main

import (
	"context"
	"time"

	"github.com/homelab/warden/pkg/api"
	"github.com/homelab/warden/pkg/degradequeue"
	"github.com/homelab/warden/pkg/hostmonitor"
	"github.com/homelab/warden/pkg/models"
	"github.com/homelab/warden/pkg/selfmetrics"
)

// instrumentedCoordinator records self-metrics around the inner
// coordinator's dispatch, keeping pkg/pipeline itself free of any
// Prometheus dependency (it only ever sees its own narrow interfaces).
type instrumentedCoordinator struct {
	inner api.Coordinator
	m     *selfmetrics.Metrics
}

func (c *instrumentedCoordinator) Process(ctx context.Context, alert models.Alert) models.Result {
	c.m.AlertsReceivedTotal.WithLabelValues(alert.AlertName).Inc()
	result := c.inner.Process(ctx, alert)
	c.m.RemediationOutcomesTotal.WithLabelValues(string(result.Outcome)).Inc()
	switch result.Outcome {
	case models.OutcomeEscalated:
		c.m.EscalationsTotal.WithLabelValues(alert.AlertName).Inc()
	case models.OutcomeSuppressed:
		c.m.AlertsSuppressedTotal.WithLabelValues(result.Reason).Inc()
	}
	return result
}

func (c *instrumentedCoordinator) ProcessResolution(ctx context.Context, alert models.Alert) error {
	return c.inner.ProcessResolution(ctx, alert)
}

// runGaugeUpdater periodically refreshes the point-in-time gauges (queue
// depth, online host count) that have no natural increment-on-event hook.
func runGaugeUpdater(ctx context.Context, m *selfmetrics.Metrics, queue *degradequeue.Queue, monitor *hostmonitor.Monitor) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DegradeQueueDepth.Set(float64(queue.Stats().Depth))
			online := 0
			for _, state := range monitor.All() {
				if state.Status == models.HostOnline {
					online++
				}
			}
			m.OnlineHosts.Set(float64(online))
		}
	}
}
