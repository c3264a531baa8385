// Package selfmetrics exposes the engine's own operational metrics in
// Prometheus text format (§4.15's "Self-metrics"), grounded on the
// prometheus/client_golang CounterVec/HistogramVec style used across the
// examples pack (e.g. aavishay-right-sizer's metrics.OperatorMetrics),
// adapted to Pipeline Coordinator outcomes, SSH latency, validator
// rejections, and queue depth instead of Kubernetes resource adjustments.
package selfmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the engine registers.
type Metrics struct {
	AlertsReceivedTotal      *prometheus.CounterVec
	AlertsSuppressedTotal    *prometheus.CounterVec
	RemediationAttemptsTotal *prometheus.CounterVec
	RemediationOutcomesTotal *prometheus.CounterVec
	EscalationsTotal         *prometheus.CounterVec
	ValidatorRejectionsTotal *prometheus.CounterVec

	SSHCallDuration     *prometheus.HistogramVec
	LLMCallDuration     prometheus.Histogram
	PipelineDuration    *prometheus.HistogramVec

	DegradeQueueDepth prometheus.Gauge
	ActiveHandoffs    prometheus.Gauge
	OnlineHosts       prometheus.Gauge
}

// New creates and registers every collector against reg. Pass
// prometheus.NewRegistry() in tests to avoid polluting the default registry;
// pass prometheus.DefaultRegisterer in production so promhttp.Handler (with
// no registry argument) serves these alongside the Go runtime collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsReceivedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_alerts_received_total",
			Help: "Total alerts received from Alertmanager, by alert name.",
		}, []string{"alert_name"}),
		AlertsSuppressedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_alerts_suppressed_total",
			Help: "Total alerts suppressed before remediation, by reason.",
		}, []string{"reason"}),
		RemediationAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_remediation_attempts_total",
			Help: "Total remediation attempts, by alert name and risk tier.",
		}, []string{"alert_name", "risk"}),
		RemediationOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_remediation_outcomes_total",
			Help: "Total completed remediation attempts, by outcome.",
		}, []string{"outcome"}),
		EscalationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_escalations_total",
			Help: "Total human escalations sent, by alert name.",
		}, []string{"alert_name"}),
		ValidatorRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_validator_rejections_total",
			Help: "Total commands rejected by the safety validator, by risk.",
		}, []string{"risk"}),
		SSHCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_ssh_call_duration_seconds",
			Help:    "SSH command execution latency, by host.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host"}),
		LLMCallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "warden_llm_call_duration_seconds",
			Help:    "Anthropic API call latency for a full analysis round.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "warden_pipeline_duration_seconds",
			Help:    "End-to-end alert processing duration, by alert name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"alert_name"}),
		DegradeQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_degrade_queue_depth",
			Help: "Current depth of the degraded-mode alert queue.",
		}),
		ActiveHandoffs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_active_self_preservation_handoffs",
			Help: "1 if a self-preservation handoff is currently in flight, else 0.",
		}),
		OnlineHosts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "warden_online_hosts",
			Help: "Count of hosts currently marked ONLINE by the host monitor.",
		}),
	}

	reg.MustRegister(
		m.AlertsReceivedTotal,
		m.AlertsSuppressedTotal,
		m.RemediationAttemptsTotal,
		m.RemediationOutcomesTotal,
		m.EscalationsTotal,
		m.ValidatorRejectionsTotal,
		m.SSHCallDuration,
		m.LLMCallDuration,
		m.PipelineDuration,
		m.DegradeQueueDepth,
		m.ActiveHandoffs,
		m.OnlineHosts,
	)
	return m
}

// Handler returns an http.Handler serving gathered from reg in Prometheus
// text exposition format, for mounting at /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
