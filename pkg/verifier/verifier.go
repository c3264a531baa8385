// Package verifier implements the Verifier (C11): after a remediation
// attempt executes, confirm the underlying alert actually cleared before the
// Learning Engine is allowed to credit the pattern that produced it.
// Grounded on spec §4.11 and pkg/metricsclient's poll loop; consulted but
// did not adopt original_source/app/health_check_remediation.py's
// Dockerfile-patching logic, which is a distinct autonomous-build-fix
// feature outside this component's scope.
package verifier

import (
	"context"
	"time"
)

// MetricsBackend is the subset of *metricsclient.Client the Verifier needs.
type MetricsBackend interface {
	Verify(ctx context.Context, alertName, instance string, labels map[string]string, maxWait, pollInterval, initialDelay time.Duration) VerifyResult
}

// VerifyResult mirrors metricsclient.VerifyResult so this package doesn't
// need to import it just to satisfy MetricsBackend's signature. The real
// *metricsclient.Client returns its own metricsclient.VerifyResult, so callers
// wrap it in an adapter (pkg/pipeline's metricsAdapter) that converts it.
type VerifyResult struct {
	OK      bool
	Message string
}

// Verifier polls the metrics backend after an actionable remediation to
// confirm the alert cleared (§4.11).
type Verifier struct {
	backend          MetricsBackend
	maxWait          time.Duration
	pollInterval     time.Duration
	initialDelay     time.Duration
}

// Config bundles the tunables from config.RemediationConfig the Verifier
// needs.
type Config struct {
	MaxWait      time.Duration
	PollInterval time.Duration
	InitialDelay time.Duration
}

// New builds a Verifier against backend with the given poll tunables.
func New(backend MetricsBackend, cfg Config) *Verifier {
	return &Verifier{
		backend:      backend,
		maxWait:      cfg.MaxWait,
		pollInterval: cfg.PollInterval,
		initialDelay: cfg.InitialDelay,
	}
}

// Verify confirms alertName/instance resolved after remediation, per §4.11:
// wait InitialDelay before the first check (commands need time to take
// effect), then poll every PollInterval until either the alert resolves or
// MaxWait elapses.
func (v *Verifier) Verify(ctx context.Context, alertName, instance string, labels map[string]string) VerifyResult {
	res := v.backend.Verify(ctx, alertName, instance, labels, v.maxWait, v.pollInterval, v.initialDelay)
	return VerifyResult{OK: res.OK, Message: res.Message}
}
