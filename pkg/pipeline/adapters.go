package pipeline

import (
	"context"
	"time"

	"github.com/homelab/warden/pkg/llmagent"
	"github.com/homelab/warden/pkg/metricsclient"
	"github.com/homelab/warden/pkg/proactive"
	"github.com/homelab/warden/pkg/verifier"
)

// metricsAdapter wraps *metricsclient.Client to satisfy llmagent.MetricQuerier,
// proactive.Predictor, and verifier.MetricsBackend. Each of those packages
// declares its own small mirror of metricsclient's result shapes (so none of
// them needs to import metricsclient just to name a parameter type), which
// means *metricsclient.Client's methods are structurally identical but not
// assignable to any of the three interfaces directly -- Go requires exact
// type identity, not structural compatibility, for interface satisfaction.
// This adapter is the one place that bridges the gap, letting every other
// package stay decoupled from metricsclient.
type metricsAdapter struct {
	client *metricsclient.Client
}

// NewMetricsAdapter builds the shared adapter instance wired into the LLM
// Agent's tool executor, the Proactive Monitor, and the Verifier. Exported
// so cmd/warden can construct it directly; the concrete type stays
// unexported since callers only ever need it through the three interfaces
// above.
func NewMetricsAdapter(client *metricsclient.Client) *metricsAdapter {
	return &metricsAdapter{client: client}
}

var (
	_ llmagent.MetricQuerier  = (*metricsAdapter)(nil)
	_ verifier.MetricsBackend = (*metricsAdapter)(nil)
	_ proactive.Predictor     = (*proactivePredictorAdapter)(nil)
)

func (a *metricsAdapter) QueryRange(ctx context.Context, query string, start, end time.Time, step string) ([]llmagent.MetricSample, error) {
	results, err := a.client.QueryRange(ctx, query, start, end, step)
	if err != nil {
		return nil, err
	}
	out := make([]llmagent.MetricSample, len(results))
	for i, r := range results {
		values := make([][2]any, len(r.Values))
		for j, v := range r.Values {
			if len(v) == 2 {
				values[j] = [2]any{v[0], v[1]}
			}
		}
		out[i] = llmagent.MetricSample{Metric: r.Metric, Values: values}
	}
	return out, nil
}

func (a *metricsAdapter) PredictExhaustion(ctx context.Context, metric, instance string, threshold float64) (*llmagent.ExhaustionPrediction, error) {
	p, err := a.client.PredictExhaustion(ctx, metric, instance, threshold)
	if err != nil {
		return nil, err
	}
	return &llmagent.ExhaustionPrediction{
		WillExhaust:    p.WillExhaust,
		Current:        p.Current,
		Threshold:       p.Threshold,
		HoursRemaining: p.HoursRemaining,
		TrendPerHour:   p.TrendPerHour,
	}, nil
}

// predictExhaustionForProactive is used by the Proactive Monitor adapter
// below; it duplicates nothing but the return type since proactive.Predictor
// and llmagent.MetricQuerier both declare a PredictExhaustion method with
// the same parameters but distinct result types.
func (a *metricsAdapter) predictExhaustionForProactive(ctx context.Context, metric, instance string, threshold float64) (*proactive.Prediction, error) {
	p, err := a.client.PredictExhaustion(ctx, metric, instance, threshold)
	if err != nil {
		return nil, err
	}
	return &proactive.Prediction{
		WillExhaust:    p.WillExhaust,
		Current:        p.Current,
		Threshold:       p.Threshold,
		HoursRemaining: p.HoursRemaining,
		TrendPerHour:   p.TrendPerHour,
	}, nil
}

func (a *metricsAdapter) Verify(ctx context.Context, alertName, instance string, labels map[string]string, maxWait, pollInterval, initialDelay time.Duration) verifier.VerifyResult {
	res := a.client.Verify(ctx, alertName, instance, labels, maxWait, pollInterval, initialDelay)
	return verifier.VerifyResult{OK: res.OK, Message: res.Message}
}

// proactivePredictorAdapter narrows metricsAdapter to proactive.Predictor's
// single method, since metricsAdapter itself can't implement both
// PredictExhaustion signatures under the same method name.
type proactivePredictorAdapter struct {
	inner *metricsAdapter
}

// NewProactivePredictor builds the Predictor passed to proactive.New.
func NewProactivePredictor(a *metricsAdapter) *proactivePredictorAdapter {
	return &proactivePredictorAdapter{inner: a}
}

func (p *proactivePredictorAdapter) PredictExhaustion(ctx context.Context, metric, instance string, threshold float64) (*proactive.Prediction, error) {
	return p.inner.predictExhaustionForProactive(ctx, metric, instance, threshold)
}
