// Package metricsclient is a thin typed client over a Prometheus-style
// instant/range query API (C3). It powers alert status checks, the
// Verifier's post-remediation polling, and the proactive exhaustion
// predictor.
package metricsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/homelab/warden/pkg/apperrors"
)

// AlertState mirrors Prometheus/Alertmanager's alert lifecycle states.
type AlertState string

// Alert states.
const (
	StateFiring   AlertState = "firing"
	StatePending  AlertState = "pending"
	StateResolved AlertState = "resolved"
)

// Client queries a Prometheus-compatible HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// New builds a Client against baseURL (e.g. "http://192.168.0.11:9090").
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}, timeout: timeout}
}

// SampleResult is one series from an instant or range query result.
type SampleResult struct {
	Metric map[string]string `json:"metric"`
	Value  []any             `json:"value,omitempty"`  // instant: [ts, value]
	Values [][]any           `json:"values,omitempty"` // range: [[ts, value], ...]
}

type apiResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Data   struct {
		Result []SampleResult `json:"result"`
	} `json:"data"`
}

// QueryInstant executes an instant PromQL query.
func (c *Client) QueryInstant(ctx context.Context, query string) ([]SampleResult, error) {
	v := url.Values{"query": {query}}
	return c.doQuery(ctx, "/api/v1/query", v)
}

// QueryRange executes a range PromQL query over [start, end] at step
// resolution (e.g. "1m", "5m").
func (c *Client) QueryRange(ctx context.Context, query string, start, end time.Time, step string) ([]SampleResult, error) {
	v := url.Values{
		"query": {query},
		"start": {start.Format(time.RFC3339)},
		"end":   {end.Format(time.RFC3339)},
		"step":  {step},
	}
	return c.doQuery(ctx, "/api/v1/query_range", v)
}

func (c *Client) doQuery(ctx context.Context, path string, v url.Values) ([]SampleResult, error) {
	u := c.baseURL + path + "?" + v.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Invalid("metricsclient.query", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Transient("metricsclient.query", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperrors.Transient("metricsclient.query", fmt.Errorf("metrics backend returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.Permanent("metricsclient.query", fmt.Errorf("metrics backend returned %d", resp.StatusCode))
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Transient("metricsclient.query", fmt.Errorf("decode response: %w", err))
	}
	if parsed.Status != "success" {
		return nil, apperrors.Transient("metricsclient.query", fmt.Errorf("query failed: %s", parsed.Error))
	}
	return parsed.Data.Result, nil
}

// activeAlert mirrors the shape of the /api/v1/alerts endpoint.
type activeAlert struct {
	Labels map[string]string `json:"labels"`
	State  string             `json:"state"`
}

type alertsResponse struct {
	Status string `json:"status"`
	Data   struct {
		Alerts []activeAlert `json:"alerts"`
	} `json:"data"`
}

// AlertStatus reports whether an alert (optionally filtered by instance and
// extra labels) is firing, pending, or resolved (not present at all).
func (c *Client) AlertStatus(ctx context.Context, alertName, instance string, labels map[string]string) (AlertState, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/alerts", nil)
	if err != nil {
		return "", apperrors.Invalid("metricsclient.AlertStatus", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", apperrors.Transient("metricsclient.AlertStatus", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return "", apperrors.Transient("metricsclient.AlertStatus", fmt.Errorf("metrics backend returned %d", resp.StatusCode))
	}

	var parsed alertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", apperrors.Transient("metricsclient.AlertStatus", fmt.Errorf("decode response: %w", err))
	}

	for _, a := range parsed.Data.Alerts {
		if a.Labels["alertname"] != alertName {
			continue
		}
		if instance != "" && a.Labels["instance"] != instance {
			continue
		}
		matched := true
		for k, v := range labels {
			if a.Labels[k] != v {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		if a.State == "" {
			return StateFiring, nil
		}
		return AlertState(a.State), nil
	}
	return StateResolved, nil
}

// VerifyResult is the outcome of a Verify poll loop.
type VerifyResult struct {
	OK      bool
	Message string
}

// Verify sleeps initialDelay, then polls AlertStatus every pollInterval
// until the alert resolves or maxWait elapses (§4.3(ii)).
func (c *Client) Verify(ctx context.Context, alertName, instance string, labels map[string]string, maxWait, pollInterval, initialDelay time.Duration) VerifyResult {
	select {
	case <-ctx.Done():
		return VerifyResult{OK: false, Message: "context cancelled before verification started"}
	case <-time.After(initialDelay):
	}

	deadline := time.Now().Add(maxWait - initialDelay)
	lastStatus := AlertState("unknown")
	for time.Now().Before(deadline) {
		status, err := c.AlertStatus(ctx, alertName, instance, labels)
		if err != nil {
			slog.Warn("verification check failed", "alert_name", alertName, "error", err)
		} else {
			lastStatus = status
			if status == StateResolved {
				return VerifyResult{OK: true, Message: fmt.Sprintf("alert resolved after %s", time.Since(deadline.Add(-maxWait)))}
			}
		}
		select {
		case <-ctx.Done():
			return VerifyResult{OK: false, Message: "context cancelled during verification"}
		case <-time.After(pollInterval):
		}
	}
	return VerifyResult{OK: false, Message: fmt.Sprintf("alert still %s after %s", lastStatus, maxWait)}
}

// ExhaustionPrediction is the result of a linear-trend projection to a
// threshold value (§4.3(iii), §9 Open Question i).
type ExhaustionPrediction struct {
	WillExhaust   bool
	Current       float64
	Threshold     float64
	HoursRemaining float64
	TrendPerHour  float64
}

// PredictExhaustion fits a linear trend over a 24h range of metric{instance=...}
// and reports hours until it crosses threshold. Only valid for a monotone
// trend; per §9 Open Question (i) behavior outside that regime (e.g. a
// metric that oscillates) is not modeled -- callers should treat a
// non-exhausting trend as informational only.
func (c *Client) PredictExhaustion(ctx context.Context, metric, instance string, threshold float64) (*ExhaustionPrediction, error) {
	query := fmt.Sprintf(`%s{instance="%s"}`, metric, instance)
	end := time.Now()
	start := end.Add(-24 * time.Hour)
	results, err := c.QueryRange(ctx, query, start, end, "5m")
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, apperrors.Transient("metricsclient.PredictExhaustion", fmt.Errorf("no data for %s", metric))
	}

	var values []float64
	for _, r := range results {
		for _, v := range r.Values {
			if len(v) != 2 {
				continue
			}
			if f, ok := parseSampleValue(v[1]); ok {
				values = append(values, f)
			}
		}
	}
	if len(values) < 2 {
		return nil, apperrors.Transient("metricsclient.PredictExhaustion", fmt.Errorf("insufficient data points for %s", metric))
	}

	current := values[len(values)-1]
	trendPer5Min := (values[len(values)-1] - values[0]) / float64(len(values))
	trendPerHour := trendPer5Min * 12

	if trendPerHour >= 0 {
		return &ExhaustionPrediction{WillExhaust: false, Current: current, Threshold: threshold, TrendPerHour: trendPerHour}, nil
	}

	remaining := current - threshold
	hours := remaining / -trendPerHour
	return &ExhaustionPrediction{
		WillExhaust:    true,
		Current:        current,
		Threshold:      threshold,
		HoursRemaining: hours,
		TrendPerHour:   trendPerHour,
	}, nil
}

func parseSampleValue(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return 0, false
	}
	return f, true
}
