// Package logsclient is a thin typed client over a LogQL-compatible log
// aggregation API (C3). Results are truncated to bounded byte sizes before
// being handed to the LLM Agent's tool results.
package logsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/homelab/warden/pkg/apperrors"
)

const (
	maxEntryBytes  = 500
	maxResultBytes = 8 * 1024
)

// Entry is a single log line returned by a query.
type Entry struct {
	Timestamp string
	Message   string
	Labels    map[string]string
}

// Client queries a LogQL-compatible HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL (e.g. "http://192.168.0.11:3100").
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type queryRangeResponse struct {
	Data struct {
		Result []struct {
			Stream map[string]string `json:"stream"`
			Values [][2]string       `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// QueryLogs executes a LogQL query over the trailing timeRange, returning at
// most limit entries, most recent first.
func (c *Client) QueryLogs(ctx context.Context, query string, timeRange time.Duration, limit int) ([]Entry, error) {
	end := time.Now()
	start := end.Add(-timeRange)

	v := url.Values{
		"query": {query},
		"start": {strconv.FormatInt(start.UnixNano(), 10)},
		"end":   {strconv.FormatInt(end.UnixNano(), 10)},
		"limit": {strconv.Itoa(limit)},
	}
	u := c.baseURL + "/loki/api/v1/query_range?" + v.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Invalid("logsclient.QueryLogs", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Transient("logsclient.QueryLogs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, apperrors.Transient("logsclient.QueryLogs", fmt.Errorf("logs backend returned %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, apperrors.Permanent("logsclient.QueryLogs", fmt.Errorf("logs backend returned %d", resp.StatusCode))
	}

	var parsed queryRangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.Transient("logsclient.QueryLogs", fmt.Errorf("decode response: %w", err))
	}

	var out []Entry
	for _, stream := range parsed.Data.Result {
		for _, v := range stream.Values {
			out = append(out, Entry{Timestamp: v[0], Message: v[1], Labels: stream.Stream})
		}
	}
	return out, nil
}

// ContainerErrors returns recent error/exception/fatal/panic lines from a
// container, formatted for LLM consumption and size-bounded.
func (c *Client) ContainerErrors(ctx context.Context, container string, minutes int) string {
	query := fmt.Sprintf(`{container="%s"} |~ "(?i)(error|exception|fatal|panic|fail)"`, container)
	entries, err := c.QueryLogs(ctx, query, time.Duration(minutes)*time.Minute, 50)
	if err != nil {
		return fmt.Sprintf("failed to query logs: %v", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("no errors found for %s in last %dm", container, minutes)
	}
	lines := []string{fmt.Sprintf("recent errors from %s (last %dm):", container, minutes)}
	for i, e := range entries {
		if i >= 20 {
			break
		}
		lines = append(lines, "  "+truncate(e.Message, maxEntryBytes))
	}
	return truncate(strings.Join(lines, "\n"), maxResultBytes)
}

// ServiceLogs returns recent logs (any level) for a job-name pattern match.
func (c *Client) ServiceLogs(ctx context.Context, service string, minutes int) string {
	query := fmt.Sprintf(`{job=~".*%s.*"}`, service)
	entries, err := c.QueryLogs(ctx, query, time.Duration(minutes)*time.Minute, 100)
	if err != nil {
		return fmt.Sprintf("failed to query logs: %v", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("no logs found for %s in last %dm", service, minutes)
	}
	lines := []string{fmt.Sprintf("recent logs from %s:", service)}
	for i, e := range entries {
		if i >= 30 {
			break
		}
		lines = append(lines, "  "+truncate(e.Message, 300))
	}
	return truncate(strings.Join(lines, "\n"), maxResultBytes)
}

// Search returns log lines matching a free-text/regex pattern, optionally
// scoped to a job.
func (c *Client) Search(ctx context.Context, pattern, job string, minutes int) string {
	var query string
	if job != "" {
		query = fmt.Sprintf(`{job="%s"} |~ "%s"`, job, pattern)
	} else {
		query = fmt.Sprintf(`{job=~".+"} |~ "%s"`, pattern)
	}
	entries, err := c.QueryLogs(ctx, query, time.Duration(minutes)*time.Minute, 100)
	if err != nil {
		return fmt.Sprintf("failed to query logs: %v", err)
	}
	if len(entries) == 0 {
		return fmt.Sprintf("no logs matching %q in last %dm", pattern, minutes)
	}
	lines := []string{fmt.Sprintf("logs matching %q:", pattern)}
	for i, e := range entries {
		if i >= 25 {
			break
		}
		jobName := e.Labels["job"]
		if jobName == "" {
			jobName = "unknown"
		}
		lines = append(lines, fmt.Sprintf("  [%s] %s", jobName, truncate(e.Message, 400)))
	}
	return truncate(strings.Join(lines, "\n"), maxResultBytes)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... (truncated)"
}
