// Package orchestrator is a thin HTTP client for the external workflow
// orchestrator (§4.10's execute_workflow/list_workflows tools and §4.13's
// self-preservation restart handoff). Grounded on
// original_source/app/n8n_client.py's execute_workflow/trigger_webhook, kept
// deliberately thin per SPEC_FULL.md's framing of external adapters.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/homelab/warden/pkg/apperrors"
)

// Client triggers and queries workflows on an external orchestrator (e.g. an
// n8n instance) over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client against baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// workflowResult mirrors the JSON shape returned by the orchestrator's
// execute endpoint.
type workflowResult struct {
	Success     bool   `json:"success"`
	ExecutionID string `json:"execution_id"`
	Error       string `json:"error"`
	Output      string `json:"output"`
}

// Execute triggers a named workflow with input data, optionally waiting for
// completion synchronously (the orchestrator itself decides how "wait" is
// honored; this client just forwards the flag).
func (c *Client) Execute(ctx context.Context, name string, data map[string]any, wait bool) (string, error) {
	body, err := json.Marshal(map[string]any{"data": data, "wait": wait})
	if err != nil {
		return "", apperrors.Invalid("orchestrator.Execute", err)
	}
	url := fmt.Sprintf("%s/api/v1/workflows/%s/execute", c.baseURL, name)
	result, err := c.post(ctx, url, body)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", apperrors.Permanent("orchestrator.Execute", fmt.Errorf("workflow %s failed: %s", name, result.Error))
	}
	if result.Output != "" {
		return result.Output, nil
	}
	return fmt.Sprintf("workflow %s triggered, execution %s", name, result.ExecutionID), nil
}

// List returns the orchestrator's known workflow names.
func (c *Client) List(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/workflows", nil)
	if err != nil {
		return nil, apperrors.Invalid("orchestrator.List", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Transient("orchestrator.List", err)
	}
	defer resp.Body.Close()

	var names []string
	if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
		return nil, apperrors.Transient("orchestrator.List", fmt.Errorf("decode response: %w", err))
	}
	return names, nil
}

// RestartWebhookPath is the fixed webhook path the orchestrator exposes for
// self-preservation restart handoffs (§4.13).
const RestartWebhookPath = "/webhook/warden-self-restart"

// RestartWorkflowInput is the payload sent to the orchestrator's self-restart
// webhook, mirroring n8n_client.py's _trigger_n8n_restart_workflow.
type RestartWorkflowInput struct {
	HandoffID        string `json:"handoff_id"`
	RestartTarget    string `json:"restart_target"`
	RestartCommand   string `json:"restart_command"`
	RestartReason    string `json:"restart_reason"`
	CallbackURL      string `json:"callback_url"`
	EngineHealthURL  string `json:"engine_health_url"`
	TimeoutMinutes   int    `json:"timeout_minutes"`
	SSHHost          string `json:"ssh_host"`
	SSHUser          string `json:"ssh_user"`
}

// TriggerRestart posts to the orchestrator's fixed self-restart webhook path,
// returning the execution ID it assigns (§4.13). Used instead of Execute
// because the webhook path, not a workflow name, identifies this flow.
func (c *Client) TriggerRestart(ctx context.Context, input RestartWorkflowInput) (executionID string, err error) {
	body, err := json.Marshal(input)
	if err != nil {
		return "", apperrors.Invalid("orchestrator.TriggerRestart", err)
	}
	result, err := c.post(ctx, c.baseURL+RestartWebhookPath, body)
	if err != nil {
		return "", err
	}
	if !result.Success {
		return "", apperrors.Permanent("orchestrator.TriggerRestart", fmt.Errorf("restart webhook failed: %s", result.Error))
	}
	return result.ExecutionID, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*workflowResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Invalid("orchestrator.post", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Transient("orchestrator.post", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(resp.Body)
		return nil, apperrors.Transient("orchestrator.post", fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, b))
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return nil, apperrors.Permanent("orchestrator.post", fmt.Errorf("orchestrator returned %d: %s", resp.StatusCode, b))
	}

	var result workflowResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Transient("orchestrator.post", fmt.Errorf("decode response: %w", err))
	}
	return &result, nil
}
