// Package homeassistant is a thin HTTP client for the Home Assistant
// Supervisor API, exposing the subset of actions the LLM Agent's tool
// catalog needs (restart an addon, check its status). Grounded on
// original_source/app/homeassistant_client.py's addon slug resolution and
// restart_addon/get_addon_info, kept deliberately thin per SPEC_FULL.md's
// framing of external automation adapters; this tool surface is disabled
// entirely when no token is configured (§9 Open Question ii).
package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/homelab/warden/pkg/apperrors"
)

// addonSlugs maps common addon nicknames to their full Supervisor slugs,
// carried over from the original's ADDON_SLUGS table.
var addonSlugs = map[string]string{
	"zigbee2mqtt":      "a0d7b954_zigbee2mqtt",
	"z2m":              "a0d7b954_zigbee2mqtt",
	"mosquitto":        "core_mosquitto",
	"mqtt":             "core_mosquitto",
	"matter":           "core_matter_server",
	"google_assistant": "core_google_assistant",
	"whisper":          "core_whisper",
	"piper":            "core_piper",
	"openwakeword":     "core_openwakeword",
	"terminal":         "core_ssh",
	"ssh":              "core_ssh",
	"samba":            "core_samba",
	"mariadb":          "core_mariadb",
	"influxdb":         "a0d7b954_influxdb",
	"grafana":          "a0d7b954_grafana",
	"letsencrypt":      "core_letsencrypt",
	"nginx":            "core_nginx_proxy",
	"vscode":           "a0d7b954_vscode",
}

func resolveSlug(addon string) string {
	if strings.Contains(addon, "_") && len(addon) > 20 {
		return addon
	}
	key := strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(addon), "-", "_"), " ", "_")
	if slug, ok := addonSlugs[key]; ok {
		return slug
	}
	return addon
}

// Client talks to a Home Assistant Supervisor API instance.
type Client struct {
	supervisorURL string
	token         string
	http          *http.Client
}

// New builds a Client. supervisorURL is the Supervisor API base, e.g.
// "http://homeassistant.local:8123/api/hassio".
func New(supervisorURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{supervisorURL: supervisorURL, token: token, http: &http.Client{Timeout: timeout}}
}

// AddonInfo is the status of a single addon.
type AddonInfo struct {
	Slug             string
	Name             string
	State            string
	Version          string
	UpdateAvailable  bool
}

type addonInfoEnvelope struct {
	Data struct {
		Name            string `json:"name"`
		State           string `json:"state"`
		Version         string `json:"version"`
		UpdateAvailable bool   `json:"update_available"`
	} `json:"data"`
}

// AddonInfo fetches status for addon (a nickname or full slug).
func (c *Client) AddonInfo(ctx context.Context, addon string) (*AddonInfo, error) {
	slug := resolveSlug(addon)
	var env addonInfoEnvelope
	if err := c.get(ctx, fmt.Sprintf("/addons/%s/info", slug), &env); err != nil {
		return nil, err
	}
	return &AddonInfo{
		Slug:            slug,
		Name:            env.Data.Name,
		State:           env.Data.State,
		Version:         env.Data.Version,
		UpdateAvailable: env.Data.UpdateAvailable,
	}, nil
}

// RestartAddon restarts the named addon, giving it a longer timeout than
// other calls since Supervisor blocks until the container comes back up.
func (c *Client) RestartAddon(ctx context.Context, addon string) error {
	slug := resolveSlug(addon)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.supervisorURL+fmt.Sprintf("/addons/%s/restart", slug), nil)
	if err != nil {
		return apperrors.Invalid("homeassistant.RestartAddon", err)
	}
	c.setHeaders(req)

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return apperrors.Transient("homeassistant.RestartAddon", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return apperrors.Permanent("homeassistant.RestartAddon", fmt.Errorf("restart %s: status %d: %s", slug, resp.StatusCode, b))
	}
	return nil
}

// ReloadAutomations calls Home Assistant Core's automation.reload service
// through the Supervisor's core proxy, so changed automation YAML takes
// effect without restarting the whole addon. Grounded on
// original_source/app/homeassistant_client.py's reload_automations.
func (c *Client) ReloadAutomations(ctx context.Context) error {
	return c.callService(ctx, "automation", "reload")
}

func (c *Client) callService(ctx context.Context, domain, service string) error {
	url := c.supervisorURL + fmt.Sprintf("/core/api/services/%s/%s", domain, service)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return apperrors.Invalid("homeassistant.callService", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Transient("homeassistant.callService", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return apperrors.Permanent("homeassistant.callService", fmt.Errorf("%s.%s: status %d: %s", domain, service, resp.StatusCode, b))
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.supervisorURL+path, nil)
	if err != nil {
		return apperrors.Invalid("homeassistant.get", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Transient("homeassistant.get", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(resp.Body)
		return apperrors.Transient("homeassistant.get", fmt.Errorf("status %d: %s", resp.StatusCode, b))
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return apperrors.Permanent("homeassistant.get", fmt.Errorf("status %d: %s", resp.StatusCode, b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Transient("homeassistant.get", fmt.Errorf("decode response: %w", err))
	}
	return nil
}
