// Hint extraction and routing: determining which host, service, and service
// kind an alert is about before anything is suppressed, correlated, or
// planned. Grounded on original_source/app/utils.py's
// determine_target_host/extract_service_name/determine_service_type/
// extract_hints_from_alert, with the original's literal homelab host names
// (skynet/homeassistant) replaced by this codebase's neutral set
// (core/automation) per SPEC_FULL.md §4.2.
package pipeline

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/homelab/warden/pkg/models"
)

// Hints are the operator-supplied overrides extracted from an alert's labels
// and annotations (§4.14 state 4).
type Hints struct {
	RemediationHint      string
	TargetHost           string
	Service              string
	Container            string
	Job                  string
	RunbookURL           string
	SuggestedRemediation string
	System               string
}

// backupAlertTargetSystems is the closed set of systems the BackupStale
// alert's "system" label may name. Only the override mechanism is carried
// over from the original's backup_remediation_map -- the literal backup
// script paths it suggested are specific to that homelab and have no home
// in this generalized host set, so no suggested command is populated here.
var backupAlertTargetSystems = map[string]string{
	"core":       "core",
	"automation": "automation",
	"nexus":      "nexus",
	"outpost":    "outpost",
}

// sanitizeHintValue NFKC-normalizes value and strips Unicode control
// characters other than newline/tab, per §4.14 state 4.
func sanitizeHintValue(value string) string {
	normalized := norm.NFKC.String(value)
	var b strings.Builder
	b.Grow(len(normalized))
	for _, r := range normalized {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.Is(unicode.C, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// ExtractHints pulls the remediation-relevant hints off an alert's labels
// and annotations (§4.14 state 4).
func ExtractHints(alert models.Alert) Hints {
	h := Hints{
		RemediationHint:      sanitizeHintValue(alert.Labels["remediation_hint"]),
		TargetHost:           sanitizeHintValue(alert.Labels["remediation_host"]),
		Service:              sanitizeHintValue(alert.Labels["service"]),
		Container:            sanitizeHintValue(alert.Labels["container"]),
		Job:                  sanitizeHintValue(alert.Labels["job"]),
		RunbookURL:           sanitizeHintValue(alert.Labels["runbook_url"]),
		SuggestedRemediation: sanitizeHintValue(alert.Annotations["remediation"]),
	}

	if alert.AlertName == "BackupStale" {
		system := strings.ToLower(alert.Labels["system"])
		if host, ok := backupAlertTargetSystems[system]; ok {
			h.TargetHost = host
			h.System = system
		}
	}
	return h
}

// hostAliases maps every recognized spelling (hint value, instance
// substring, or alert-name keyword) to its canonical host name in the
// closed set {nexus, automation, outpost, core}.
var hostAliases = map[string]string{
	"core": "core", "skynet": "core",
	"nexus": "nexus",
	"outpost": "outpost", "vps": "outpost",
	"automation": "automation", "ha": "automation", "homeassistant": "automation",
}

func resolveHostAlias(s string) (string, bool) {
	host, ok := hostAliases[strings.ToLower(s)]
	return host, ok
}

// alertNameHostOrder maps a substring of the alert name to the host it
// implicates, tried in map-iteration-independent priority order below.
var alertNameHostOrder = []struct {
	substrings []string
	host       string
}{
	{[]string{"wireguard", "vpn"}, "outpost"},
	{[]string{"frigate", "adguard", "caddy"}, "nexus"},
	{[]string{"zigbee", "automation"}, "automation"},
}

// DetermineTargetHost resolves the host a remediation should target, with
// precedence hint override > instance substring match > alert-name
// heuristic > default (§4.14 state 5).
func DetermineTargetHost(alert models.Alert, hints Hints) string {
	if hints.TargetHost != "" {
		if host, ok := resolveHostAlias(hints.TargetHost); ok {
			return host
		}
	}

	instance := strings.ToLower(alert.Instance)
	for alias, host := range hostAliases {
		if instance != "" && strings.Contains(instance, alias) {
			return host
		}
	}

	alertName := strings.ToLower(alert.AlertName)
	for _, rule := range alertNameHostOrder {
		for _, sub := range rule.substrings {
			if strings.Contains(alertName, sub) {
				return rule.host
			}
		}
	}

	return "nexus"
}

var containerDescriptionPattern = regexp.MustCompile(`(?i)container\s+([a-z0-9_-]+)\s+is`)

// ExtractServiceName recovers the service/container name a remediation
// targets, trying labels first, then the instance label, then the alert
// annotation text (§4.14 state 5).
func ExtractServiceName(alert models.Alert) string {
	if c := alert.Labels["container_name"]; c != "" {
		return c
	}
	if c := alert.Labels["container"]; c != "" {
		return c
	}
	if s := alert.Labels["service_name"]; s != "" {
		return s
	}
	if s := alert.Labels["systemd_unit"]; s != "" {
		return s
	}
	if instance := alert.Instance; instance != "" {
		if i := strings.IndexByte(instance, ':'); i > 0 {
			return instance[:i]
		}
	}
	if m := containerDescriptionPattern.FindStringSubmatch(alert.Annotations["description"]); len(m) == 2 {
		return m[1]
	}
	return ""
}

// dockerServices and systemdServices are known service-name memberships used
// as a fallback when the alert name itself gives no hint of service kind.
var dockerServices = map[string]bool{
	"caddy": true, "grafana": true, "prometheus": true, "loki": true,
	"alertmanager": true, "nextcloud": true, "n8n": true, "frigate": true,
	"adguard": true, "zigbee2mqtt": true,
}

var systemdServices = map[string]bool{
	"docker": true, "sshd": true, "wg-quick": true, "networkd": true,
}

// crossSystemKeywords flag an alert as spanning more than one host, per
// utils.py's is_cross_system_alert (§4.14 system-context note).
var crossSystemKeywords = []string{"wireguard", "vpn", "tunnel", "connectivity", "unreachable", "network"}

// IsCrossSystemAlert reports whether alert concerns connectivity between
// hosts rather than a single host's own service.
func IsCrossSystemAlert(alert models.Alert) bool {
	haystack := strings.ToLower(alert.AlertName + " " + alert.Annotations["description"])
	for _, kw := range crossSystemKeywords {
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

// DetermineServiceType classifies the remediation target as "docker",
// "systemd", or "system" (§4.14 state 5).
func DetermineServiceType(alert models.Alert, serviceName string) string {
	alertName := strings.ToLower(alert.AlertName)
	switch {
	case strings.Contains(alertName, "container") || strings.Contains(alertName, "docker"):
		return "docker"
	case strings.Contains(alertName, "systemd") || strings.Contains(alertName, "service"):
		return "systemd"
	case strings.Contains(alertName, "system") || strings.Contains(alertName, "node") || strings.Contains(alertName, "host"):
		return "system"
	}

	svc := strings.ToLower(serviceName)
	if dockerServices[svc] {
		return "docker"
	}
	if systemdServices[svc] {
		return "systemd"
	}
	return "docker"
}
