// Package learning implements the Learning Engine (C9): symptom
// fingerprinting, pattern similarity scoring, lookup with target-host
// discipline, and outcome/failure recording. Grounded on
// original_source/app/learning_engine.py, adapted to the engine's own
// host-class vocabulary (see normalizeHostLabel).
package learning

import "strings"

// priorityLabels are checked first when building a fingerprint; they carry
// the most pattern-matching weight (§3).
var priorityLabels = []string{"system", "remediation_host", "category"}

// standardLabels are appended after the priority labels, in this fixed
// order, when present.
var standardLabels = []string{"alertname", "job", "severity", "container", "service", "host", "device", "filesystem"}

// BuildFingerprint constructs the deterministic symptom fingerprint for an
// alert: alert name, then present priority labels, then present standard
// labels, each as "label:value" except host-like labels which are
// normalized to a host-class token first.
func BuildFingerprint(alertName string, labels map[string]string) string {
	parts := []string{alertName}

	for _, label := range priorityLabels {
		if v, ok := labels[label]; ok {
			parts = append(parts, label+":"+v)
		}
	}

	for _, label := range standardLabels {
		v, ok := labels[label]
		if !ok {
			continue
		}
		if label == "host" || label == "instance" {
			parts = append(parts, "host:"+normalizeHostLabel(v))
		} else {
			parts = append(parts, label+":"+v)
		}
	}

	return strings.Join(parts, "|")
}

// normalizeHostLabel maps a raw host/instance label value to one of the
// engine's fixed host-class tokens, so that two alerts on the same machine
// fingerprint identically regardless of port suffixes or casing.
func normalizeHostLabel(value string) string {
	lower := strings.ToLower(value)
	switch {
	case strings.Contains(lower, "nexus"):
		return "nexus"
	case strings.Contains(lower, "automation"):
		return "automation"
	case strings.Contains(lower, "outpost"):
		return "outpost"
	case strings.Contains(lower, "core"):
		return "core"
	default:
		return "generic"
	}
}

// Categorize buckets an alert name into a broad category for pattern
// bookkeeping (§4.9).
func Categorize(alertName string) string {
	lower := strings.ToLower(alertName)
	switch {
	case strings.Contains(lower, "container") || strings.Contains(lower, "docker"):
		return "containers"
	case strings.Contains(lower, "disk") || strings.Contains(lower, "filesystem"):
		return "storage"
	case strings.Contains(lower, "cpu") || strings.Contains(lower, "memory"):
		return "resources"
	case strings.Contains(lower, "network") || strings.Contains(lower, "vpn"):
		return "network"
	case strings.Contains(lower, "database") || strings.Contains(lower, "postgres") || strings.Contains(lower, "mysql"):
		return "database"
	case strings.Contains(lower, "ssl") || strings.Contains(lower, "cert"):
		return "security"
	default:
		return "system"
	}
}

// ExtractRootCause pulls a short root-cause summary out of free-form AI
// analysis text: the first line longer than 20 characters, truncated at its
// first period (inclusive) or to 200 characters if it has none. Falls back
// to the first 200 characters of the whole analysis.
func ExtractRootCause(analysis string) string {
	if analysis == "" {
		return ""
	}
	for _, line := range strings.Split(analysis, "\n") {
		line = strings.TrimSpace(line)
		if len(line) <= 20 {
			continue
		}
		if i := strings.Index(line, "."); i >= 0 {
			return line[:i+1]
		}
		return truncate(line, 200)
	}
	return truncate(analysis, 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
