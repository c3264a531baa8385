// Package correlator implements the Alert Correlator (C8): cascade,
// dependency, and host-based incident rules over a recent-alerts window.
// Decisions are advisory; the Pipeline Coordinator is authoritative (§4.8).
package correlator

import (
	"strings"

	"github.com/homelab/warden/pkg/models"
)

// IncidentType names which rule produced an Incident.
type IncidentType string

// Incident types, in the order rules are tried.
const (
	IncidentCascade    IncidentType = "cascade"
	IncidentDependency IncidentType = "dependency"
	IncidentHost       IncidentType = "host"
)

// Incident is the result of correlating an alert against recent siblings.
type Incident struct {
	RootCause string
	Type      IncidentType
}

// cascadeTable is the static (child -> root) table (§4.7, §4.8 rule 1); the
// Suppressor's cascade gate keeps its own copy of the same entries, keyed by
// root (suppressor.cascadeChildren). Entries reflect dependency
// chains typical of a homelab: a VPN tunnel dropping takes the services that
// route through it with it, and the reverse proxy sits in front of the
// application containers.
var cascadeTable = map[string]string{
	"OutpostDown":       "WireGuardVPNDown",
	"AutomationDown":    "WireGuardVPNDown",
	"ContainerUnhealthy": "ReverseProxyDown",
	"ServiceUnreachable": "ReverseProxyDown",
}

// dependencyTable is a static service -> its dependencies map (§4.8 rule 2).
var dependencyTable = map[string][]string{
	"caddy":    {"docker"},
	"grafana":  {"prometheus", "loki"},
	"alertmanager": {"prometheus"},
	"nextcloud": {"postgres", "redis"},
	"n8n":      {"postgres"},
}

// serviceSuffixes are stripped from an alert name to recover the underlying
// service name for the dependency rule (§4.8 rule 2).
var serviceSuffixes = []string{
	"Down", "Unhealthy", "Error", "Unreachable", "Failed", "Unavailable", "OOMKilled", "CrashLooping",
}

// resourceAlerts are alert names treated as "resource" alerts for the host
// rule (§4.8 rule 3): an alert about the host's own resources rather than a
// specific service.
var resourceAlerts = map[string]bool{
	"DiskSpaceLow":     true,
	"MemoryPressure":   true,
	"HighCPULoad":      true,
	"HostDown":         true,
	"FilesystemFull":   true,
}

// serviceName extracts the candidate service name from an alert name by
// stripping a known suffix, lowercased for table lookups.
func serviceName(alertName string) string {
	for _, suffix := range serviceSuffixes {
		if strings.HasSuffix(alertName, suffix) {
			return strings.ToLower(strings.TrimSuffix(alertName, suffix))
		}
	}
	return strings.ToLower(alertName)
}

// hostOf derives the host from an instance label by taking the prefix before
// the first ':' (§4.8 rule 3).
func hostOf(instance string) string {
	if i := strings.IndexByte(instance, ':'); i >= 0 {
		return instance[:i]
	}
	return instance
}

// Correlate applies the three rules in order against current and the recent
// alerts within the correlation window; the first match wins. recent should
// already be filtered to the configured temporal window by the caller.
func Correlate(current models.Alert, recent []models.Alert) (*Incident, bool) {
	if inc, ok := cascadeRule(current, recent); ok {
		return inc, true
	}
	if inc, ok := dependencyRule(current, recent); ok {
		return inc, true
	}
	if inc, ok := hostRule(current, recent); ok {
		return inc, true
	}
	return nil, false
}

func cascadeRule(current models.Alert, recent []models.Alert) (*Incident, bool) {
	if root, ok := cascadeTable[current.AlertName]; ok {
		for _, a := range recent {
			if a.AlertName == root {
				return &Incident{RootCause: root, Type: IncidentCascade}, true
			}
		}
	}
	// Symmetric: current alert IS a registered root for some sibling present.
	for child, root := range cascadeTable {
		if root != current.AlertName {
			continue
		}
		for _, a := range recent {
			if a.AlertName == child {
				return &Incident{RootCause: current.AlertName, Type: IncidentCascade}, true
			}
		}
	}
	return nil, false
}

func dependencyRule(current models.Alert, recent []models.Alert) (*Incident, bool) {
	svc := serviceName(current.AlertName)
	deps, ok := dependencyTable[svc]
	if !ok {
		return nil, false
	}
	for _, dep := range deps {
		for _, a := range recent {
			if strings.Contains(serviceName(a.AlertName), dep) {
				return &Incident{RootCause: a.AlertName, Type: IncidentDependency}, true
			}
		}
	}
	return nil, false
}

func hostRule(current models.Alert, recent []models.Alert) (*Incident, bool) {
	host := hostOf(current.Instance)
	if host == "" {
		return nil, false
	}
	for _, a := range recent {
		if a.AlertName == current.AlertName && a.Instance == current.Instance {
			continue
		}
		if hostOf(a.Instance) != host {
			continue
		}
		if resourceAlerts[a.AlertName] {
			return &Incident{RootCause: a.AlertName, Type: IncidentHost}, true
		}
	}
	return nil, false
}

// IsRootCause reports whether alertName is the root cause of inc, i.e. the
// Pipeline should NOT skip it.
func (inc Incident) IsRootCause(alertName string) bool {
	return inc.RootCause == alertName
}
