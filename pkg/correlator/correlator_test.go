package correlator

import (
	"testing"

	"github.com/homelab/warden/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alert(name, instance string) models.Alert {
	return models.Alert{AlertName: name, Instance: instance}
}

func TestCorrelate_CascadeRule(t *testing.T) {
	inc, ok := Correlate(alert("OutpostDown", "outpost:9100"), []models.Alert{alert("WireGuardVPNDown", "nexus:51820")})
	require.True(t, ok)
	assert.Equal(t, IncidentCascade, inc.Type)
	assert.Equal(t, "WireGuardVPNDown", inc.RootCause)
	assert.True(t, inc.IsRootCause("WireGuardVPNDown"))
	assert.False(t, inc.IsRootCause("OutpostDown"))
}

func TestCorrelate_DependencyRule(t *testing.T) {
	inc, ok := Correlate(alert("GrafanaDown", "core:3000"), []models.Alert{alert("PrometheusUnreachable", "core:9090")})
	require.True(t, ok)
	assert.Equal(t, IncidentDependency, inc.Type)
	assert.Equal(t, "PrometheusUnreachable", inc.RootCause)
}

func TestCorrelate_HostRule(t *testing.T) {
	recent := []models.Alert{alert("DiskSpaceLow", "core:9100")}
	inc, ok := Correlate(alert("ContainerDown", "core:caddy"), recent)
	require.True(t, ok)
	assert.Equal(t, IncidentHost, inc.Type)
	assert.Equal(t, "DiskSpaceLow", inc.RootCause)
}

func TestCorrelate_NoMatch(t *testing.T) {
	_, ok := Correlate(alert("SomethingElse", "core:1"), nil)
	assert.False(t, ok)
}

func TestServiceName_StripsKnownSuffixes(t *testing.T) {
	assert.Equal(t, "grafana", serviceName("GrafanaDown"))
	assert.Equal(t, "caddy", serviceName("CaddyUnhealthy"))
	assert.Equal(t, "unknownalert", serviceName("UnknownAlert"))
}

func TestHostOf_PrefixBeforeColon(t *testing.T) {
	assert.Equal(t, "core", hostOf("core:9100"))
	assert.Equal(t, "core", hostOf("core"))
}
