package logsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab/warden/pkg/apperrors"
)

func TestQueryLogs_ParsesStreamValues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/query_range", r.URL.Path)
		w.Write([]byte(`{"data":{"result":[{"stream":{"job":"nginx"},"values":[["1","line one"],["2","line two"]]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	entries, err := c.QueryLogs(context.Background(), `{job="nginx"}`, time.Hour, 50)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "line one", entries[0].Message)
	assert.Equal(t, "nginx", entries[0].Labels["job"])
}

func TestQueryLogs_5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.QueryLogs(context.Background(), `{job="nginx"}`, time.Hour, 50)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientExternal))
}

func TestQueryLogs_4xxIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.QueryLogs(context.Background(), `{job="nginx"}`, time.Hour, 50)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPermanentExternal))
}

func TestContainerErrors_FormatsMatchingLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("query"), `container="mosquitto"`)
		w.Write([]byte(`{"data":{"result":[{"stream":{},"values":[["1","panic: boom"]]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out := c.ContainerErrors(context.Background(), "mosquitto", 30)

	assert.Contains(t, out, "recent errors from mosquitto")
	assert.Contains(t, out, "panic: boom")
}

func TestContainerErrors_NoMatchesReportsCleanly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"result":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out := c.ContainerErrors(context.Background(), "mosquitto", 30)

	assert.Contains(t, out, "no errors found for mosquitto")
}

func TestContainerErrors_SurfacesQueryFailureAsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out := c.ContainerErrors(context.Background(), "mosquitto", 30)

	assert.Contains(t, out, "failed to query logs")
}

func TestServiceLogs_CapsAtThirtyLines(t *testing.T) {
	var values string
	for i := 0; i < 50; i++ {
		values += `["1","line"],`
	}
	values = strings.TrimSuffix(values, ",")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"result":[{"stream":{},"values":[` + values + `]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out := c.ServiceLogs(context.Background(), "nginx", 10)

	assert.Equal(t, 30, strings.Count(out, "  line"))
}

func TestSearch_ScopesQueryToJobWhenProvided(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("query"), `{job="nginx"}`)
		w.Write([]byte(`{"data":{"result":[{"stream":{"job":"nginx"},"values":[["1","match found"]]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out := c.Search(context.Background(), "match", "nginx", 10)

	assert.Contains(t, out, "[nginx]")
	assert.Contains(t, out, "match found")
}

func TestSearch_DefaultsJobLabelToUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("query"), `{job=~".+"}`)
		w.Write([]byte(`{"data":{"result":[{"stream":{},"values":[["1","match found"]]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out := c.Search(context.Background(), "match", "", 10)

	assert.Contains(t, out, "[unknown]")
}

func TestTruncate_AddsMarkerOnlyWhenOverLimit(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 100))
	assert.Equal(t, "01234... (truncated)", truncate("0123456789", 5))
}
