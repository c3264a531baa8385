package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homelab/warden/pkg/apperrors"
)

func TestExecute_ReturnsOutputWhenPresent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows/restart-fleet/execute", r.URL.Path)
		json.NewEncoder(w).Encode(workflowResult{Success: true, Output: "done", ExecutionID: "abc"})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out, err := c.Execute(context.Background(), "restart-fleet", map[string]any{"host": "nexus"}, true)

	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestExecute_FallsBackToExecutionIDWhenNoOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(workflowResult{Success: true, ExecutionID: "exec-42"})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	out, err := c.Execute(context.Background(), "restart-fleet", nil, false)

	require.NoError(t, err)
	assert.Contains(t, out, "exec-42")
}

func TestExecute_SurfacesWorkflowFailureAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(workflowResult{Success: false, Error: "no such workflow"})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.Execute(context.Background(), "ghost-workflow", nil, true)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPermanentExternal))
	assert.Contains(t, err.Error(), "no such workflow")
}

func TestExecute_5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.Execute(context.Background(), "restart-fleet", nil, true)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientExternal))
}

func TestExecute_4xxIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.Execute(context.Background(), "restart-fleet", nil, true)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPermanentExternal))
}

func TestList_ReturnsWorkflowNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/workflows", r.URL.Path)
		json.NewEncoder(w).Encode([]string{"restart-fleet", "drain-node"})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	names, err := c.List(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"restart-fleet", "drain-node"}, names)
}

func TestTriggerRestart_PostsToFixedWebhookPath(t *testing.T) {
	var gotPath string
	var gotBody RestartWorkflowInput
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(workflowResult{Success: true, ExecutionID: "restart-7"})
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	input := RestartWorkflowInput{
		HandoffID:     "h-1",
		RestartTarget: "warden",
		RestartCommand: "docker restart warden",
		SSHHost:       "nexus",
	}
	execID, err := c.TriggerRestart(context.Background(), input)

	require.NoError(t, err)
	assert.Equal(t, RestartWebhookPath, gotPath)
	assert.Equal(t, "restart-7", execID)
	assert.Equal(t, "h-1", gotBody.HandoffID)
}
