package metricsclient

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

func TestQueryRange_ParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/query_range", r.URL.Path)
		w.Write([]byte(`{"status":"success","data":{"result":[{"metric":{"instance":"nexus"},"values":[[1,"10"],[2,"20"]]}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	results, err := c.QueryRange(context.Background(), "node_filesystem_free_bytes", time.Now().Add(-time.Hour), time.Now(), "5m")

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "nexus", results[0].Metric["instance"])
}

func TestQueryInstant_5xxIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.QueryInstant(context.Background(), "up")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientExternal))
}

func TestQueryInstant_4xxIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.QueryInstant(context.Background(), "up")

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindPermanentExternal))
}

func TestQueryInstant_NonSuccessStatusIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","error":"bad query"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.QueryInstant(context.Background(), "up")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad query")
}

func TestAlertStatus_MatchesOnNameInstanceAndLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"alerts":[
			{"labels":{"alertname":"DiskFull","instance":"nexus","severity":"critical"},"state":"pending"}
		]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	state, err := c.AlertStatus(context.Background(), "DiskFull", "nexus", map[string]string{"severity": "critical"})

	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
}

func TestAlertStatus_NoMatchIsResolved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"alerts":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	state, err := c.AlertStatus(context.Background(), "DiskFull", "nexus", nil)

	require.NoError(t, err)
	assert.Equal(t, StateResolved, state)
}

func TestAlertStatus_LabelMismatchExcludesAlert(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"alerts":[
			{"labels":{"alertname":"DiskFull","instance":"nexus","severity":"warning"},"state":"firing"}
		]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	state, err := c.AlertStatus(context.Background(), "DiskFull", "nexus", map[string]string{"severity": "critical"})

	require.NoError(t, err)
	assert.Equal(t, StateResolved, state)
}

func TestVerify_ReturnsOKOnceAlertResolves(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.Write([]byte(`{"status":"success","data":{"alerts":[{"labels":{"alertname":"DiskFull"},"state":"firing"}]}}`))
			return
		}
		w.Write([]byte(`{"status":"success","data":{"alerts":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	result := c.Verify(context.Background(), "DiskFull", "", nil, 2*time.Second, 20*time.Millisecond, 0)

	assert.True(t, result.OK)
}

func TestVerify_TimesOutWhenStillFiring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"alerts":[{"labels":{"alertname":"DiskFull"},"state":"firing"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	result := c.Verify(context.Background(), "DiskFull", "", nil, 60*time.Millisecond, 20*time.Millisecond, 0)

	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "still firing")
}

func TestVerify_ContextCancelledBeforeStart(t *testing.T) {
	c := New("http://unused", 5*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := c.Verify(ctx, "DiskFull", "", nil, time.Second, time.Millisecond, time.Hour)

	assert.False(t, result.OK)
	assert.Contains(t, result.Message, "cancelled before")
}

func rangeValuesPayload(values [][2]any) string {
	type point = [2]any
	resp := map[string]any{
		"status": "success",
		"data": map[string]any{
			"result": []map[string]any{
				{"metric": map[string]string{"instance": "nexus"}, "values": values},
			},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestPredictExhaustion_DecliningTrendPredictsExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rangeValuesPayload([][2]any{
			{1, "100"}, {2, "90"}, {3, "80"}, {4, "70"},
		})))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	pred, err := c.PredictExhaustion(context.Background(), "node_filesystem_free_bytes", "nexus", 10)

	require.NoError(t, err)
	assert.True(t, pred.WillExhaust)
	assert.Less(t, pred.TrendPerHour, 0.0)
	assert.Greater(t, pred.HoursRemaining, 0.0)
}

func TestPredictExhaustion_RisingTrendDoesNotExhaust(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rangeValuesPayload([][2]any{
			{1, "10"}, {2, "20"}, {3, "30"},
		})))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	pred, err := c.PredictExhaustion(context.Background(), "node_filesystem_free_bytes", "nexus", 100)

	require.NoError(t, err)
	assert.False(t, pred.WillExhaust)
}

func TestPredictExhaustion_InsufficientDataPointsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"result":[]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, 5*time.Second)
	_, err := c.PredictExhaustion(context.Background(), "node_filesystem_free_bytes", "nexus", 10)

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindTransientExternal))
}
