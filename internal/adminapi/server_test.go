package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/routewarden/routewarden/internal/statsstore"
)

type fakeStats struct {
	counters []statsstore.Counter
	err      error
}

func (f *fakeStats) Totals() ([]statsstore.Counter, error) { return f.counters, f.err }

func TestHandleHealthz(t *testing.T) {
	s := New(nil, ":0", prometheus.NewRegistry(), nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
}

func TestHandleStats_IncludesQueryCounters(t *testing.T) {
	stats := &fakeStats{counters: []statsstore.Counter{{Group: "alidns-doh", Outcome: "success", Count: 3}}}
	s := New(nil, ":0", prometheus.NewRegistry(), stats)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var body StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.QueryCounters, 1)
	assert.Equal(t, "alidns-doh", body.QueryCounters[0].Group)
	assert.Equal(t, int64(3), body.QueryCounters[0].Count)
}

func TestHandleMetrics_ServesPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total"})
	counter.Inc()
	reg.MustRegister(counter)

	s := New(nil, ":0", reg, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_total")
}
