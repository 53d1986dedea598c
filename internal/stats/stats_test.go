package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/metrics"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /metrics to be set")
	assert.Equal(t, "GET /metrics", pattern, "expected handler to be registered for GET method on /metrics")
}

func Test_metricName(t *testing.T) {
	tcases := map[string]string{
		"NumActiveRooms": "num_active_rooms",
		"clients":        "clients",
		"A":              "a",
	}

	for in, expect := range tcases {
		assert.Equal(t, expect, metricName(in), "unexpected name for %q", in)
	}
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.RegisterMetric("NumActiveRooms")
	su.RegisterMetric("NumActiveRooms")
	su.Run()
	defer su.Stop()

	su.Incr("NumActiveRooms")
	su.Incr("NumActiveRooms")
	su.Decr("NumActiveRooms")

	g, ok := su.gauge("NumActiveRooms")
	require.True(t, ok, "expected gauge to be registered")
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(g) == 1
	}, time.Second, 10*time.Millisecond, "expected gauge value of 1")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ravenchat_num_active_rooms 1")
	assert.Contains(t, string(body), "ravenchat_uptime_seconds")
}
