package stats

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/debug/vars"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /debug/vars to be set")
	assert.Equal(t, "GET /debug/vars", pattern, "expected handler to be registered for GET method on /debug/vars")
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.RegisterMetric(MessagesAppended)
	su.RegisterMetric(MessagesAppended)
	su.Run()

	su.Incr(MessagesAppended)
	su.Incr(MessagesAppended)
	su.Decr(MessagesAppended)
	su.Incr("unregistered")
	su.Stop()

	assert.Equal(t, int64(1), su.Value(MessagesAppended))
	assert.Equal(t, int64(0), su.Value("unregistered"))

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/vars", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body[MessagesAppended])
	assert.Contains(t, body, "Uptime")
}

func TestStatsUpdater_MultipleInstances(t *testing.T) {
	a := NewStatsUpdater(http.NewServeMux())
	b := NewStatsUpdater(http.NewServeMux())
	a.RegisterMetric(TotalConnections)
	b.RegisterMetric(TotalConnections)
	assert.Equal(t, int64(0), a.Value(TotalConnections))
	assert.Equal(t, int64(0), b.Value(TotalConnections))
}
