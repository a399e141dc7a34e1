package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto_tracker/scheduler"
)

type fakeScheduler struct {
	state    scheduler.State
	failures int
}

func (f fakeScheduler) State() scheduler.State   { return f.state }
func (f fakeScheduler) ConsecutiveFailures() int { return f.failures }

func serve(t *testing.T, h *Health) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return rec.Code, status
}

func TestHealth_OK(t *testing.T) {
	h := NewHealth(fakeScheduler{state: scheduler.Sleeping, failures: 1})
	h.RegisterCheck("redis", func(context.Context) error { return nil })

	code, status := serve(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusOK, status.Status)
	assert.Equal(t, "sleeping", status.SchedulerState)
	assert.Equal(t, 1, status.ConsecutiveFailures)
	assert.Equal(t, "healthy", status.ComponentStatus["redis"])
}

func TestHealth_DegradedComponent(t *testing.T) {
	h := NewHealth(fakeScheduler{state: scheduler.Fetching})
	h.RegisterCheck("clickhouse", func(context.Context) error { return errors.New("refused") })

	code, status := serve(t, h)

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusDegraded, status.Status)
	assert.Equal(t, "unhealthy", status.ComponentStatus["clickhouse"])
}

func TestHealth_Halted(t *testing.T) {
	h := NewHealth(fakeScheduler{state: scheduler.Halted, failures: 5})

	code, status := serve(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusHalted, status.Status)
	assert.Equal(t, 5, status.ConsecutiveFailures)
}

func TestCollectSystemMetrics(t *testing.T) {
	collectSystemMetrics()
	assert.Positive(t, testutil.ToFloat64(GoroutineCount))
	assert.Positive(t, testutil.ToFloat64(MemoryUsage))
}
