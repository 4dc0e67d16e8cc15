package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsUpdates(t *testing.T) {
	m := New()

	m.ObserveScrape(ResultSuccess, time.Second)
	m.ObserveScrape(ResultConflict, time.Millisecond)
	m.RemoteCallFailed("info")
	m.RemoteCallFailed("info")
	m.CheckFailed("security")
	m.IncTransitions("error")
	m.IncNotificationFailures()
	m.ObserveCycle(3*time.Second, time.Unix(100, 0))
	m.ObserveHTTPRequest(http.MethodGet, http.StatusOK, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scrapesTotal.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lockConflictsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteCallFailuresTotal.WithLabelValues("info")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkFailuresTotal.WithLabelValues("security")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationFailuresTotal))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.lastSuccessfulCycleGauge))
	assert.NotZero(t, testutil.CollectAndCount(m.httpRequestDuration))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveScrape(ResultFailed, time.Second)
		m.RemoteCallFailed("info")
		m.CheckFailed("x")
		m.IncTransitions("warning")
		m.IncNotificationFailures()
		m.ObserveCycle(time.Second, time.Now())
		m.ObserveHTTPRequest(http.MethodGet, http.StatusOK, time.Second)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.CheckFailed("security")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `shopwatch_check_failures_total{check="security"} 1`)
}
