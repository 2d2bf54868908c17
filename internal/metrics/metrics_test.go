package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/abelzeko/alerts-sync/internal/entities"
)

func TestObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	m.ObserveRun(&entities.SyncRun{
		Status:     entities.RunSucceeded,
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
		Known:      10,
		Fetched:    4,
		Added:      3,
		Watermark:  start.Add(-time.Minute),
	})
	m.ObserveRun(&entities.SyncRun{
		Status:     entities.RunFailed,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
		Fetched:    0,
		Added:      0,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues(entities.RunSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsTotal.WithLabelValues(entities.RunFailed)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.fetchedTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.addedTotal))
	assert.Equal(t, 13.0, testutil.ToFloat64(m.datasetSize))
	assert.Equal(t, float64(start.Add(2*time.Second).Unix()), testutil.ToFloat64(m.lastSuccessTS))
	assert.Equal(t, float64(start.Add(-time.Minute).Unix()), testutil.ToFloat64(m.watermarkTS))
}

func TestObserveRunNil(t *testing.T) {
	var m *Metrics
	m.ObserveRun(&entities.SyncRun{})

	New(prometheus.NewRegistry()).ObserveRun(nil)
}

func TestHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRun(&entities.SyncRun{Status: entities.RunSucceeded})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `alertsync_runs_total{status="succeeded"} 1`)
	assert.Contains(t, rec.Body.String(), "alertsync_run_duration_seconds_bucket")
}
