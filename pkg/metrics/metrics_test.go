package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *Metrics {
	return NewMetrics("ce_test", prometheus.NewRegistry())
}

func TestNewMetrics_RegistersTwiceWithoutPanic(t *testing.T) {
	reg := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		NewMetrics("ce_test", reg)
		NewMetrics("ce_test", reg)
	})
}

func TestMetrics_ObserveTask(t *testing.T) {
	m := newTestMetrics()

	m.ObserveTask("REPORT", "SUCCESS", 2*time.Second)
	m.ObserveTask("REPORT", "SUCCESS", time.Second)
	m.ObserveTask("REPORT", "FAILED", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksProcessed.WithLabelValues("REPORT", "SUCCESS")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksProcessed.WithLabelValues("REPORT", "FAILED")))
}

func TestMetrics_SetQueueSize(t *testing.T) {
	m := newTestMetrics()

	m.SetQueueSize("PENDING", 7)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueSize.WithLabelValues("PENDING")))
}

func TestMetrics_ObserveLock(t *testing.T) {
	m := newTestMetrics()

	m.ObserveLock("ce.worn-outs", true)
	m.ObserveLock("ce.worn-outs", false)
	m.ObserveLock("ce.worn-outs", false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LockAcquisitions.WithLabelValues("ce.worn-outs", "acquired")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LockAcquisitions.WithLabelValues("ce.worn-outs", "skipped")))
}

func TestMetrics_Middleware(t *testing.T) {
	m := newTestMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/ce/task", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues("GET", "/api/ce/task", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsCount.WithLabelValues("GET", "/api/ce/task", "client_error")))
}

func TestMetrics_GetHandler(t *testing.T) {
	m := newTestMetrics()
	m.ObserveQualityGate("ERROR")
	rec := httptest.NewRecorder()

	m.GetHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ce_test_qualitygate_evaluations_total")
}
