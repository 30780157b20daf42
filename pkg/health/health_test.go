package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeChecker_AllHealthy(t *testing.T) {
	checker := NewCompositeChecker("1.0.0").
		Register("database", func(ctx context.Context) error { return nil }).
		Register("redis", func(ctx context.Context) error { return nil })

	status := checker.Check(context.Background())

	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Len(t, status.Services, 2)
}

func TestCompositeChecker_Degraded(t *testing.T) {
	checker := NewCompositeChecker("1.0.0").
		Register("database", func(ctx context.Context) error { return nil }).
		Register("rabbitmq", func(ctx context.Context) error { return errors.New("connection is closed") })

	status := checker.Check(context.Background())

	assert.Equal(t, "degraded", status.Status)
	assert.Equal(t, "unhealthy", status.Services["rabbitmq"].Status)
	assert.Equal(t, "connection is closed", status.Services["rabbitmq"].Details)
}

func TestHandler(t *testing.T) {
	rec := httptest.NewRecorder()

	Handler(NewCompositeChecker("1.0.0")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
}

func TestReadyHandler_NotReady(t *testing.T) {
	checker := NewCompositeChecker("1.0.0").
		Register("database", func(ctx context.Context) error { return errors.New("down") })
	rec := httptest.NewRecorder()

	ReadyHandler(checker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()

	LiveHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}
