package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthChecker интерфейс для проверки здоровья сервиса
type HealthChecker interface {
	Check(ctx context.Context) *HealthStatus
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Status представляет статус зависимости
type Status struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Probe проверяет одну зависимость
type Probe func(ctx context.Context) error

// CompositeChecker опрашивает набор зависимостей
type CompositeChecker struct {
	version string
	timeout time.Duration
	probes  map[string]Probe
}

// NewCompositeChecker создает checker без зависимостей
func NewCompositeChecker(version string) *CompositeChecker {
	return &CompositeChecker{
		version: version,
		timeout: 5 * time.Second,
		probes:  make(map[string]Probe),
	}
}

// Register добавляет проверку зависимости
func (c *CompositeChecker) Register(name string, probe Probe) *CompositeChecker {
	c.probes[name] = probe
	return c
}

// Check опрашивает все зависимости. Любая неисправная переводит статус в degraded.
func (c *CompositeChecker) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]Status, len(c.probes)),
		Version:   c.version,
	}

	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.probes[name](probeCtx)
		cancel()

		if err != nil {
			status.Status = "degraded"
			status.Services[name] = Status{Status: "unhealthy", Details: err.Error()}
			continue
		}
		status.Services[name] = Status{Status: "healthy"}
	}

	return status
}

// Handler создает HTTP обработчик для /health
func Handler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, checker.Check(r.Context()))
	}
}

// ReadyHandler возвращает 200, только если все зависимости здоровы
func ReadyHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())
		if status.Status != "healthy" {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// LiveHandler возвращает 200, пока процесс жив
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
