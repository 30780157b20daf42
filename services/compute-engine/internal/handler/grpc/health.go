package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"AnalysisPlatform/pkg/health"
	"AnalysisPlatform/pkg/logger"
)

// HealthHandler публикует состояние зависимостей узла через стандартный grpc.health.v1
type HealthHandler struct {
	server   *grpchealth.Server
	checker  health.HealthChecker
	service  string
	interval time.Duration
	logger   logger.Logger
}

// NewHealthHandler создает HealthHandler. До первой проверки сервис считается NOT_SERVING.
func NewHealthHandler(checker health.HealthChecker, service string, interval time.Duration, log logger.Logger) *HealthHandler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	server := grpchealth.NewServer()
	server.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthHandler{
		server:   server,
		checker:  checker,
		service:  service,
		interval: interval,
		logger:   log,
	}
}

// Register регистрирует сервис health на gRPC сервере
func (h *HealthHandler) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Refresh опрашивает зависимости и обновляет статус сервиса и общий статус сервера
func (h *HealthHandler) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	result := h.checker.Check(ctx)

	serving := healthpb.HealthCheckResponse_SERVING
	if result.Status != "healthy" {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
		h.logger.Warn("Dependencies unhealthy",
			logger.String("status", result.Status),
			logger.Any("services", result.Services),
		)
	}

	h.server.SetServingStatus(h.service, serving)
	h.server.SetServingStatus("", serving)
	return serving
}

// Run обновляет статус с заданным интервалом до отмены контекста
func (h *HealthHandler) Run(ctx context.Context) {
	h.Refresh(ctx)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}

// Shutdown переводит все сервисы в NOT_SERVING перед остановкой сервера
func (h *HealthHandler) Shutdown() {
	h.server.Shutdown()
}
