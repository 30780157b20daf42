package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"AnalysisPlatform/pkg/config"
	"AnalysisPlatform/pkg/database"
	"AnalysisPlatform/pkg/errors"
	pkggrpc "AnalysisPlatform/pkg/grpc"
	"AnalysisPlatform/pkg/health"
	"AnalysisPlatform/pkg/logger"
	"AnalysisPlatform/pkg/metrics"
	"AnalysisPlatform/pkg/rabbitmq"
	"AnalysisPlatform/pkg/ratelimit"
	pkg_redis "AnalysisPlatform/pkg/redis"
	"AnalysisPlatform/services/compute-engine/internal/auth"
	"AnalysisPlatform/services/compute-engine/internal/domain"
	ce_grpc "AnalysisPlatform/services/compute-engine/internal/handler/grpc"
	ce_http "AnalysisPlatform/services/compute-engine/internal/handler/http"
	"AnalysisPlatform/services/compute-engine/internal/qualitygate"
	"AnalysisPlatform/services/compute-engine/internal/repository"
	"AnalysisPlatform/services/compute-engine/internal/repository/postgres"
	ce_redis "AnalysisPlatform/services/compute-engine/internal/repository/redis"
	"AnalysisPlatform/services/compute-engine/internal/service"
	"AnalysisPlatform/services/compute-engine/internal/usecase"
)

const (
	serviceName = "compute-engine"
	version     = "1.0.0"
)

func main() {
	configFile := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// Инициализация конфигурации
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger, err := logger.NewLogger(cfg.Environment, cfg.Logger.Level, serviceName)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() {
		if err := appLogger.Sync(); err != nil {
			log.Printf("Error syncing logger: %v", err)
		}
	}()

	if err := run(cfg, appLogger); err != nil {
		appLogger.Error("Compute engine failed", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, appLogger logger.Logger) error {
	shutdownTracing := metrics.InitializeOpenTelemetry(serviceName, version)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			appLogger.Warn("Failed to stop tracer provider", logger.Error(err))
		}
	}()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelConnect()

	// Инициализация базы данных
	dbConfig := database.NewConfig()
	dbConfig.Host = cfg.Database.Host
	dbConfig.Port = cfg.Database.Port
	dbConfig.User = cfg.Database.User
	dbConfig.Password = cfg.Database.Password
	dbConfig.Database = cfg.Database.Name
	dbConfig.SSLMode = cfg.Database.SSLMode
	dbConfig.MaxConns = cfg.Database.MaxConns

	postgresDB, err := database.Connect(connectCtx, dbConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer postgresDB.Close()

	if err := postgres.EnsureSchema(connectCtx, postgresDB.Pool); err != nil {
		return fmt.Errorf("failed to prepare schema: %w", err)
	}

	// Инициализация Redis: реестр воркеров, лимит отправок и, при необходимости, блокировки
	redisConfig := pkg_redis.NewConfig()
	redisConfig.Addr = cfg.Redis.Addr
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	redisConfig.PoolSize = cfg.Redis.PoolSize

	redisClient, err := pkg_redis.Connect(connectCtx, redisConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	// RabbitMQ необязателен: без брокера события не публикуются
	var publisher service.Publisher
	rabbitConfig := rabbitmq.NewConfig()
	rabbitConfig.URL = cfg.RabbitMQ.URL
	rabbitConfig.Exchange = cfg.RabbitMQ.Exchange
	rabbitConn, err := rabbitmq.Connect(connectCtx, rabbitConfig)
	if err != nil {
		appLogger.Warn("RabbitMQ unavailable, task events are disabled", logger.Error(err))
	} else {
		defer rabbitConn.Close()
		publisher = rabbitmq.NewProducer(rabbitConn, rabbitConfig)
	}

	metricCollector := metrics.NewMetrics("compute_engine", nil)

	// Репозитории
	tasks := postgres.NewTaskRepository(postgresDB.Pool)
	properties := postgres.NewPropertyRepository(postgresDB.Pool)
	registry := ce_redis.NewWorkerRegistry(redisClient.Client)
	lockRepo, err := newLockRepository(cfg.ComputeEngine.LockBackend, postgresDB, redisClient)
	if err != nil {
		return err
	}

	// Сервисы
	ceConfig := cfg.ComputeEngine
	workerCount := service.StaticWorkerCount{Count: ceConfig.WorkerCount, CanSet: ceConfig.CanSetWorkerCount}
	events := service.NewEventPublisher(publisher, appLogger)
	submissions := service.NewSubmissionService(tasks, properties, appLogger)
	admission := service.NewAdmissionService(properties, tasks, workerCount, appLogger)
	cancellation := service.NewCancellationService(tasks, events, appLogger)
	messages := service.NewMessageService(postgres.NewMessageRepository(postgresDB.Pool), appLogger)
	queries := service.NewQueryService(tasks, tasks, messages)
	reports := service.NewReportSubmitter(postgres.NewProjectRepository(postgresDB.Pool), submissions, appLogger)
	gates := service.NewQualityGateService(
		postgres.NewQualityGateRepository(postgresDB.Pool),
		qualitygate.BuiltinCatalog(),
		qualitygate.EvaluatorConfig{
			IgnoreSmallChanges:  cfg.QualityGate.IgnoreSmallChanges,
			SmallChangesetLines: cfg.QualityGate.SmallChangesetLines,
		},
		appLogger,
	)

	processors := service.NewProcessorRegistry().
		Register(domain.TaskTypeReport, service.JSONReportProcessor{})

	nodeID, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to resolve node id: %w", err)
	}

	pool, err := service.NewWorkerPool(service.PoolConfig{
		NodeID:          nodeID,
		WorkerCount:     workerCount.WorkerCount().Value,
		PollInterval:    config.DurationOr(ceConfig.PollInterval, config.DefaultPollInterval),
		MaxPollInterval: config.DurationOr(ceConfig.MaxPollInterval, config.DefaultMaxPollInterval),
		ShutdownTimeout: config.DurationOr(ceConfig.ShutdownTimeout, config.DefaultShutdownTimeout),
	}, service.PoolDependencies{
		Queue:      tasks,
		Lifecycle:  tasks,
		Admission:  admission,
		Processors: processors,
		Messages:   messages,
		Gates:      gates,
		Events:     events,
		Metrics:    metricCollector,
		Logger:     appLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	reconciliation, err := service.NewReconciliationStrategy(ceConfig.Reconciliation, tasks, registry, appLogger)
	if err != nil {
		return err
	}

	jobs := service.NewJobScheduler(service.JobsConfig{
		QueueMetricsSchedule: ceConfig.QueueMetricsSchedule,
		WornOutSchedule:      ceConfig.WornOutSchedule,
		ReconcileSchedule:    ceConfig.ReconcileSchedule,
		HeartbeatSchedule:    ceConfig.HeartbeatSchedule,
		HeartbeatTTL:         config.DurationOr(ceConfig.HeartbeatTTL, config.DefaultHeartbeatTTL),
	}, service.JobsDependencies{
		Locks:          service.NewLockManager(lockRepo, nodeID, metricCollector, appLogger),
		Admission:      admission,
		Cancellation:   cancellation,
		Reconciliation: reconciliation,
		Registry:       registry,
		Pool:           pool,
		Metrics:        metricCollector,
		Logger:         appLogger,
	})

	// Use case и аутентификация
	var tokens *auth.TokenManager
	if cfg.JWT.AccessSecret != "" {
		tokens = auth.NewTokenManager(cfg.JWT.AccessSecret, 0)
	} else {
		appLogger.Warn("JWT secret is not configured, bearer tokens are rejected")
	}
	passcode := auth.NewPasscodeChecker(cfg.Admin.PasscodeHash)
	if !passcode.Enabled() {
		appLogger.Warn("Admin passcode is not configured")
	}

	submitLimit := usecase.SubmitLimit{
		Limit:  ceConfig.SubmitRateLimit,
		Window: config.DurationOr(ceConfig.SubmitRateWindow, time.Minute),
	}
	taskUseCase := usecase.NewTaskUseCase(reports, queries, messages,
		ratelimit.NewRedisRateLimiter(redisClient.Client, "ce"), submitLimit, appLogger)
	adminUseCase := usecase.NewAdminUseCase(admission, submissions, cancellation, queries, appLogger)
	gateUseCase := usecase.NewQualityGateUseCase(gates, appLogger)

	// Проверка зависимостей
	checker := health.NewCompositeChecker(version).
		Register("database", postgresDB.HealthCheck).
		Register("redis", redisClient.HealthCheck)
	if rabbitConn != nil {
		checker.Register("rabbitmq", rabbitConn.HealthCheck)
	}

	// Настройка HTTP сервера
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.Handler(checker))
	mux.HandleFunc("/ready", health.ReadyHandler(checker))
	mux.HandleFunc("/live", health.LiveHandler())
	mux.Handle("/metrics", metricCollector.GetHandler())
	ce_http.RegisterRoutes(mux,
		ce_http.NewCEHandler(taskUseCase, adminUseCase, ce_http.DefaultMaxReportSize, appLogger),
		ce_http.NewQualityGateHandler(gateUseCase, appLogger),
		auth.NewAuthenticator(tokens, passcode),
		appLogger,
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           errors.Middleware(metricCollector.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Настройка gRPC сервера: только grpc.health.v1
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(pkggrpc.UnaryServerInterceptor(appLogger)))
	healthHandler := ce_grpc.NewHealthHandler(checker, serviceName, 10*time.Second, appLogger)
	healthHandler.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to listen grpc port: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Воркеры стартуют раньше заданий: задания пишут heartbeat по UUID запущенных воркеров
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("failed to start job scheduler: %w", err)
	}

	go healthHandler.Run(ctx)

	go func() {
		appLogger.Info("Starting gRPC server", logger.Int("port", cfg.GRPC.Port))
		if err := grpcServer.Serve(grpcListener); err != nil {
			appLogger.Error("gRPC server failed", logger.Error(err))
		}
	}()

	go func() {
		appLogger.Info("Starting compute engine server", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", logger.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down compute engine...")

	// Graceful shutdown
	shutdownTimeout := config.DurationOr(ceConfig.ShutdownTimeout, config.DefaultShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout+10*time.Second)
	defer cancel()

	healthHandler.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown failed", logger.Error(err))
	}
	if err := jobs.Stop(shutdownCtx); err != nil {
		appLogger.Error("Job scheduler shutdown failed", logger.Error(err))
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		appLogger.Error("Worker pool shutdown failed", logger.Error(err))
	}
	grpcServer.GracefulStop()

	appLogger.Info("Compute engine stopped")
	return nil
}

// newLockRepository выбирает хранилище кластерных блокировок
func newLockRepository(backend string, db *database.Postgres, redisClient *pkg_redis.Client) (repository.LockRepository, error) {
	switch backend {
	case "", "postgres":
		return postgres.NewLockRepository(db.Pool), nil
	case "redis":
		return ce_redis.NewRedisLockRepository(redisClient.Client), nil
	default:
		return nil, fmt.Errorf("unknown lock backend: %s", backend)
	}
}
