package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	appintegration "github.com/syncbridge/backend/internal/application/integration"
	"github.com/syncbridge/backend/internal/domain/integration"
	"github.com/syncbridge/backend/internal/infrastructure/auth"
	"github.com/syncbridge/backend/internal/infrastructure/cache"
	"github.com/syncbridge/backend/internal/infrastructure/config"
	"github.com/syncbridge/backend/internal/infrastructure/credential"
	"github.com/syncbridge/backend/internal/infrastructure/ecommerce"
	"github.com/syncbridge/backend/internal/infrastructure/logger"
	"github.com/syncbridge/backend/internal/infrastructure/migration"
	"github.com/syncbridge/backend/internal/infrastructure/persistence"
	"github.com/syncbridge/backend/internal/infrastructure/policy"
	"github.com/syncbridge/backend/internal/infrastructure/queue"
	"github.com/syncbridge/backend/internal/infrastructure/scheduler"
	"github.com/syncbridge/backend/internal/infrastructure/telemetry"
	"github.com/syncbridge/backend/internal/interfaces/http/handler"
	"github.com/syncbridge/backend/internal/interfaces/http/middleware"
	"github.com/syncbridge/backend/internal/interfaces/http/router"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = baseLog.Sync() }()

	if err := run(cfg, baseLog); err != nil {
		baseLog.Fatal("Sync engine stopped with error", zap.Error(err))
	}
	baseLog.Info("Server exited gracefully")
}

func run(cfg *config.Config, baseLog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		return err
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		return err
	}
	logProvider, err := telemetry.NewLoggerProvider(ctx, cfg.Telemetry, baseLog)
	if err != nil {
		return err
	}
	log := logProvider.Bridge(baseLog, cfg.Telemetry.ServiceName, zapcore.InfoLevel)

	profiler, err := telemetry.NewProfiler(cfg.Profiling, log)
	if err != nil {
		return err
	}
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	log.Info("Starting sync engine",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	meter := meterProvider.Meter(cfg.Telemetry.ServiceName)
	syncMetrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		return err
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log, logger.GormLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	if err != nil {
		return err
	}
	log.Info("Database connected successfully")
	if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.DBTraceEnabled,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
	}, log); err != nil {
		return err
	}
	if err := migrate(db, log); err != nil {
		return err
	}

	// Cross-instance coordination and credentials
	coordination, err := cache.NewCoordination(ctx, cfg.Redis, cache.WithLogger(log))
	if err != nil {
		return err
	}
	key, err := cfg.Credential.Key()
	if err != nil {
		return err
	}
	cipher, err := credential.NewCipher(key)
	if err != nil {
		return err
	}
	credentials := credential.NewRegistry(
		persistence.NewGormCredentialRepository(db.DB, cipher),
		coordination.Locker,
		credential.NewOAuthExchanger(cfg.Credential, nil),
		credential.Options{
			RefreshMargin: cfg.Credential.RefreshMargin,
			LockTTL:       cfg.Credential.LockTTL,
			LockWait:      cfg.Credential.LockWait,
			Logger:        log,
			Metrics:       syncMetrics,
		},
	)

	// Platform adapters
	storefronts, err := ecommerce.NewRegistryFromConfig(cfg, nil, log)
	if err != nil {
		return err
	}
	warehouse, err := ecommerce.NewWarehouseAdapter(cfg.Warehouse, credentials, nil)
	if err != nil {
		return err
	}

	// Repositories
	channelRepo := persistence.NewGormChannelRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	productRepo := persistence.NewGormProductRepository(db.DB)
	syncLogRepo := persistence.NewGormSyncLogRepository(db.DB)
	pipelineRepo := persistence.NewGormPipelineRepository(db.DB)
	jobRepo := persistence.NewGormJobRepository(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Job dispatcher
	dispatcher := queue.New(jobRepo, cfg.Dispatcher,
		queue.WithLogger(log),
		queue.WithMetrics(queue.NewMetrics()),
	)

	// Test order policy
	policySource, err := policy.NewSource(cfg.Policy.TestOrderPolicyPath, log)
	if err != nil {
		return err
	}
	if cfg.Policy.Watch {
		if err := policySource.Watch(ctx); err != nil {
			log.Warn("Policy file watch disabled", zap.Error(err))
		}
	}

	// Sync services
	resolver := integration.NewConflictResolver(
		integration.WithConflictWindow(cfg.Sync.ConflictWindow),
		integration.WithTiePolicy(integration.TiePolicy(cfg.Sync.SharedTiePolicy)),
	)
	conflicts := appintegration.NewConflictService(resolver, txScope, syncLogRepo, syncMetrics, log)
	orderSync := appintegration.NewOrderSyncService(appintegration.OrderSyncDeps{
		TxScope:   txScope,
		Channels:  channelRepo,
		Orders:    orderRepo,
		SyncLogs:  syncLogRepo,
		Conflicts: conflicts,
		Jobs:      dispatcher,
		Policy:    policySource,
		Metrics:   syncMetrics,
		Logger:    log,
	}, cfg.Sync.EchoWindow)
	productSync := appintegration.NewProductSyncService(appintegration.ProductSyncDeps{
		TxScope:   txScope,
		Channels:  channelRepo,
		Products:  productRepo,
		SyncLogs:  syncLogRepo,
		Conflicts: conflicts,
		Jobs:      dispatcher,
		Metrics:   syncMetrics,
		Logger:    log,
	}, cfg.Sync.EchoWindow)

	propagation := appintegration.NewPropagationHandlers(appintegration.PropagationDeps{
		TxScope:     txScope,
		Channels:    channelRepo,
		Orders:      orderRepo,
		Products:    productRepo,
		Storefronts: storefronts,
		Warehouse:   warehouse,
		OrderSync:   orderSync,
		ProductSync: productSync,
		Logger:      log,
	})
	for _, q := range propagation.Queues() {
		if err := dispatcher.Register(q, propagation.Handle, queue.WorkerOptions{}); err != nil {
			return err
		}
	}

	onboarding := &appintegration.OnboardingExecutors{
		Storefronts: storefronts,
		Warehouse:   warehouse,
		Orders:      orderRepo,
		Products:    productRepo,
		Channels:    channelRepo,
		OrderSync:   orderSync,
		ProductSync: productSync,
	}
	pipelines, err := appintegration.NewPipelineService(
		pipelineRepo, channelRepo, coordination.Locker, onboarding.Executors(),
		cfg.Sync.PipelineMaxRetries, syncMetrics, log,
	)
	if err != nil {
		return err
	}
	pipelineCtx, cancelPipelines := context.WithCancel(context.Background())
	defer cancelPipelines()
	pipelines.WithBaseContext(pipelineCtx).WithLeaseTTL(cfg.Sync.PipelineLeaseTTL)

	// Background work
	if n, err := dispatcher.RequeueStale(ctx); err != nil {
		log.Warn("Requeue of stale jobs failed", zap.Error(err))
	} else if n > 0 {
		log.Info("Requeued stale jobs", zap.Int64("count", n))
	}
	if n, err := pipelines.RecoverInterrupted(ctx); err != nil {
		log.Warn("Pipeline recovery failed", zap.Error(err))
	} else if n > 0 {
		log.Info("Resumed interrupted pipelines", zap.Int("count", n))
	}
	pipelines.StartRecovery(cfg.Sync.PipelineRecoveryInterval)
	if cfg.Dispatcher.Enabled {
		if err := dispatcher.Start(ctx); err != nil {
			return err
		}
	} else {
		log.Warn("Job dispatcher disabled, jobs are stored but not processed")
	}

	pollCfg := scheduler.DefaultPollTriggerConfig()
	if cfg.Sync.WarehousePollInterval > 0 {
		pollCfg.Interval = cfg.Sync.WarehousePollInterval
	}
	pollTrigger, err := scheduler.NewPollTrigger(pollCfg, channelRepo,
		scheduler.PollSchedulerFunc(func(ctx context.Context, channelID uuid.UUID) error {
			_, err := appintegration.ScheduleWarehousePoll(ctx, dispatcher, channelID)
			return err
		}), log)
	if err != nil {
		return err
	}
	if err := pollTrigger.Start(ctx); err != nil {
		return err
	}

	// HTTP
	opts := router.Options{
		Logger:         log,
		Meter:          meter,
		Tracing:        middleware.TracingConfig{ServiceName: cfg.Telemetry.ServiceName, Enabled: tracerProvider.IsEnabled()},
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		WebhookLimiter: middleware.NewRateLimiter(cfg.Webhook.RequestsPerSecond, cfg.Webhook.Burst),
		Metrics:        promhttp.HandlerFor(dispatcher.Metrics().Registry(), promhttp.HandlerOpts{}),
	}
	if cfg.Auth.Enabled {
		tokens, err := auth.NewOperatorTokens(cfg.Auth)
		if err != nil {
			return err
		}
		opts.Tokens = tokens
	} else {
		log.Warn("Operator authentication disabled")
	}

	engine := router.New(router.Handlers{
		Pipelines: handler.NewPipelineHandler(pipelines),
		Conflicts: handler.NewConflictHandler(conflicts),
		Orders:    handler.NewOrderHandler(orderSync, productSync),
		Jobs:      handler.NewJobHandler(dispatcher),
		Webhooks:  handler.NewWebhookHandler(channelRepo, dispatcher, coordination.Deliveries, cfg.Webhook.DedupeTTL, log),
		Health: handler.NewHealthHandler(
			handler.HealthCheck{Name: "database", Check: func(context.Context) error { return db.Ping() }},
			handler.HealthCheck{Name: "coordination", Check: coordination.Ping},
		),
	}, opts)

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Stop intake first, then background work, then shared resources.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := pollTrigger.Stop(shutdownCtx); err != nil {
		log.Warn("Poll trigger stop", zap.Error(err))
	}
	cancelPipelines()
	if err := pipelines.Shutdown(shutdownCtx); err != nil {
		log.Warn("Pipelines still running at shutdown", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Warn("Dispatcher stop", zap.Error(err))
	}
	if err := policySource.Close(); err != nil {
		log.Warn("Policy source close", zap.Error(err))
	}
	if err := coordination.Close(); err != nil {
		log.Warn("Coordination close", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Profiler stop", zap.Error(err))
	}
	for name, shutdown := range map[string]func(context.Context) error{
		"tracer": tracerProvider.Shutdown,
		"meter":  meterProvider.Shutdown,
		"logs":   logProvider.Shutdown,
	} {
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("Telemetry shutdown", zap.String("provider", name), zap.Error(err))
		}
	}
	if err := db.Close(); err != nil {
		log.Error("Error closing database", zap.Error(err))
	}
	return nil
}

func migrate(db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, log)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}
