package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erp/shipping/internal/application/labeling"
	printingapp "github.com/erp/shipping/internal/application/printing"
	domainprinting "github.com/erp/shipping/internal/domain/printing"
	"github.com/erp/shipping/internal/domain/shipping"
	"github.com/erp/shipping/internal/infrastructure/carrier"
	"github.com/erp/shipping/internal/infrastructure/config"
	"github.com/erp/shipping/internal/infrastructure/event"
	"github.com/erp/shipping/internal/infrastructure/httpclient"
	"github.com/erp/shipping/internal/infrastructure/logger"
	"github.com/erp/shipping/internal/infrastructure/persistence"
	"github.com/erp/shipping/internal/infrastructure/printing"
	"github.com/erp/shipping/internal/infrastructure/queue"
	"github.com/erp/shipping/internal/infrastructure/raster"
	"github.com/erp/shipping/internal/infrastructure/scheduler"
	"github.com/erp/shipping/internal/infrastructure/storage"
	"github.com/erp/shipping/internal/infrastructure/telemetry"
	"github.com/erp/shipping/internal/interfaces/http/handler"
	"github.com/erp/shipping/internal/interfaces/http/middleware"
	"github.com/erp/shipping/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const backlogInterval = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting shipping label service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	// Telemetry. Disabled providers leave the global no-op ones in place.
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	log = logsProvider.Bridge(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiling.Enabled,
		ServerAddress:     cfg.Profiling.ServerAddress,
		ApplicationName:   cfg.Profiling.ApplicationName,
		BasicAuthUser:     cfg.Profiling.BasicAuthUser,
		BasicAuthPassword: cfg.Profiling.BasicAuthPassword,
		ProfileTypes:      cfg.Profiling.ProfileTypes,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Profiling.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	metrics, err := telemetry.NewPipelineMetrics(meterProvider.Meter("shipping/labels"), log)
	if err != nil {
		log.Fatal("Failed to create pipeline metrics", zap.Error(err))
	}

	// Database
	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			log.Fatal("Failed to migrate sqlite schema", zap.Error(err))
		}
	}
	if tracerProvider.IsEnabled() && cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:  true,
			DBSystem: dbSystem(cfg.Database.Driver),
		}, log)
		if err := plugin.Register(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	// Repositories
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	recordRepo := persistence.NewGormLabelRecordRepository(db.DB)
	logoRepo := persistence.NewGormLogoRepository(db.DB)
	projectionWriter := persistence.NewGormProjectionWriter(db.DB)
	outboxRepo := event.NewGormOutboxRepository(db.DB)

	// Remote services
	retry := httpclient.RetryPolicy{MaxRetries: cfg.Carrier.MaxRetries, BaseDelay: cfg.Carrier.RetryBaseDelay}
	carrierHTTP := httpclient.New(httpclient.Config{
		Timeout:    cfg.Carrier.Timeout,
		MaxRetries: cfg.Carrier.MaxRetries,
		BaseDelay:  cfg.Carrier.RetryBaseDelay,
		Logger:     log,
	})
	rendererHTTP := httpclient.New(httpclient.Config{Timeout: cfg.Renderer.Timeout, Logger: log})

	fetcher := carrier.NewFetcher(carrierHTTP, carrier.FetcherConfig{
		BaseURL:   cfg.Carrier.BaseURL,
		PageDelay: cfg.Carrier.PageDelay,
		Logger:    log,
	})
	carrierClient := carrier.NewClient(carrierHTTP, fetcher, carrier.ClientConfig{
		BaseURL: cfg.Carrier.BaseURL,
		Retry:   retry,
		Tokens:  cfg.Carrier.Tokens(),
		Logger:  log,
	})
	converter := raster.NewConverter(rendererHTTP, raster.Config{RendererURL: cfg.Renderer.BaseURL, Logger: log})

	// Artifacts
	artifacts, err := printing.NewArtifactStore(&printing.ArtifactStoreConfig{
		TransportRoot: cfg.Labels.LabelsRoot,
		PDFRoot:       cfg.Labels.PDFRoot,
		ImageRoot:     cfg.Labels.ImagesRoot,
		ZPLRoot:       cfg.Labels.ZPLRoot,
		Logger:        log,
	})
	if err != nil {
		log.Fatal("Failed to create artifact store", zap.Error(err))
	}

	// Label pipeline
	acquirer := labeling.NewAcquirer(carrierHTTP, converter, artifacts, recordRepo, log).
		WithMetrics(metrics)
	compositor := labeling.NewCompositor(orderRepo, recordRepo, logoRepo, artifacts,
		printing.NewSlipRenderer(log), converter,
		labeling.CompositorConfig{
			MaxConcurrent: cfg.Labels.MaxConcurrentCompose,
			Calibration:   calibrationTable(cfg.Calibration),
			Logger:        log,
		}).WithMetrics(metrics)
	if cfg.Storage.Enabled {
		mirror, err := storage.NewS3Mirror(&cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create S3 mirror", zap.Error(err))
		}
		if err := mirror.EnsureBucket(ctx); err != nil {
			log.Warn("S3 bucket check failed, mirroring may fail", zap.Error(err))
		}
		compositor.WithMirror(mirror)
		log.Info("Artifact mirror enabled", zap.String("bucket", mirror.Bucket()))
	}
	processor := labeling.NewProcessor(carrierClient, acquirer, compositor, recordRepo, artifacts, log).
		WithMetrics(metrics)
	syncer := labeling.NewSyncer(carrierClient, projectionWriter, cfg.Outbox.Enabled, log)
	reconciler := labeling.NewReconciler(carrierClient, syncer, processor, recordRepo, labeling.ReconcilerConfig{
		PendingStatus: cfg.Carrier.PendingStatus,
		Logger:        log,
	}).WithMetrics(metrics)
	cleaner := labeling.NewCleaner(artifacts, time.Duration(cfg.Labels.RetentionDays)*24*time.Hour, log)

	// Print queue
	printQueue, backend := newPrintQueue(cfg, log)
	printService := printingapp.NewPrintQueueService(printQueue, backend, compositor, log).WithMetrics(metrics)

	// Background tasks
	jobs := scheduler.New(log)
	mustRegister(log, jobs, labeling.ReconciliationTask, cfg.Scheduler.ReconciliationInterval, reconciler.RunScheduled)
	mustRegister(log, jobs, labeling.CleanupTask, cfg.Scheduler.CleanupInterval, cleaner.Run)
	if cfg.Scheduler.AutoStart {
		jobs.Start(labeling.ReconciliationTask)
		jobs.Start(labeling.CleanupTask)
	}

	var outboxWorker *event.OutboxWorker
	if cfg.Outbox.Enabled {
		outboxWorker = event.NewOutboxWorker(outboxRepo, event.OutboxWorkerConfig{
			BatchSize:        cfg.Outbox.BatchSize,
			PollInterval:     cfg.Outbox.PollInterval,
			MaxRetries:       cfg.Outbox.MaxRetries,
			CleanupRetention: cfg.Outbox.CleanupRetention,
		}, log)
		outboxWorker.Handle(labeling.TopicFollowUp, processor.HandleFollowUp)
		if err := outboxWorker.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox worker", zap.Error(err))
		}
	}

	// The backlog query runs against the database, so skip it when nothing exports it.
	if meterProvider.IsEnabled() {
		metrics.StartBacklogCollection(ctx, recordRepo, backlogInterval)
	}

	// HTTP
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	verbose := !cfg.App.IsProduction()
	handler.SetupValidator()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	}))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.SpanAttributes())
	httpMetrics, err := middleware.HTTPMetrics(meterProvider.Meter("http.server"))
	if err != nil {
		log.Fatal("Failed to create HTTP metrics", zap.Error(err))
	}
	engine.Use(httpMetrics)

	pollLimiter := middleware.NewRateLimiter(cfg.HTTP.PollRate, cfg.HTTP.PollBurst)
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	go pollLimiter.Run(limiterCtx, time.Minute)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"), router.WithLogger(log))
	r.Register(
		handler.LabelRoutes(handler.NewLabelHandler(compositor, verbose)),
		handler.ReconciliationRoutes(handler.NewReconciliationHandler(reconciler, verbose)),
		handler.PrintJobRoutes(handler.NewPrintJobHandler(printService, verbose),
			middleware.BodyLimit(middleware.DefaultMaxBodyBytes),
			middleware.RateLimit(pollLimiter, middleware.AgentKey)),
		handler.SchedulerRoutes(handler.NewSchedulerHandler(jobs, verbose)),
		handler.OutboxRoutes(handler.NewOutboxHandler(outboxRepo)),
		handler.HealthRoutes(handler.NewHealthHandler(db, printService)),
	)
	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		log.Error("Scheduler did not stop in time", zap.Error(err))
	}
	if outboxWorker != nil {
		if err := outboxWorker.Stop(shutdownCtx); err != nil {
			log.Error("Outbox worker did not stop in time", zap.Error(err))
		}
	}
	metrics.Stop()
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush traces", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Error("Failed to flush profiles", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to flush logs", zap.Error(err))
	}
}

func newPrintQueue(cfg *config.Config, log *zap.Logger) (domainprinting.Queue, string) {
	if cfg.Queue.Backend != "redis" {
		return queue.NewMemoryQueue(log), "memory"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return queue.NewRedisQueue(client, cfg.Queue.RedisKey, log), "redis"
}

func calibrationTable(cfg config.CalibrationConfig) *shipping.CalibrationTable {
	stores := make(map[int64]shipping.StoreCalibration, len(cfg.Stores))
	for _, s := range cfg.Stores {
		stores[s.StoreID] = shipping.StoreCalibration{
			ShippingLabelScaleFactor: s.ShippingLabelScaleFactor,
			BitmapScaleFactor:        s.BitmapScaleFactor,
		}
	}
	return shipping.NewCalibrationTable(shipping.StoreCalibration{
		ShippingLabelScaleFactor: cfg.ShippingLabelScaleFactor,
		BitmapScaleFactor:        cfg.BitmapScaleFactor,
	}, stores)
}

func mustRegister(log *zap.Logger, s *scheduler.JobScheduler, name string, interval time.Duration, fn scheduler.TaskFunc) {
	if err := s.Register(name, interval, fn); err != nil {
		log.Fatal("Failed to register task", zap.String("task", name), zap.Error(err))
	}
}

func dbSystem(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "postgresql"
}
