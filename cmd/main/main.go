package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/andreiandoo/epas-sub045/internal/bsp"
	"github.com/andreiandoo/epas-sub045/internal/config"
	"github.com/andreiandoo/epas-sub045/internal/httpserver"
	"github.com/andreiandoo/epas-sub045/internal/observer"
	"github.com/andreiandoo/epas-sub045/internal/scheduler"
	"github.com/andreiandoo/epas-sub045/internal/storage"
	"github.com/andreiandoo/epas-sub045/internal/usecase"
	"github.com/andreiandoo/epas-sub045/pkg/logger"
	"github.com/andreiandoo/epas-sub045/pkg/utils"
)

func main() {
	// Set timezone to UTC
	time.Local = time.UTC

	// Load configuration
	cfg, err := config.LoadConfig("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize metrics conditionally
	metricsEnabled := cfg.Metrics.Enabled
	observer.InitMetrics(metricsEnabled)

	logger.Log.Info("Starting WA Messaging Engine",
		zap.String("environment", cfg.Environment),
		zap.String("tenant_id", cfg.Tenant.ID),
		zap.String("default_provider", cfg.Provider.Default),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	messageRepo := storage.NewMessageRepoAdapter(postgresRepo)
	scheduleRepo := storage.NewScheduleRepoAdapter(postgresRepo)
	optInRepo := storage.NewOptInRepoAdapter(postgresRepo)
	templateRepo := storage.NewTemplateRepoAdapter(postgresRepo)

	// Register provider adapters
	registry := bsp.NewRegistry(cfg.Provider.Default)
	registry.Register(bsp.NewTwilioAdapter(cfg.Provider.Twilio.BaseURL, cfg.Provider.Timeout))
	registry.Register(bsp.NewMockAdapter())

	credentials := usecase.StaticCredentialsSource{
		Creds: bsp.Credentials{
			bsp.CredProvider:   cfg.Provider.Default,
			bsp.CredAccountSID: cfg.Provider.Twilio.AccountSID,
			bsp.CredAuthToken:  cfg.Provider.Twilio.AuthToken,
			bsp.CredFromNumber: cfg.Provider.Twilio.FromNumber,
		},
	}

	// Create service
	service := usecase.NewMessagingService(
		messageRepo,
		scheduleRepo,
		optInRepo,
		templateRepo,
		registry,
		credentials,
		usecase.LogCostRecorder{},
		usecase.NoopOrderStatusChecker{},
		usecase.NewStaticTimezoneSource(cfg.Tenant.DefaultTimezone),
		usecase.MessagingConfig{
			DefaultCountryPrefix: cfg.Tenant.DefaultCountryPrefix,
			AdapterTimeout:       cfg.Provider.Timeout,
			BulkBatchSize:        cfg.Bulk.BatchSize,
			BulkBatchDelay:       cfg.Bulk.BatchDelay,
		},
	)

	// Create dispatch worker pool and attach it to the service
	dispatchWorker, err := usecase.NewDispatchWorker(cfg.WorkerPools.Dispatch, service, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize dispatch worker pool", zap.Error(err))
	}
	service.SetDispatchWorker(dispatchWorker)

	// Create the schedule runner
	runner, err := scheduler.NewRunner(service, cfg.Tenant.ID, cfg.Scheduler.Interval, cfg.Scheduler.BatchLimit)
	if err != nil {
		logger.Log.Fatal("Failed to initialize schedule runner", zap.Error(err))
	}

	// Create the HTTP server
	apiServer := httpserver.NewServer(strconv.Itoa(cfg.Server.Port), service, postgresRepo, runner, cfg.Tenant.ID, logger.Log)
	if metricsEnabled {
		apiServer.RegisterMetricsHandler()
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Server.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}

	apiServer.Start()
	runner.Start()

	logger.Log.Info("API endpoints available",
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("readiness", fmt.Sprintf("http://localhost:%d/ready", cfg.Server.Port)),
	)

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Stop the schedule runner first so no new dispatches start
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping schedule runner")
		start := time.Now()
		runner.Stop()
		logger.Log.Info("[shutdown] Schedule runner stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping schedule runner",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Drain the dispatch worker pool
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping dispatch worker pool")
		start := time.Now()
		dispatchWorker.Stop()
		logger.Log.Info("[shutdown] Dispatch worker pool stopped",
			zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping dispatch worker pool",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Shutdown the HTTP server
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping HTTP server")
		start := time.Now()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping HTTP server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] HTTP server stopped",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping HTTP server",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Close the database connection
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		start := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing PostgreSQL connection",
			zap.Any("panic", r),
			zap.ByteString("stack", stack),
		)
		wg.Done()
	})

	// Wait with a timeout for all components to shut down
	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Log.Info("[shutdown] All components stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Log.Warn("[shutdown] Graceful shutdown timed out, forcing exit")
	}

	logger.Log.Info("WA Messaging Engine shutdown complete")
}

// Initialize PostgreSQL repository
func initPostgresRepo(dsn string, autoMigrate bool) (*storage.PostgresRepo, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	repo, err := storage.NewPostgresRepo(dsn, autoMigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres repository: %w", err)
	}

	logger.Log.Info("Initialized PostgreSQL repository")
	return repo, nil
}
