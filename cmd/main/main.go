package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/stitchfab/api/comm-audit-service/internal/config"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/events"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/healthcheck"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/httpapi"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/observer"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/storage"
	"gitlab.com/stitchfab/api/comm-audit-service/internal/usecase"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/logger"
	"gitlab.com/stitchfab/api/comm-audit-service/pkg/utils"
)

// exportCleanupInterval is how often expired export files are purged.
const exportCleanupInterval = 15 * time.Minute

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

	logger.Log.Info("Starting Communication Audit Service",
		zap.String("environment", cfg.Environment),
		zap.Int("api_port", cfg.Server.Port),
		zap.Int("ops_port", cfg.Ops.Port),
	)

	// Initialize repositories
	postgresRepo, err := initPostgresRepo(cfg.Database.PostgresDSN, cfg.Database.PostgresAutoMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize Postgres repository", zap.Error(err))
	}

	logRepo := storage.NewCommunicationLogRepoAdapter(postgresRepo)
	deliveryRepo := storage.NewDeliveryLogRepoAdapter(postgresRepo)
	preferenceRepo := storage.NewPreferenceRepoAdapter(postgresRepo)
	jobRepo := storage.NewExportJobRepoAdapter(postgresRepo)

	// Status event publisher (opt-in)
	publisher, err := initPublisher(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize status event publisher", zap.Error(err))
	}

	// Preference worker pool applies opt-out mutations off the webhook path
	preferenceWorker, err := usecase.NewPreferenceWorker(cfg.WorkerPools.Preference, preferenceRepo, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize preference worker pool", zap.Error(err))
	}

	exportService, err := usecase.NewExportService(cfg.Export, cfg.WorkerPools.Export, logRepo, jobRepo, logger.Log)
	if err != nil {
		logger.Log.Fatal("Failed to initialize export service", zap.Error(err))
	}

	auditService := usecase.NewAuditService(logRepo)
	ingestService := usecase.NewIngestService(logRepo, deliveryRepo, preferenceWorker, publisher)

	// Public API server
	apiServer := httpapi.NewServer(cfg,
		httpapi.NewAuditHandler(auditService, ingestService),
		httpapi.NewExportHandler(exportService),
		httpapi.NewWebhookHandler(ingestService),
	)

	// Ops server: probes plus metrics when enabled
	opsServer := healthcheck.NewServer(strconv.Itoa(cfg.Ops.Port), logger.Log)
	opsServer.RegisterReadinessCheck("postgres", postgresRepo.Ping)
	if metricsEnabled {
		opsServer.RegisterMetricsHandler(promhttp.Handler())
		logger.Log.Info("Metrics endpoint enabled", zap.String("path", "/metrics"), zap.Int("port", cfg.Ops.Port))
	} else {
		logger.Log.Info("Metrics endpoint disabled for environment", zap.String("environment", cfg.Environment))
	}
	opsServer.Start()

	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	// Periodic sweep of expired export files
	utils.SafeGo(func() {
		ticker := time.NewTicker(exportCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-mainCtx.Done():
				return
			case <-ticker.C:
				exportService.CleanupExpired(mainCtx)
			}
		}
	}, nil)

	// Start the API server; a listen failure is fatal
	sigChan := make(chan os.Signal, 1)
	utils.SafeGo(func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("API server stopped unexpectedly", zap.Error(err))
			mainCancel()
			select {
			case sigChan <- syscall.SIGTERM:
			default:
			}
		}
	}, nil)

	logger.Log.Info("Service started",
		zap.String("api", fmt.Sprintf("http://localhost:%d/api/v1", cfg.Server.Port)),
		zap.String("webhooks", fmt.Sprintf("http://localhost:%d/webhooks", cfg.Server.Port)),
		zap.String("health", fmt.Sprintf("http://localhost:%d/health", cfg.Ops.Port)),
	)

	// Wait for termination signal
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Log.Info("Received termination signal", zap.String("signal", sig.String()))

	mainCancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Log.Info("Starting graceful shutdown", zap.Duration("timeout", 30*time.Second))

	var wg sync.WaitGroup
	wg.Add(4)

	// Stop the public API first so no new work arrives
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping API server")
		start := time.Now()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping API server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] API server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping API server",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	// Drain the worker pools
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping worker pools")
		start := time.Now()
		preferenceWorker.Stop()
		exportService.Stop()
		logger.Log.Info("[shutdown] Worker pools stopped", zap.Duration("duration", time.Since(start)))
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping worker pools",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	// Stop the ops server
	utils.SafeGo(func() {
		defer wg.Done()
		logger.Log.Info("[shutdown] Stopping ops server")
		start := time.Now()
		if err := opsServer.Stop(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Error stopping ops server", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] Ops server stopped", zap.Duration("duration", time.Since(start)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while stopping ops server",
			zap.Any("panic", r), zap.ByteString("stack", stack))
		wg.Done()
	})

	// Close the publisher and the database last
	utils.SafeGo(func() {
		defer wg.Done()

		logger.Log.Info("[shutdown] Closing status event publisher")
		publisher.Close()

		logger.Log.Info("[shutdown] Closing PostgreSQL connection")
		pgStart := time.Now()
		if err := postgresRepo.Close(shutdownCtx); err != nil {
			logger.Log.Error("[shutdown] Failed to close PostgreSQL connection", zap.Error(err))
		} else {
			logger.Log.Info("[shutdown] PostgreSQL connection closed",
				zap.Duration("duration", time.Since(pgStart)))
		}
	}, func(r interface{}, stack []byte) {
		logger.Log.Error("[shutdown] Panic while closing connections",
			zap.Any("panic", r), zap.ByteString("stack", stack))
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

	logger.Log.Info("Communication Audit Service shutdown complete")
}

// initPostgresRepo initializes the PostgreSQL repository
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

// initPublisher returns the JetStream publisher when events are enabled,
// otherwise the no-op implementation.
func initPublisher(cfg *config.Config) (events.Publisher, error) {
	if !cfg.Events.Enabled {
		logger.Log.Info("Status event publishing disabled")
		return events.NoopPublisher{}, nil
	}

	publisher, err := events.NewJetStreamPublisher(cfg.Events.NATSURL, cfg.Events.Stream, cfg.Events.SubjectPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
	}

	logger.Log.Info("Status event publishing enabled",
		zap.String("nats_url", cfg.Events.NATSURL),
		zap.String("stream", cfg.Events.Stream),
	)
	return publisher, nil
}
