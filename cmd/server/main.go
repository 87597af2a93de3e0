// Package main provides the entry point for the book catalog HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/database"
	"github.com/ibdb/book-catalog-service/internal/dedup"
	"github.com/ibdb/book-catalog-service/internal/events"
	"github.com/ibdb/book-catalog-service/internal/merge"
	"github.com/ibdb/book-catalog-service/internal/observability"
	"github.com/ibdb/book-catalog-service/internal/queue"
	"github.com/ibdb/book-catalog-service/internal/repository"
	httpserver "github.com/ibdb/book-catalog-service/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("book-catalog-service server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL.
	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logger.Info().Msg("database connection established")

	// Run migrations if configured.
	if cfg.Database.MigrationAutoRun {
		migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
		if err != nil {
			return fmt.Errorf("create migrator: %w", err)
		}
		defer func() {
			if closeErr := migrator.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close migrator")
			}
		}()

		if err := migrator.Up(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}

	// Create metrics.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("book_catalog")
	}

	// Create repositories.
	authorRepo := repository.NewPgAuthorRepository(db)
	bookRepo := repository.NewPgBookRepository(db)
	similarityRepo := repository.NewPgSimilarityRepository(db)
	mergeRepo := repository.NewPgMergeRepository(db)
	scanRunRepo := repository.NewPgScanRunRepository(db)
	queueRepo := repository.NewPgQueueRepository(db)

	// Create the Kafka event publisher. Disabled configurations yield a
	// no-op publisher, so the wiring below stays unconditional.
	publisher := events.NewPublisher(cfg.Kafka, logger)
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close event publisher")
		}
	}()

	// Create the dedup engine.
	detector := dedup.NewDetector(authorRepo, cfg.Dedup.ScanPageSize)
	scanner := dedup.NewScanner(db, detector, similarityRepo, scanRunRepo, logger, metrics, cfg.Dedup.MinScore)

	// Create the merge coordinator and queue manager.
	coordinator := merge.NewCoordinator(db, logger, metrics, publisher)
	queueManager := queue.NewManager(db, queueRepo, bookRepo, logger, metrics, cfg.Queue.ClaimLimit)

	// Create the HTTP server.
	httpSrv := httpserver.NewServer(
		httpserver.Config{
			Address:         cfg.Server.HTTPAddress(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			UpdateSecret:    cfg.Server.UpdateSecret,
			StaleClaimAge:   time.Duration(cfg.Queue.StaleClaimMinutes) * time.Minute,
		},
		scanner,
		detector,
		coordinator,
		queueManager,
		publisher,
		authorRepo,
		bookRepo,
		similarityRepo,
		mergeRepo,
		scanRunRepo,
		db,
		logger,
	)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", cfg.Server.HTTPAddress()).
		Msg("book-catalog-service is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down book-catalog-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logger.Info().Msg("book-catalog-service shutdown complete")
	return nil
}
