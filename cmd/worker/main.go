// Package main provides the entry point for the Hardcover enrichment worker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/database"
	"github.com/ibdb/book-catalog-service/internal/enrich"
	"github.com/ibdb/book-catalog-service/internal/hardcover"
	"github.com/ibdb/book-catalog-service/internal/observability"
	"github.com/ibdb/book-catalog-service/internal/queue"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	populate := flag.Bool("populate", false, "Backfill the queue from books missing a Hardcover id before processing")
	once := flag.Bool("once", false, "Run a single claim cycle and exit")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Hardcover.Token == "" {
		return fmt.Errorf("BOOKDB_HARDCOVER_TOKEN is required")
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "worker").Logger()
	logger.Info().Msg("book-catalog-service worker starting")

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

	// Create metrics.
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics("book_catalog_worker")
	}

	// Create repositories and the queue manager.
	authorRepo := repository.NewPgAuthorRepository(db)
	bookRepo := repository.NewPgBookRepository(db)
	queueRepo := repository.NewPgQueueRepository(db)
	queueManager := queue.NewManager(db, queueRepo, bookRepo, logger, metrics, cfg.Queue.ClaimLimit)

	// Create the Hardcover catalog client.
	catalog := hardcover.NewClient(cfg.Hardcover, logger, metrics)

	// Create the enrichment worker.
	worker := enrich.NewWorker(queueManager, catalog, bookRepo, authorRepo, logger, metrics, cfg.Queue)

	if *populate {
		added, err := queueManager.Populate(ctx)
		if err != nil {
			return fmt.Errorf("populate queue: %w", err)
		}
		logger.Info().Int64("added", added).Msg("queue backfilled from books missing hardcover ids")
	}

	if *once {
		stats, err := worker.RunCycle(ctx)
		if err != nil {
			return fmt.Errorf("run cycle: %w", err)
		}
		logger.Info().
			Int("claimed", stats.Claimed).
			Int("enriched", stats.Enriched).
			Int("no_match", stats.NoMatch).
			Int("failed", stats.Failed).
			Msg("single claim cycle complete")
		return nil
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker stopped: %w", err)
	}

	logger.Info().Msg("book-catalog-service worker shutdown complete")
	return nil
}
