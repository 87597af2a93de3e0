// Package enrich runs the Hardcover enrichment pipeline: claiming queued
// books, resolving their external identifiers through the Hardcover API, and
// writing the identifiers back onto books, editions, and authors.
package enrich

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/dedup"
	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/hardcover"
	"github.com/ibdb/book-catalog-service/internal/observability"
	"github.com/ibdb/book-catalog-service/internal/queue"
)

// QueueManager is the queue surface the worker drives. Satisfied by
// *queue.Manager.
type QueueManager interface {
	ClaimBooks(ctx context.Context, previousProcessingID *uuid.UUID, limit int) (*queue.ClaimResult, error)
	ReleaseOldClaims(ctx context.Context, age time.Duration) (int64, error)
	RemoveBookFromQueue(ctx context.Context, bookID uuid.UUID) (bool, error)
}

// CatalogClient resolves external identifiers for a book. Satisfied by
// *hardcover.Client.
type CatalogClient interface {
	Lookup(ctx context.Context, title, authorName, isbn string) (*hardcover.LookupResult, error)
}

// BookUpdater writes resolved identifiers onto books and editions.
// Satisfied by *repository.PgBookRepository.
type BookUpdater interface {
	UpdateHardcover(ctx context.Context, id uuid.UUID, hardcoverID, hardcoverSlug *string) error
	UpdateEditionHardcover(ctx context.Context, editionID uuid.UUID, hardcoverID string) error
}

// AuthorUpdater writes resolved identifiers onto authors. Satisfied by
// *repository.PgAuthorRepository.
type AuthorUpdater interface {
	UpdateHardcover(ctx context.Context, id uuid.UUID, hardcoverID, hardcoverSlug *string) error
}

// CycleStats summarizes one claim cycle.
type CycleStats struct {
	Claimed  int
	Enriched int
	NoMatch  int
	Failed   int
}

// Worker is the long-running enrichment loop. One worker holds at most one
// claim at a time; the previous cycle's token is handed to the next claim, so
// its entries are discarded as the new batch is leased.
type Worker struct {
	queue   QueueManager
	catalog CatalogClient
	books   BookUpdater
	authors AuthorUpdater
	logger  zerolog.Logger
	metrics *observability.Metrics

	claimLimit   int
	pollInterval time.Duration
	staleAge     time.Duration

	previousProcessingID *uuid.UUID
}

// NewWorker wires an enrichment worker. metrics may be nil.
func NewWorker(
	queueManager QueueManager,
	catalog CatalogClient,
	books BookUpdater,
	authors AuthorUpdater,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	cfg config.QueueConfig,
) *Worker {
	claimLimit := cfg.ClaimLimit
	if claimLimit <= 0 {
		claimLimit = 100
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	staleAge := time.Duration(cfg.StaleClaimMinutes) * time.Minute
	if staleAge <= 0 {
		staleAge = 30 * time.Minute
	}

	return &Worker{
		queue:        queueManager,
		catalog:      catalog,
		books:        books,
		authors:      authors,
		logger:       logger.With().Str("component", "enrich_worker").Logger(),
		metrics:      metrics,
		claimLimit:   claimLimit,
		pollInterval: pollInterval,
		staleAge:     staleAge,
	}
}

// Run processes claim cycles until the context is canceled. An empty queue
// or a failed cycle pauses for the poll interval; a full cycle claims again
// immediately so a backlog drains at the API rate limit rather than the poll
// rate.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Int("claim_limit", w.claimLimit).
		Dur("poll_interval", w.pollInterval).
		Dur("stale_age", w.staleAge).
		Msg("enrichment worker started")

	for {
		stats, err := w.RunCycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				w.logger.Info().Msg("enrichment worker stopping")
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("enrichment cycle failed")
		}

		if err == nil && stats.Claimed > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("enrichment worker stopping")
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// RunCycle releases stale leases, claims one batch, and enriches every book
// in it. Books that fail or find no match stay on the queue; their entries
// are discarded with the rest of the batch when the next cycle claims.
func (w *Worker) RunCycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	if _, err := w.queue.ReleaseOldClaims(ctx, w.staleAge); err != nil {
		return stats, err
	}

	claim, err := w.queue.ClaimBooks(ctx, w.previousProcessingID, w.claimLimit)
	if err != nil {
		return stats, err
	}
	w.previousProcessingID = &claim.ProcessingID
	stats.Claimed = len(claim.Books)

	if stats.Claimed == 0 {
		return stats, nil
	}

	logger := observability.WithClaimContext(w.logger, claim.ProcessingID.String(), stats.Claimed)
	for _, book := range claim.Books {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		enriched, err := w.EnrichBook(ctx, book)
		switch {
		case err != nil:
			stats.Failed++
			logger.Warn().Err(err).
				Str("book_id", book.ID.String()).
				Str("title", book.Title).
				Msg("enrichment failed")
		case enriched:
			stats.Enriched++
		default:
			stats.NoMatch++
		}
	}

	logger.Info().
		Int("enriched", stats.Enriched).
		Int("no_match", stats.NoMatch).
		Int("failed", stats.Failed).
		Msg("enrichment cycle finished")

	return stats, nil
}

// EnrichBook resolves identifiers for one book and writes them back. It
// returns false with a nil error when Hardcover has no match; the queue entry
// is removed only on success.
func (w *Worker) EnrichBook(ctx context.Context, book *domain.Book) (bool, error) {
	edition := book.LatestEdition()

	isbn := ""
	if edition != nil && edition.ISBN13 != nil {
		isbn = *edition.ISBN13
	}
	authorName := ""
	if len(book.Authors) > 0 {
		authorName = book.Authors[0].Name
	}

	result, err := w.catalog.Lookup(ctx, book.Title, authorName, isbn)
	if err != nil {
		return false, err
	}
	if result == nil {
		w.logger.Debug().
			Str("book_id", book.ID.String()).
			Str("title", book.Title).
			Msg("no catalog match")
		return false, nil
	}

	if err := w.books.UpdateHardcover(ctx, book.ID, &result.BookID, &result.BookSlug); err != nil {
		return false, err
	}

	// The edition identifier belongs to the edition whose ISBN matched.
	if result.EditionID != "" && edition != nil && edition.HardcoverID == nil {
		if err := w.books.UpdateEditionHardcover(ctx, edition.ID, result.EditionID); err != nil {
			return false, err
		}
	}

	w.applyAuthorIdentifiers(ctx, book, result.Contributions)

	if _, err := w.queue.RemoveBookFromQueue(ctx, book.ID); err != nil {
		return false, err
	}
	if w.metrics != nil {
		w.metrics.RecordQueueCompleted(1)
	}

	return true, nil
}

// applyAuthorIdentifiers matches catalog contributions to the book's local
// authors by normalized name. Authors that already carry an identifier are
// left alone; a failed author update does not fail the book.
func (w *Worker) applyAuthorIdentifiers(ctx context.Context, book *domain.Book, contributions []hardcover.Contribution) {
	for _, author := range book.Authors {
		if author.HardcoverID != nil {
			continue
		}

		normalized := dedup.Normalize(author.Name)
		for _, contribution := range contributions {
			if dedup.Normalize(contribution.AuthorName) != normalized {
				continue
			}

			hardcoverID := contribution.AuthorID
			hardcoverSlug := contribution.AuthorSlug
			if err := w.authors.UpdateHardcover(ctx, author.ID, &hardcoverID, &hardcoverSlug); err != nil {
				w.logger.Warn().Err(err).
					Str("author_id", author.ID.String()).
					Str("name", author.Name).
					Msg("failed to store author identifier")
			}
			break
		}
	}
}
