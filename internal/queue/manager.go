// Package queue manages the lease-based work queue feeding Hardcover
// enrichment: claiming batches of books under a processing token, releasing
// abandoned leases, and garbage-collecting entries whose books were enriched
// out of band.
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/observability"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

// Transactor runs a function inside one database transaction. Satisfied by
// *database.DB.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// ClaimResult is one claim cycle's outcome: the hydrated books now leased
// under ProcessingID, and an advisory count of entries still unclaimed.
type ClaimResult struct {
	Books              []*domain.Book
	ProcessingID       uuid.UUID
	RemainingUnclaimed int64
}

// Manager implements the queue lease protocol.
type Manager struct {
	db         Transactor
	queue      repository.QueueRepository
	books      repository.BookRepository
	logger     zerolog.Logger
	metrics    *observability.Metrics
	claimLimit int
	now        func() time.Time
}

// NewManager wires a lease manager. claimLimit bounds one claim batch;
// metrics may be nil.
func NewManager(
	db Transactor,
	queue repository.QueueRepository,
	books repository.BookRepository,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	claimLimit int,
) *Manager {
	if claimLimit <= 0 {
		claimLimit = 100
	}
	return &Manager{
		db:         db,
		queue:      queue,
		books:      books,
		logger:     logger,
		metrics:    metrics,
		claimLimit: claimLimit,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ClaimBooks leases up to limit unclaimed entries under a fresh processing
// token. When previousProcessingID is supplied, entries still holding that
// token are deleted first: a finished cycle's entries are considered done and
// are discarded rather than requeued. Selection and stamping run in one
// transaction so concurrent claimers never share an entry; the book hydration
// and the remaining-count read happen after commit and may be slightly stale.
// An empty queue yields an empty claim, not an error.
func (m *Manager) ClaimBooks(ctx context.Context, previousProcessingID *uuid.UUID, limit int) (*ClaimResult, error) {
	if limit <= 0 || limit > m.claimLimit {
		limit = m.claimLimit
	}

	processingID := uuid.New()
	claimTime := m.now()

	var claimedBookIDs []uuid.UUID
	err := m.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		queue := repository.NewPgQueueRepository(tx)

		if previousProcessingID != nil && *previousProcessingID != uuid.Nil {
			discarded, err := queue.DeleteByProcessingID(ctx, *previousProcessingID)
			if err != nil {
				return err
			}
			if discarded > 0 {
				m.logger.Debug().
					Str("previous_processing_id", previousProcessingID.String()).
					Int64("discarded", discarded).
					Msg("discarded entries from previous claim cycle")
			}
		}

		entries, err := queue.SelectUnclaimed(ctx, limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		entryIDs := make([]uuid.UUID, len(entries))
		claimedBookIDs = make([]uuid.UUID, len(entries))
		for i, entry := range entries {
			entryIDs[i] = entry.ID
			claimedBookIDs[i] = entry.BookID
		}

		_, err = queue.Claim(ctx, entryIDs, processingID, claimTime)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &ClaimResult{ProcessingID: processingID, Books: []*domain.Book{}}
	if len(claimedBookIDs) > 0 {
		books, err := m.books.GetByIDs(ctx, claimedBookIDs)
		if err != nil {
			return nil, err
		}
		result.Books = books
	}

	remaining, err := m.queue.CountUnclaimed(ctx)
	if err != nil {
		return nil, err
	}
	result.RemainingUnclaimed = remaining

	if m.metrics != nil {
		m.metrics.RecordQueueClaim(len(result.Books), int(remaining))
	}
	logger := observability.WithClaimContext(m.logger, processingID.String(), len(result.Books))
	logger.Info().
		Int64("remaining_unclaimed", remaining).
		Msg("claimed queue entries")

	return result, nil
}

// ReleaseClaim clears the lease on every entry holding the token. An unknown
// token releases nothing and is not an error.
func (m *Manager) ReleaseClaim(ctx context.Context, processingID uuid.UUID) (int64, error) {
	if processingID == uuid.Nil {
		return 0, domain.NewValidationError("processing_id", "processing id is required")
	}

	released, err := m.queue.ReleaseByProcessingID(ctx, processingID)
	if err != nil {
		return 0, err
	}

	if released > 0 {
		if m.metrics != nil {
			m.metrics.RecordQueueReleased("explicit", int(released))
		}
		m.logger.Info().
			Str("processing_id", processingID.String()).
			Int64("released", released).
			Msg("released claim")
	}

	return released, nil
}

// ReleaseOldClaims clears leases older than the given age, reclaiming work
// abandoned by crashed or stalled workers.
func (m *Manager) ReleaseOldClaims(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, domain.NewValidationError("age", "age must be positive")
	}

	cutoff := m.now().Add(-age)
	released, err := m.queue.ReleaseOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if released > 0 {
		if m.metrics != nil {
			m.metrics.RecordQueueReleased("stale", int(released))
		}
		m.logger.Info().
			Int64("released", released).
			Dur("age", age).
			Msg("released stale claims")
	}

	return released, nil
}

// CleanupCompleted deletes entries whose book already carries a Hardcover
// identifier, usually because enrichment succeeded through another path.
func (m *Manager) CleanupCompleted(ctx context.Context) (int64, error) {
	deleted, err := m.queue.DeleteCompleted(ctx)
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		if m.metrics != nil {
			m.metrics.RecordQueueCompleted(int(deleted))
		}
		m.logger.Info().Int64("deleted", deleted).Msg("cleaned up completed queue entries")
	}

	return deleted, nil
}

// AddBookToQueue enqueues a book for enrichment. Returns false when the book
// is already queued.
func (m *Manager) AddBookToQueue(ctx context.Context, bookID uuid.UUID) (bool, error) {
	return m.queue.Add(ctx, bookID)
}

// RemoveBookFromQueue deletes a book's entry regardless of claim state.
// Returns false when the book was not queued.
func (m *Manager) RemoveBookFromQueue(ctx context.Context, bookID uuid.UUID) (bool, error) {
	removed, err := m.queue.Remove(ctx, bookID)
	if err != nil {
		return false, err
	}
	return removed > 0, nil
}

// Populate enqueues every book missing a Hardcover identifier that is not
// already queued. Returns the number of entries created.
func (m *Manager) Populate(ctx context.Context) (int64, error) {
	created, err := m.queue.PopulateMissing(ctx)
	if err != nil {
		return 0, err
	}

	if created > 0 {
		m.logger.Info().Int64("created", created).Msg("populated enrichment queue")
	}

	return created, nil
}

// Depth returns the number of unclaimed entries, refreshing the queue depth
// gauge as a side effect.
func (m *Manager) Depth(ctx context.Context) (int64, error) {
	remaining, err := m.queue.CountUnclaimed(ctx)
	if err != nil {
		return 0, err
	}
	if m.metrics != nil {
		m.metrics.QueueDepth.Set(float64(remaining))
	}
	return remaining, nil
}
