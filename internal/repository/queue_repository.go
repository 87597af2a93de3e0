package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// QueueRepository provides row-level operations on the Hardcover enrichment
// queue. The lease protocol (claim, release, expiry, cleanup) is composed
// from these primitives by the queue package, which runs the claim sequence
// inside a single transaction.
type QueueRepository interface {
	// Add enqueues a book. Returns true if a new entry was created, false
	// if the book is already queued (idempotent).
	Add(ctx context.Context, bookID uuid.UUID) (bool, error)

	// Remove deletes the entry for a book regardless of claim state.
	// Returns the number of entries removed (0 or 1).
	Remove(ctx context.Context, bookID uuid.UUID) (int64, error)

	// DeleteByProcessingID deletes all entries claimed under a lease token.
	// The claim sequence uses this to discard the previous batch before
	// handing out a new one.
	DeleteByProcessingID(ctx context.Context, processingID uuid.UUID) (int64, error)

	// SelectUnclaimed returns up to limit unclaimed entries, oldest first.
	// Rows are locked with FOR UPDATE SKIP LOCKED so concurrent claim
	// transactions never hand out the same entry.
	SelectUnclaimed(ctx context.Context, limit int) ([]*domain.QueueEntry, error)

	// Claim stamps the given entries with the lease token and claim time.
	// Returns the number of entries stamped.
	Claim(ctx context.Context, ids []uuid.UUID, processingID uuid.UUID, claimTime time.Time) (int64, error)

	// ListByProcessingID returns the entries currently held under a lease
	// token.
	ListByProcessingID(ctx context.Context, processingID uuid.UUID) ([]*domain.QueueEntry, error)

	// ReleaseByProcessingID clears the lease on all entries held under a
	// token, returning them to the unclaimed pool. Returns the number of
	// entries released.
	ReleaseByProcessingID(ctx context.Context, processingID uuid.UUID) (int64, error)

	// ReleaseOlderThan clears leases claimed before the cutoff. Returns the
	// number of entries released.
	ReleaseOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteCompleted removes entries whose book has since received a
	// Hardcover identifier. Returns the number of entries removed.
	DeleteCompleted(ctx context.Context) (int64, error)

	// PopulateMissing enqueues every book lacking a Hardcover identifier
	// that is not already queued. Returns the number of entries created.
	PopulateMissing(ctx context.Context) (int64, error)

	// CountUnclaimed returns the number of entries with no active lease.
	CountUnclaimed(ctx context.Context) (int64, error)

	// Count returns the total number of queue entries.
	Count(ctx context.Context) (int64, error)
}
