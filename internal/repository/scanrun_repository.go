package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// ScanRunRepository handles bookkeeping for duplicate scan runs. A run is
// created in the running state, then completed or failed exactly once.
type ScanRunRepository interface {
	// Create inserts a run in the running state. A nil ID is replaced with
	// a fresh UUID.
	Create(ctx context.Context, run *domain.DuplicateScanRun) (*domain.DuplicateScanRun, error)

	// Complete marks a run completed with its final counters.
	// Returns domain.ErrNotFound if the run does not exist.
	Complete(ctx context.Context, id uuid.UUID, totalAuthors, duplicatesFound int, processingTimeMs int64) error

	// Fail marks a run failed, recording the error text.
	// Returns domain.ErrNotFound if the run does not exist.
	Fail(ctx context.Context, id uuid.UUID, errMsg string, processingTimeMs int64) error

	// GetByID retrieves a run by its UUID.
	// Returns domain.ErrNotFound if no matching run exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DuplicateScanRun, error)

	// ListRecent retrieves the most recent runs, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.DuplicateScanRun, error)
}
