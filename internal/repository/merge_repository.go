package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// MergeRepository handles the immutable audit trail of completed author
// merges. Records are written inside the merge transaction and never updated.
type MergeRepository interface {
	// Create inserts a merge audit record. A nil ID is replaced with a
	// fresh UUID.
	Create(ctx context.Context, merge *domain.AuthorMerge) (*domain.AuthorMerge, error)

	// GetByID retrieves a merge record by its UUID.
	// Returns domain.ErrNotFound if no matching record exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AuthorMerge, error)

	// List retrieves merge records ordered newest first.
	// Returns the matching records and total count for pagination.
	List(ctx context.Context, limit, offset int) ([]*domain.AuthorMerge, int64, error)

	// Totals returns the number of merges performed and the total number of
	// book attributions they reassigned.
	Totals(ctx context.Context) (merges int64, booksReassigned int64, err error)
}
