package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// AuthorRepository handles author persistence and catalog identifier updates.
// The dedup pipeline reads authors in bulk through List and deletes absorbed
// records through Delete; the enrichment worker writes Hardcover identifiers
// through UpdateHardcover.
type AuthorRepository interface {
	// Create inserts a new author. A nil ID is replaced with a fresh UUID.
	Create(ctx context.Context, author *domain.Author) (*domain.Author, error)

	// GetByID retrieves an author by its UUID.
	// Returns domain.ErrNotFound if no matching author exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Author, error)

	// GetByIDs retrieves the authors for the given ids. Missing ids are
	// silently omitted from the result; callers that need strict presence
	// checks compare lengths.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Author, error)

	// List retrieves authors matching the filter criteria ordered by name.
	// Returns the matching authors and total count for pagination.
	List(ctx context.Context, filter AuthorFilter) ([]*domain.Author, int64, error)

	// Count returns the total number of author records.
	Count(ctx context.Context) (int64, error)

	// UpdateHardcover sets the Hardcover identifier and slug for an author.
	// Returns domain.ErrNotFound if the author does not exist.
	UpdateHardcover(ctx context.Context, id uuid.UUID, hardcoverID, hardcoverSlug *string) error

	// Delete removes the given authors and returns the number of rows
	// deleted. Attribution links must be removed first; a remaining link
	// surfaces as a foreign key violation.
	Delete(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// AuthorFilter specifies criteria for listing authors via AuthorRepository.List.
type AuthorFilter struct {
	// NameContains filters to authors whose name contains this substring,
	// case-insensitively (optional).
	NameContains string

	// NamePrefix filters to authors whose name starts with this string,
	// case-insensitively (optional). Used for first-letter blocking during
	// duplicate scans.
	NamePrefix string

	// HasHardcoverID filters by presence of a Hardcover identifier (optional).
	HasHardcoverID *bool

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *AuthorFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
