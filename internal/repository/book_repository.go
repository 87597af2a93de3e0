package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// BookRepository handles book persistence, editions, and author attribution
// links. The merge transaction reattaches links through BookIDsByAuthors,
// LinkAuthor, and UnlinkAuthors; the enrichment pipeline hydrates claimed
// books through GetByIDs and writes identifiers through the Update methods.
type BookRepository interface {
	// Create inserts a new book together with its attribution links.
	// A nil ID is replaced with a fresh UUID.
	Create(ctx context.Context, book *domain.Book) (*domain.Book, error)

	// GetByID retrieves a book hydrated with its authors and editions
	// (editions ordered newest first).
	// Returns domain.ErrNotFound if no matching book exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Book, error)

	// GetByIDs retrieves hydrated books for the given ids, preserving the
	// input order. Missing ids are silently omitted.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Book, error)

	// BookIDsByAuthors returns the distinct ids of books attributed to any
	// of the given authors.
	BookIDsByAuthors(ctx context.Context, authorIDs []uuid.UUID) ([]uuid.UUID, error)

	// LinkAuthor attributes a book to an author. Returns true if a new link
	// was created, false if the link already existed (idempotent).
	LinkAuthor(ctx context.Context, bookID, authorID uuid.UUID) (bool, error)

	// UnlinkAuthors removes all attribution links between the given books
	// and the given authors. Returns the number of links removed.
	UnlinkAuthors(ctx context.Context, bookIDs, authorIDs []uuid.UUID) (int64, error)

	// AddEdition inserts an edition for a book.
	AddEdition(ctx context.Context, edition *domain.Edition) (*domain.Edition, error)

	// ListMissingHardcover retrieves books without a Hardcover identifier.
	// Returns the matching books and total count for pagination.
	ListMissingHardcover(ctx context.Context, limit, offset int) ([]*domain.Book, int64, error)

	// UpdateHardcover sets the Hardcover identifier and slug for a book.
	// Returns domain.ErrNotFound if the book does not exist.
	UpdateHardcover(ctx context.Context, id uuid.UUID, hardcoverID, hardcoverSlug *string) error

	// UpdateEditionHardcover sets the Hardcover edition identifier for an
	// edition. Returns domain.ErrNotFound if the edition does not exist.
	UpdateEditionHardcover(ctx context.Context, editionID uuid.UUID, hardcoverID string) error
}
