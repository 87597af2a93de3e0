// Package domain provides domain models and business logic for the book catalog service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Catalog identifies an external book catalog that can contribute
// identifiers for authors and books.
type Catalog string

const (
	CatalogGoodReads   Catalog = "goodreads"
	CatalogOpenLibrary Catalog = "openlibrary"
	CatalogHardcover   Catalog = "hardcover"
)

// Author represents an author record. Duplicate records for the same person
// are expected to exist transiently; the dedup pipeline converges them.
type Author struct {
	ID            uuid.UUID
	Name          string
	GoodReadsID   *string
	OpenLibraryID *string
	HardcoverID   *string
	HardcoverSlug *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExternalID returns the identifier this author carries for the given catalog,
// or nil when none is recorded.
func (a *Author) ExternalID(c Catalog) *string {
	switch c {
	case CatalogGoodReads:
		return a.GoodReadsID
	case CatalogOpenLibrary:
		return a.OpenLibraryID
	case CatalogHardcover:
		return a.HardcoverID
	default:
		return nil
	}
}

// Book represents a book record linked to one or more authors.
type Book struct {
	ID            uuid.UUID
	Title         string
	HardcoverID   *string
	HardcoverSlug *string
	Authors       []Author
	Editions      []Edition
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LatestEdition returns the most recently created edition, or nil when the
// book has none loaded. Editions are ordered newest first by the repository
// layer.
func (b *Book) LatestEdition() *Edition {
	if len(b.Editions) == 0 {
		return nil
	}
	return &b.Editions[0]
}

// Edition represents a specific published edition of a book.
type Edition struct {
	ID          uuid.UUID
	BookID      uuid.UUID
	ISBN13      *string
	HardcoverID *string
	CreatedAt   time.Time
}

// QueueEntry is one row in the Hardcover enrichment queue: a book awaiting
// external-identifier backfill. A nil ProcessingID means the entry is
// unclaimed; a claimed entry carries the worker's lease token and claim time.
type QueueEntry struct {
	ID           uuid.UUID
	BookID       uuid.UUID
	ProcessingID *uuid.UUID
	ClaimTime    *time.Time
	CreatedAt    time.Time
}

// Claimed reports whether the entry currently holds a lease.
func (e *QueueEntry) Claimed() bool {
	return e.ProcessingID != nil
}
