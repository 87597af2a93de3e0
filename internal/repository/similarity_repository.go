package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// SimilarityRepository handles candidate-duplicate edges between authors and
// their review lifecycle. Edges are symmetric: a pair is stored once
// regardless of endpoint order, and ExistingPairKeys exposes the stored pairs
// in canonical form so scans can skip them.
type SimilarityRepository interface {
	// Create inserts a new similarity edge. A nil ID is replaced with a
	// fresh UUID. Returns domain.ErrAlreadyExists if the pair is already
	// recorded in either order.
	Create(ctx context.Context, sim *domain.AuthorSimilarity) (*domain.AuthorSimilarity, error)

	// GetByID retrieves a similarity edge by its UUID.
	// Returns domain.ErrNotFound if no matching edge exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.AuthorSimilarity, error)

	// ExistingPairKeys returns the canonical pair keys (domain.PairKey) of
	// all stored edges, used by scans to avoid re-recording known pairs.
	ExistingPairKeys(ctx context.Context) (map[string]struct{}, error)

	// List retrieves similarity edges matching the filter criteria ordered
	// by score descending. Returns the matches and total count.
	List(ctx context.Context, filter SimilarityFilter) ([]*domain.AuthorSimilarity, int64, error)

	// UpdateStatus transitions an edge's review status and records the
	// reviewer and notes. Returns domain.ErrNotFound if the edge does not
	// exist and domain.ErrInvalidInput for an unknown status.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SimilarityStatus, reviewedBy string, notes *string) error

	// MarkMerged marks the given edges merged, stamping the merge record id
	// and the reviewer who executed the merge.
	MarkMerged(ctx context.Context, ids []uuid.UUID, mergeID uuid.UUID, reviewedBy string) (int64, error)

	// MarkMergedForAuthors marks every pending edge touching any of the
	// given authors as merged, stamping the merge record id, the reviewer,
	// and a note. Used to sweep edges that referenced authors absorbed by a
	// merge.
	MarkMergedForAuthors(ctx context.Context, authorIDs []uuid.UUID, mergeID uuid.UUID, reviewedBy, note string) (int64, error)

	// StatusCounts returns the number of edges per review status.
	StatusCounts(ctx context.Context) (map[domain.SimilarityStatus]int64, error)

	// PendingConfidenceCounts returns the number of pending edges per
	// confidence tier.
	PendingConfidenceCounts(ctx context.Context) (map[domain.Confidence]int64, error)

	// PendingScoreRanges returns the number of pending edges per score
	// bucket, keyed by range label (e.g. "95-100").
	PendingScoreRanges(ctx context.Context) (map[string]int64, error)
}

// SimilarityFilter specifies criteria for listing similarity edges.
type SimilarityFilter struct {
	// Status filters to edges with a specific review status (optional).
	Status *domain.SimilarityStatus

	// MinScore filters to edges with at least this score (optional).
	MinScore *int

	// Confidence filters to edges with a specific confidence tier (optional).
	Confidence *domain.Confidence

	// AuthorID filters to edges touching a specific author (optional).
	AuthorID *uuid.UUID

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *SimilarityFilter) Validate() error {
	if f.Status != nil && !domain.ValidSimilarityStatus(*f.Status) {
		return domain.NewValidationError("status", "unknown similarity status")
	}
	if f.MinScore != nil && (*f.MinScore < 0 || *f.MinScore > 100) {
		return domain.NewValidationError("min_score", "score must be between 0 and 100")
	}
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
