package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// Compile-time interface verification.
var _ MergeRepository = (*PgMergeRepository)(nil)

// PgMergeRepository is a PostgreSQL implementation of MergeRepository.
type PgMergeRepository struct {
	db DBTX
}

// NewPgMergeRepository creates a new PostgreSQL merge repository.
func NewPgMergeRepository(db DBTX) *PgMergeRepository {
	return &PgMergeRepository{db: db}
}

const mergeColumns = `id, merged_author_ids, merged_author_names, target_author_id, target_author_name, merged_by, merge_reason, books_reassigned, created_at`

// Create inserts a merge audit record.
func (r *PgMergeRepository) Create(ctx context.Context, merge *domain.AuthorMerge) (*domain.AuthorMerge, error) {
	if merge == nil {
		return nil, domain.NewValidationError("merge", "merge cannot be nil")
	}
	if len(merge.MergedAuthorIDs) == 0 {
		return nil, domain.NewValidationError("merged_author_ids", "at least one absorbed author is required")
	}
	if merge.TargetAuthorID == uuid.Nil {
		return nil, domain.NewValidationError("target_author_id", "target author is required")
	}

	if merge.ID == uuid.Nil {
		merge.ID = uuid.New()
	}

	query := `
		INSERT INTO author_merges (
			id, merged_author_ids, merged_author_names,
			target_author_id, target_author_name,
			merged_by, merge_reason, books_reassigned, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		merge.ID,
		merge.MergedAuthorIDs,
		merge.MergedAuthorNames,
		merge.TargetAuthorID,
		merge.TargetAuthorName,
		merge.MergedBy,
		merge.MergeReason,
		merge.BooksReassigned,
		time.Now().UTC(),
	).Scan(&merge.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create merge record: %w", err)
	}

	return merge, nil
}

// GetByID retrieves a merge record by its UUID.
func (r *PgMergeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AuthorMerge, error) {
	query := fmt.Sprintf(`SELECT %s FROM author_merges WHERE id = $1`, mergeColumns)

	row := r.db.QueryRow(ctx, query, id)
	merge, err := scanMerge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("merge", id.String())
		}
		return nil, fmt.Errorf("failed to get merge by ID: %w", err)
	}

	return merge, nil
}

// List retrieves merge records ordered newest first.
func (r *PgMergeRepository) List(ctx context.Context, limit, offset int) ([]*domain.AuthorMerge, int64, error) {
	applyPaginationDefaults(&limit, &offset)

	var totalCount int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM author_merges").Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count merges: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM author_merges
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, mergeColumns)

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list merges: %w", err)
	}
	defer rows.Close()

	merges := make([]*domain.AuthorMerge, 0, limit)
	for rows.Next() {
		merge, err := scanMergeFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan merge: %w", err)
		}
		merges = append(merges, merge)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating merges: %w", err)
	}

	return merges, totalCount, nil
}

// Totals returns the number of merges and total book attributions reassigned.
func (r *PgMergeRepository) Totals(ctx context.Context) (int64, int64, error) {
	var merges, booksReassigned int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(books_reassigned), 0) FROM author_merges`,
	).Scan(&merges, &booksReassigned)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get merge totals: %w", err)
	}
	return merges, booksReassigned, nil
}

// mergeScanDest holds the destination pointers for scanning a merge row.
type mergeScanDest struct {
	merge domain.AuthorMerge
}

// destinations returns the slice of pointers for Scan operations.
func (d *mergeScanDest) destinations() []interface{} {
	return []interface{}{
		&d.merge.ID,
		&d.merge.MergedAuthorIDs, &d.merge.MergedAuthorNames,
		&d.merge.TargetAuthorID, &d.merge.TargetAuthorName,
		&d.merge.MergedBy, &d.merge.MergeReason,
		&d.merge.BooksReassigned, &d.merge.CreatedAt,
	}
}

// scanMerge scans a single row into an AuthorMerge.
func scanMerge(row pgx.Row) (*domain.AuthorMerge, error) {
	var dest mergeScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.merge, nil
}

// scanMergeFromRows scans the current row from pgx.Rows into an AuthorMerge.
func scanMergeFromRows(rows pgx.Rows) (*domain.AuthorMerge, error) {
	var dest mergeScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.merge, nil
}
