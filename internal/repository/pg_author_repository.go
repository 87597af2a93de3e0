package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// Compile-time interface verification.
var _ AuthorRepository = (*PgAuthorRepository)(nil)

// PgAuthorRepository is a PostgreSQL implementation of AuthorRepository.
type PgAuthorRepository struct {
	db DBTX
}

// NewPgAuthorRepository creates a new PostgreSQL author repository.
func NewPgAuthorRepository(db DBTX) *PgAuthorRepository {
	return &PgAuthorRepository{db: db}
}

const authorColumns = `id, name, good_reads_id, open_library_id, hardcover_id, hardcover_slug, created_at, updated_at`

// escapeLikePattern escapes LIKE metacharacters in a literal fragment so the
// fragment matches itself rather than acting as a wildcard.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Create inserts a new author.
func (r *PgAuthorRepository) Create(ctx context.Context, author *domain.Author) (*domain.Author, error) {
	if author == nil {
		return nil, domain.NewValidationError("author", "author cannot be nil")
	}
	if strings.TrimSpace(author.Name) == "" {
		return nil, domain.NewValidationError("name", "author name is required")
	}

	if author.ID == uuid.Nil {
		author.ID = uuid.New()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO authors (id, name, good_reads_id, open_library_id, hardcover_id, hardcover_slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		author.ID,
		author.Name,
		author.GoodReadsID,
		author.OpenLibraryID,
		author.HardcoverID,
		author.HardcoverSlug,
		now,
	).Scan(&author.CreatedAt, &author.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewAlreadyExistsError("author", author.ID.String())
		}
		return nil, fmt.Errorf("failed to create author: %w", err)
	}

	return author, nil
}

// GetByID retrieves an author by its UUID.
func (r *PgAuthorRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Author, error) {
	query := fmt.Sprintf(`SELECT %s FROM authors WHERE id = $1`, authorColumns)

	row := r.db.QueryRow(ctx, query, id)
	author, err := scanAuthor(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("author", id.String())
		}
		return nil, fmt.Errorf("failed to get author by ID: %w", err)
	}

	return author, nil
}

// GetByIDs retrieves the authors for the given ids.
func (r *PgAuthorRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Author, error) {
	if len(ids) == 0 {
		return []*domain.Author{}, nil
	}

	query := fmt.Sprintf(`SELECT %s FROM authors WHERE id = ANY($1) ORDER BY name ASC`, authorColumns)

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get authors by IDs: %w", err)
	}
	defer rows.Close()

	authors := make([]*domain.Author, 0, len(ids))
	for rows.Next() {
		author, err := scanAuthorFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, author)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating authors: %w", err)
	}

	return authors, nil
}

// List retrieves authors matching the filter criteria ordered by name.
func (r *PgAuthorRepository) List(ctx context.Context, filter AuthorFilter) ([]*domain.Author, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	// Build dynamic WHERE clause
	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.NameContains != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, "%"+escapeLikePattern(filter.NameContains)+"%")
		argIndex++
	}

	if filter.NamePrefix != "" {
		conditions = append(conditions, fmt.Sprintf("name ILIKE $%d", argIndex))
		args = append(args, escapeLikePattern(filter.NamePrefix)+"%")
		argIndex++
	}

	if filter.HasHardcoverID != nil {
		if *filter.HasHardcoverID {
			conditions = append(conditions, "hardcover_id IS NOT NULL AND hardcover_id != ''")
		} else {
			conditions = append(conditions, "(hardcover_id IS NULL OR hardcover_id = '')")
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM authors %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count authors: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM authors
		%s
		ORDER BY name ASC, id ASC
		LIMIT $%d OFFSET $%d`,
		authorColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list authors: %w", err)
	}
	defer rows.Close()

	authors := make([]*domain.Author, 0, filter.Limit)
	for rows.Next() {
		author, err := scanAuthorFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan author: %w", err)
		}
		authors = append(authors, author)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating authors: %w", err)
	}

	return authors, totalCount, nil
}

// Count returns the total number of author records.
func (r *PgAuthorRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM authors").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count authors: %w", err)
	}
	return count, nil
}

// UpdateHardcover sets the Hardcover identifier and slug for an author.
func (r *PgAuthorRepository) UpdateHardcover(ctx context.Context, id uuid.UUID, hardcoverID, hardcoverSlug *string) error {
	query := `
		UPDATE authors
		SET hardcover_id = $1, hardcover_slug = $2, updated_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(ctx, query, hardcoverID, hardcoverSlug, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update author hardcover ids: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("author", id.String())
	}

	return nil
}

// Delete removes the given authors.
func (r *PgAuthorRepository) Delete(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	result, err := r.db.Exec(ctx, "DELETE FROM authors WHERE id = ANY($1)", ids)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return 0, domain.NewValidationError("ids", "author still has attribution links")
		}
		return 0, fmt.Errorf("failed to delete authors: %w", err)
	}

	return result.RowsAffected(), nil
}

// authorScanDest holds the destination pointers for scanning an Author row.
type authorScanDest struct {
	author domain.Author
}

// destinations returns the slice of pointers for Scan operations.
func (d *authorScanDest) destinations() []interface{} {
	return []interface{}{
		&d.author.ID, &d.author.Name,
		&d.author.GoodReadsID, &d.author.OpenLibraryID,
		&d.author.HardcoverID, &d.author.HardcoverSlug,
		&d.author.CreatedAt, &d.author.UpdatedAt,
	}
}

// scanAuthor scans a single row into an Author.
func scanAuthor(row pgx.Row) (*domain.Author, error) {
	var dest authorScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.author, nil
}

// scanAuthorFromRows scans the current row from pgx.Rows into an Author.
func scanAuthorFromRows(rows pgx.Rows) (*domain.Author, error) {
	var dest authorScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.author, nil
}
