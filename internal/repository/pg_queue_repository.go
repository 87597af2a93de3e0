package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// Compile-time interface verification.
var _ QueueRepository = (*PgQueueRepository)(nil)

// PgQueueRepository is a PostgreSQL implementation of QueueRepository.
type PgQueueRepository struct {
	db DBTX
}

// NewPgQueueRepository creates a new PostgreSQL queue repository.
func NewPgQueueRepository(db DBTX) *PgQueueRepository {
	return &PgQueueRepository{db: db}
}

const queueColumns = `id, book_id, processing_id, claim_time, created_at`

// Add enqueues a book.
func (r *PgQueueRepository) Add(ctx context.Context, bookID uuid.UUID) (bool, error) {
	if bookID == uuid.Nil {
		return false, domain.NewValidationError("book_id", "book id is required")
	}

	query := `
		INSERT INTO hardcover_queue (id, book_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (book_id) DO NOTHING`

	result, err := r.db.Exec(ctx, query, uuid.New(), bookID, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, domain.NewNotFoundError("book", bookID.String())
		}
		return false, fmt.Errorf("failed to enqueue book: %w", err)
	}

	return result.RowsAffected() > 0, nil
}

// Remove deletes the entry for a book regardless of claim state.
func (r *PgQueueRepository) Remove(ctx context.Context, bookID uuid.UUID) (int64, error) {
	result, err := r.db.Exec(ctx, "DELETE FROM hardcover_queue WHERE book_id = $1", bookID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove queue entry: %w", err)
	}
	return result.RowsAffected(), nil
}

// DeleteByProcessingID deletes all entries claimed under a lease token.
func (r *PgQueueRepository) DeleteByProcessingID(ctx context.Context, processingID uuid.UUID) (int64, error) {
	result, err := r.db.Exec(ctx, "DELETE FROM hardcover_queue WHERE processing_id = $1", processingID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete entries by processing id: %w", err)
	}
	return result.RowsAffected(), nil
}

// SelectUnclaimed returns up to limit unclaimed entries, oldest first.
func (r *PgQueueRepository) SelectUnclaimed(ctx context.Context, limit int) ([]*domain.QueueEntry, error) {
	if limit <= 0 {
		return []*domain.QueueEntry{}, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM hardcover_queue
		WHERE processing_id IS NULL
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, queueColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select unclaimed entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.QueueEntry, 0, limit)
	for rows.Next() {
		entry, err := scanQueueEntryFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}

// Claim stamps the given entries with the lease token and claim time.
func (r *PgQueueRepository) Claim(ctx context.Context, ids []uuid.UUID, processingID uuid.UUID, claimTime time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if processingID == uuid.Nil {
		return 0, domain.NewValidationError("processing_id", "processing id is required")
	}

	query := `
		UPDATE hardcover_queue
		SET processing_id = $1, claim_time = $2
		WHERE id = ANY($3)`

	result, err := r.db.Exec(ctx, query, processingID, claimTime, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to claim queue entries: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListByProcessingID returns the entries currently held under a lease token.
func (r *PgQueueRepository) ListByProcessingID(ctx context.Context, processingID uuid.UUID) ([]*domain.QueueEntry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM hardcover_queue
		WHERE processing_id = $1
		ORDER BY created_at ASC`, queueColumns)

	rows, err := r.db.Query(ctx, query, processingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries by processing id: %w", err)
	}
	defer rows.Close()

	var entries []*domain.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntryFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}

	return entries, nil
}

// ReleaseByProcessingID clears the lease on all entries held under a token.
func (r *PgQueueRepository) ReleaseByProcessingID(ctx context.Context, processingID uuid.UUID) (int64, error) {
	query := `
		UPDATE hardcover_queue
		SET processing_id = NULL, claim_time = NULL
		WHERE processing_id = $1`

	result, err := r.db.Exec(ctx, query, processingID)
	if err != nil {
		return 0, fmt.Errorf("failed to release claim: %w", err)
	}

	return result.RowsAffected(), nil
}

// ReleaseOlderThan clears leases claimed before the cutoff.
func (r *PgQueueRepository) ReleaseOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE hardcover_queue
		SET processing_id = NULL, claim_time = NULL
		WHERE processing_id IS NOT NULL AND claim_time < $1`

	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release old claims: %w", err)
	}

	return result.RowsAffected(), nil
}

// DeleteCompleted removes entries whose book has since received a Hardcover
// identifier.
func (r *PgQueueRepository) DeleteCompleted(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM hardcover_queue q
		USING books b
		WHERE q.book_id = b.id AND b.hardcover_id IS NOT NULL AND b.hardcover_id != ''`

	result, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to delete completed entries: %w", err)
	}

	return result.RowsAffected(), nil
}

// PopulateMissing enqueues every book lacking a Hardcover identifier.
func (r *PgQueueRepository) PopulateMissing(ctx context.Context) (int64, error) {
	query := `
		INSERT INTO hardcover_queue (id, book_id, created_at)
		SELECT gen_random_uuid(), b.id, $1
		FROM books b
		WHERE (b.hardcover_id IS NULL OR b.hardcover_id = '')
		ON CONFLICT (book_id) DO NOTHING`

	result, err := r.db.Exec(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to populate queue: %w", err)
	}

	return result.RowsAffected(), nil
}

// CountUnclaimed returns the number of entries with no active lease.
func (r *PgQueueRepository) CountUnclaimed(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM hardcover_queue WHERE processing_id IS NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unclaimed entries: %w", err)
	}
	return count, nil
}

// Count returns the total number of queue entries.
func (r *PgQueueRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM hardcover_queue").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return count, nil
}

// queueEntryScanDest holds the destination pointers for scanning a queue row.
type queueEntryScanDest struct {
	entry domain.QueueEntry
}

// destinations returns the slice of pointers for Scan operations.
func (d *queueEntryScanDest) destinations() []interface{} {
	return []interface{}{
		&d.entry.ID, &d.entry.BookID,
		&d.entry.ProcessingID, &d.entry.ClaimTime,
		&d.entry.CreatedAt,
	}
}

// scanQueueEntryFromRows scans the current row from pgx.Rows into a QueueEntry.
func scanQueueEntryFromRows(rows pgx.Rows) (*domain.QueueEntry, error) {
	var dest queueEntryScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.entry, nil
}
