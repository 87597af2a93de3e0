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
var _ ScanRunRepository = (*PgScanRunRepository)(nil)

// PgScanRunRepository is a PostgreSQL implementation of ScanRunRepository.
type PgScanRunRepository struct {
	db DBTX
}

// NewPgScanRunRepository creates a new PostgreSQL scan run repository.
func NewPgScanRunRepository(db DBTX) *PgScanRunRepository {
	return &PgScanRunRepository{db: db}
}

const scanRunColumns = `id, scan_type, min_score, status, total_authors, duplicates_found, processing_time_ms, error, created_at, completed_at`

// Create inserts a run in the running state.
func (r *PgScanRunRepository) Create(ctx context.Context, run *domain.DuplicateScanRun) (*domain.DuplicateScanRun, error) {
	if run == nil {
		return nil, domain.NewValidationError("run", "run cannot be nil")
	}
	if !domain.ValidScanType(run.ScanType) {
		return nil, domain.NewValidationError("scan_type", "unknown scan type")
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = domain.ScanStatusRunning

	query := `
		INSERT INTO duplicate_scan_runs (id, scan_type, min_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		run.ID,
		run.ScanType,
		run.MinScore,
		run.Status,
		time.Now().UTC(),
	).Scan(&run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan run: %w", err)
	}

	return run, nil
}

// Complete marks a run completed with its final counters.
func (r *PgScanRunRepository) Complete(ctx context.Context, id uuid.UUID, totalAuthors, duplicatesFound int, processingTimeMs int64) error {
	query := `
		UPDATE duplicate_scan_runs
		SET status = $1, total_authors = $2, duplicates_found = $3, processing_time_ms = $4, completed_at = $5
		WHERE id = $6`

	result, err := r.db.Exec(ctx, query,
		domain.ScanStatusCompleted, totalAuthors, duplicatesFound, processingTimeMs, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete scan run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("scan run", id.String())
	}

	return nil
}

// Fail marks a run failed, recording the error text.
func (r *PgScanRunRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string, processingTimeMs int64) error {
	query := `
		UPDATE duplicate_scan_runs
		SET status = $1, error = $2, processing_time_ms = $3, completed_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(ctx, query,
		domain.ScanStatusFailed, errMsg, processingTimeMs, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark scan run failed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("scan run", id.String())
	}

	return nil
}

// GetByID retrieves a run by its UUID.
func (r *PgScanRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.DuplicateScanRun, error) {
	query := fmt.Sprintf(`SELECT %s FROM duplicate_scan_runs WHERE id = $1`, scanRunColumns)

	row := r.db.QueryRow(ctx, query, id)
	run, err := scanScanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("scan run", id.String())
		}
		return nil, fmt.Errorf("failed to get scan run by ID: %w", err)
	}

	return run, nil
}

// ListRecent retrieves the most recent runs, newest first.
func (r *PgScanRunRepository) ListRecent(ctx context.Context, limit int) ([]*domain.DuplicateScanRun, error) {
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM duplicate_scan_runs
		ORDER BY created_at DESC
		LIMIT $1`, scanRunColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.DuplicateScanRun, 0, limit)
	for rows.Next() {
		run, err := scanScanRunFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scan runs: %w", err)
	}

	return runs, nil
}

// scanRunScanDest holds the destination pointers for scanning a run row.
type scanRunScanDest struct {
	run domain.DuplicateScanRun
}

// destinations returns the slice of pointers for Scan operations.
func (d *scanRunScanDest) destinations() []interface{} {
	return []interface{}{
		&d.run.ID, &d.run.ScanType, &d.run.MinScore, &d.run.Status,
		&d.run.TotalAuthors, &d.run.DuplicatesFound, &d.run.ProcessingTimeMs,
		&d.run.Error, &d.run.CreatedAt, &d.run.CompletedAt,
	}
}

// scanScanRun scans a single row into a DuplicateScanRun.
func scanScanRun(row pgx.Row) (*domain.DuplicateScanRun, error) {
	var dest scanRunScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.run, nil
}

// scanScanRunFromRows scans the current row from pgx.Rows into a DuplicateScanRun.
func scanScanRunFromRows(rows pgx.Rows) (*domain.DuplicateScanRun, error) {
	var dest scanRunScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return &dest.run, nil
}
