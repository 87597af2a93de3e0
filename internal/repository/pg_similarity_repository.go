package repository

import (
	"context"
	"encoding/json"
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
var _ SimilarityRepository = (*PgSimilarityRepository)(nil)

// PgSimilarityRepository is a PostgreSQL implementation of SimilarityRepository.
type PgSimilarityRepository struct {
	db DBTX
}

// NewPgSimilarityRepository creates a new PostgreSQL similarity repository.
func NewPgSimilarityRepository(db DBTX) *PgSimilarityRepository {
	return &PgSimilarityRepository{db: db}
}

const similarityColumns = `id, author1_id, author1_name, author2_id, author2_name, score, confidence, match_reasons, status, merge_id, reviewed_at, reviewed_by, notes, created_at`

// Create inserts a new similarity edge.
func (r *PgSimilarityRepository) Create(ctx context.Context, sim *domain.AuthorSimilarity) (*domain.AuthorSimilarity, error) {
	if sim == nil {
		return nil, domain.NewValidationError("similarity", "similarity cannot be nil")
	}
	if sim.Author1ID == sim.Author2ID {
		return nil, domain.NewValidationError("author2_id", "a similarity edge needs two distinct authors")
	}
	if sim.Score < 0 || sim.Score > 100 {
		return nil, domain.NewValidationError("score", "score must be between 0 and 100")
	}

	reasonsJSON, err := json.Marshal(sim.Reasons)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match reasons: %w", err)
	}

	if sim.ID == uuid.Nil {
		sim.ID = uuid.New()
	}
	if sim.Status == "" {
		sim.Status = domain.SimilarityStatusPending
	}

	query := `
		INSERT INTO author_similarities (
			id, author1_id, author1_name, author2_id, author2_name,
			score, confidence, match_reasons, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err = r.db.QueryRow(ctx, query,
		sim.ID,
		sim.Author1ID,
		sim.Author1Name,
		sim.Author2ID,
		sim.Author2Name,
		sim.Score,
		sim.Confidence,
		reasonsJSON,
		sim.Status,
		time.Now().UTC(),
	).Scan(&sim.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewAlreadyExistsError("similarity", domain.PairKey(sim.Author1ID, sim.Author2ID))
		}
		return nil, fmt.Errorf("failed to create similarity: %w", err)
	}

	return sim, nil
}

// GetByID retrieves a similarity edge by its UUID.
func (r *PgSimilarityRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.AuthorSimilarity, error) {
	query := fmt.Sprintf(`SELECT %s FROM author_similarities WHERE id = $1`, similarityColumns)

	row := r.db.QueryRow(ctx, query, id)
	sim, err := scanSimilarity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("similarity", id.String())
		}
		return nil, fmt.Errorf("failed to get similarity by ID: %w", err)
	}

	return sim, nil
}

// ExistingPairKeys returns the canonical pair keys of all stored edges.
func (r *PgSimilarityRepository) ExistingPairKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT author1_id, author2_id FROM author_similarities`)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing pairs: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var a, b uuid.UUID
		if err := rows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		keys[domain.PairKey(a, b)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pairs: %w", err)
	}

	return keys, nil
}

// List retrieves similarity edges matching the filter criteria.
func (r *PgSimilarityRepository) List(ctx context.Context, filter SimilarityFilter) ([]*domain.AuthorSimilarity, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	var conditions []string
	var args []interface{}
	argIndex := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	if filter.MinScore != nil {
		conditions = append(conditions, fmt.Sprintf("score >= $%d", argIndex))
		args = append(args, *filter.MinScore)
		argIndex++
	}

	if filter.Confidence != nil {
		conditions = append(conditions, fmt.Sprintf("confidence = $%d", argIndex))
		args = append(args, *filter.Confidence)
		argIndex++
	}

	if filter.AuthorID != nil {
		conditions = append(conditions, fmt.Sprintf("(author1_id = $%d OR author2_id = $%d)", argIndex, argIndex))
		args = append(args, *filter.AuthorID)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM author_similarities %s", whereClause)
	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count similarities: %w", err)
	}

	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM author_similarities
		%s
		ORDER BY score DESC, created_at DESC
		LIMIT $%d OFFSET $%d`,
		similarityColumns, whereClause, argIndex, argIndex+1)

	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Query(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list similarities: %w", err)
	}
	defer rows.Close()

	sims := make([]*domain.AuthorSimilarity, 0, filter.Limit)
	for rows.Next() {
		sim, err := scanSimilarityFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan similarity: %w", err)
		}
		sims = append(sims, sim)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating similarities: %w", err)
	}

	return sims, totalCount, nil
}

// UpdateStatus transitions an edge's review status.
func (r *PgSimilarityRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SimilarityStatus, reviewedBy string, notes *string) error {
	if !domain.ValidSimilarityStatus(status) {
		return domain.NewValidationError("status", "unknown similarity status")
	}

	query := `
		UPDATE author_similarities
		SET status = $1, reviewed_by = $2, notes = $3, reviewed_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(ctx, query, status, reviewedBy, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update similarity status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("similarity", id.String())
	}

	return nil
}

// MarkMerged marks the given edges merged, stamping the merge record id and
// the reviewer who executed the merge.
func (r *PgSimilarityRepository) MarkMerged(ctx context.Context, ids []uuid.UUID, mergeID uuid.UUID, reviewedBy string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE author_similarities
		SET status = $1, merge_id = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = ANY($5)`

	result, err := r.db.Exec(ctx, query, domain.SimilarityStatusMerged, mergeID, reviewedBy, time.Now().UTC(), ids)
	if err != nil {
		return 0, fmt.Errorf("failed to mark similarities merged: %w", err)
	}

	return result.RowsAffected(), nil
}

// MarkMergedForAuthors marks every pending edge touching the given authors as
// merged, stamping the supplied note so reviewers can tell these edges were
// swept up by a merge rather than reviewed directly.
func (r *PgSimilarityRepository) MarkMergedForAuthors(ctx context.Context, authorIDs []uuid.UUID, mergeID uuid.UUID, reviewedBy, note string) (int64, error) {
	if len(authorIDs) == 0 {
		return 0, nil
	}

	query := `
		UPDATE author_similarities
		SET status = $1, merge_id = $2, reviewed_by = $3, reviewed_at = $4, notes = $5
		WHERE status = $6 AND (author1_id = ANY($7) OR author2_id = ANY($7))`

	result, err := r.db.Exec(ctx, query,
		domain.SimilarityStatusMerged, mergeID, reviewedBy, time.Now().UTC(), note,
		domain.SimilarityStatusPending, authorIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark author similarities merged: %w", err)
	}

	return result.RowsAffected(), nil
}

// StatusCounts returns the number of edges per review status.
func (r *PgSimilarityRepository) StatusCounts(ctx context.Context) (map[domain.SimilarityStatus]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM author_similarities GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count similarities by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.SimilarityStatus]int64)
	for rows.Next() {
		var status domain.SimilarityStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	return counts, nil
}

// PendingConfidenceCounts returns the number of pending edges per confidence tier.
func (r *PgSimilarityRepository) PendingConfidenceCounts(ctx context.Context) (map[domain.Confidence]int64, error) {
	query := `
		SELECT confidence, COUNT(*)
		FROM author_similarities
		WHERE status = $1
		GROUP BY confidence`

	rows, err := r.db.Query(ctx, query, domain.SimilarityStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending similarities by confidence: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Confidence]int64)
	for rows.Next() {
		var confidence domain.Confidence
		var count int64
		if err := rows.Scan(&confidence, &count); err != nil {
			return nil, fmt.Errorf("failed to scan confidence count: %w", err)
		}
		counts[confidence] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating confidence counts: %w", err)
	}

	return counts, nil
}

// PendingScoreRanges returns the number of pending edges per score bucket.
func (r *PgSimilarityRepository) PendingScoreRanges(ctx context.Context) (map[string]int64, error) {
	query := `
		SELECT
			CASE
				WHEN score >= 95 THEN '95-100'
				WHEN score >= 90 THEN '90-94'
				WHEN score >= 85 THEN '85-89'
				WHEN score >= 80 THEN '80-84'
				ELSE '70-79'
			END AS score_range,
			COUNT(*)
		FROM author_similarities
		WHERE status = $1
		GROUP BY score_range`

	rows, err := r.db.Query(ctx, query, domain.SimilarityStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending similarities by score range: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var scoreRange string
		var count int64
		if err := rows.Scan(&scoreRange, &count); err != nil {
			return nil, fmt.Errorf("failed to scan score range count: %w", err)
		}
		counts[scoreRange] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score range counts: %w", err)
	}

	return counts, nil
}

// similarityScanDest holds the destination pointers for scanning a similarity row.
type similarityScanDest struct {
	sim         domain.AuthorSimilarity
	reasonsJSON []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *similarityScanDest) destinations() []interface{} {
	return []interface{}{
		&d.sim.ID,
		&d.sim.Author1ID, &d.sim.Author1Name,
		&d.sim.Author2ID, &d.sim.Author2Name,
		&d.sim.Score, &d.sim.Confidence, &d.reasonsJSON,
		&d.sim.Status, &d.sim.MergeID,
		&d.sim.ReviewedAt, &d.sim.ReviewedBy, &d.sim.Notes,
		&d.sim.CreatedAt,
	}
}

// finalize performs post-scan processing: unmarshals the match reasons.
func (d *similarityScanDest) finalize() (*domain.AuthorSimilarity, error) {
	if len(d.reasonsJSON) > 0 {
		if err := json.Unmarshal(d.reasonsJSON, &d.sim.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal match reasons: %w", err)
		}
	}
	return &d.sim, nil
}

// scanSimilarity scans a single row into an AuthorSimilarity.
func scanSimilarity(row pgx.Row) (*domain.AuthorSimilarity, error) {
	var dest similarityScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanSimilarityFromRows scans the current row from pgx.Rows into an AuthorSimilarity.
func scanSimilarityFromRows(rows pgx.Rows) (*domain.AuthorSimilarity, error) {
	var dest similarityScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
