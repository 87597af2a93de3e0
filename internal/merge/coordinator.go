// Package merge executes author merges: reassigning book attributions from
// absorbed authors to a chosen target, sweeping similarity edges, writing the
// audit record, and deleting the absorbed records, all in one transaction.
package merge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/observability"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

// autoMergeNote marks similarity edges swept because an endpoint author was
// absorbed, as opposed to edges the reviewer merged directly.
const autoMergeNote = "auto-merged: endpoint author absorbed by merge"

// Transactor runs a function inside one database transaction. Satisfied by
// *database.DB.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// EventPublisher announces completed merges. Implementations must be safe to
// call after the transaction commits; a publish failure never unwinds the
// merge.
type EventPublisher interface {
	PublishAuthorMerged(ctx context.Context, merge *domain.AuthorMerge) error
}

// Request describes one merge: the full set of duplicate author ids, which
// of them survives, and the review context.
type Request struct {
	AuthorIDs      []uuid.UUID
	TargetAuthorID uuid.UUID
	Initiator      string
	Reason         *string
	SimilarityIDs  []uuid.UUID
}

// Result reports the effects of a merge.
type Result struct {
	MergeID         *uuid.UUID
	BooksReassigned int
	AuthorsDeleted  int
	AlreadyMerged   bool
}

// Coordinator performs merge transactions.
type Coordinator struct {
	db        Transactor
	logger    zerolog.Logger
	metrics   *observability.Metrics
	publisher EventPublisher
}

// NewCoordinator wires a merge coordinator. metrics and publisher may be nil.
func NewCoordinator(db Transactor, logger zerolog.Logger, metrics *observability.Metrics, publisher EventPublisher) *Coordinator {
	return &Coordinator{db: db, logger: logger, metrics: metrics, publisher: publisher}
}

// Merge absorbs every non-target author in the request into the target.
// Validation happens before any mutation; the transactional body either
// applies completely or not at all. A request whose absorbed authors were
// already deleted by an earlier run succeeds with zero effect, so retries
// after a lost response are safe.
func (c *Coordinator) Merge(ctx context.Context, req Request) (*Result, error) {
	uniqueIDs := dedupeIDs(req.AuthorIDs)
	if len(uniqueIDs) < 2 {
		return nil, domain.NewValidationError("author_ids", "at least two distinct authors are required")
	}
	if !containsID(uniqueIDs, req.TargetAuthorID) {
		return nil, domain.NewValidationError("target_author_id", "target must be one of the authors being merged")
	}
	if req.Initiator == "" {
		return nil, domain.NewValidationError("initiator", "initiator is required")
	}

	absorbedIDs := make([]uuid.UUID, 0, len(uniqueIDs)-1)
	for _, id := range uniqueIDs {
		if id != req.TargetAuthorID {
			absorbedIDs = append(absorbedIDs, id)
		}
	}

	logger := observability.WithMergeContext(c.logger, req.TargetAuthorID.String(), len(absorbedIDs))

	var result Result
	var merged *domain.AuthorMerge
	err := c.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		authors := repository.NewPgAuthorRepository(tx)
		books := repository.NewPgBookRepository(tx)
		similarities := repository.NewPgSimilarityRepository(tx)
		merges := repository.NewPgMergeRepository(tx)

		found, err := authors.GetByIDs(ctx, uniqueIDs)
		if err != nil {
			return err
		}

		byID := make(map[uuid.UUID]*domain.Author, len(found))
		for _, author := range found {
			byID[author.ID] = author
		}

		target, targetExists := byID[req.TargetAuthorID]
		if targetExists && len(found) == 1 {
			// A previous run already absorbed the others.
			result = Result{AlreadyMerged: true}
			return nil
		}
		if len(found) != len(uniqueIDs) {
			return domain.NewNotFoundError("author", missingIDs(uniqueIDs, byID))
		}

		bookIDs, err := books.BookIDsByAuthors(ctx, absorbedIDs)
		if err != nil {
			return err
		}

		reassigned := 0
		for _, bookID := range bookIDs {
			created, err := books.LinkAuthor(ctx, bookID, target.ID)
			if err != nil {
				return err
			}
			if created {
				reassigned++
			}
		}
		if _, err := books.UnlinkAuthors(ctx, bookIDs, absorbedIDs); err != nil {
			return err
		}

		absorbedNames := make([]string, len(absorbedIDs))
		for i, id := range absorbedIDs {
			absorbedNames[i] = byID[id].Name
		}

		record, err := merges.Create(ctx, &domain.AuthorMerge{
			MergedAuthorIDs:   absorbedIDs,
			MergedAuthorNames: absorbedNames,
			TargetAuthorID:    target.ID,
			TargetAuthorName:  target.Name,
			MergedBy:          req.Initiator,
			MergeReason:       req.Reason,
			BooksReassigned:   reassigned,
		})
		if err != nil {
			return err
		}
		merged = record

		if len(req.SimilarityIDs) > 0 {
			if _, err := similarities.MarkMerged(ctx, req.SimilarityIDs, record.ID, req.Initiator); err != nil {
				return err
			}
		}
		if _, err := similarities.MarkMergedForAuthors(ctx, absorbedIDs, record.ID, req.Initiator, autoMergeNote); err != nil {
			return err
		}

		deleted, err := authors.Delete(ctx, absorbedIDs)
		if err != nil {
			return err
		}

		result = Result{
			MergeID:         &record.ID,
			BooksReassigned: reassigned,
			AuthorsDeleted:  int(deleted),
		}
		return nil
	})
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordMergeFailed()
		}
		logger.Error().Err(err).Msg("author merge failed")
		return nil, err
	}

	if result.AlreadyMerged {
		logger.Info().Msg("merge already applied, nothing to do")
		return &result, nil
	}

	if c.metrics != nil {
		c.metrics.RecordMergeCompleted(result.AuthorsDeleted, result.BooksReassigned)
	}
	logger.Info().
		Str("merge_id", result.MergeID.String()).
		Int("books_reassigned", result.BooksReassigned).
		Int("authors_deleted", result.AuthorsDeleted).
		Msg("author merge completed")

	// The committed audit record carries the resolved names, so the event
	// ships them rather than a rebuilt id-only payload.
	if c.publisher != nil && merged != nil {
		if err := c.publisher.PublishAuthorMerged(ctx, merged); err != nil {
			logger.Warn().Err(err).Msg("failed to publish merge event")
		}
	}

	return &result, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func missingIDs(requested []uuid.UUID, found map[uuid.UUID]*domain.Author) string {
	missing := ""
	for _, id := range requested {
		if _, ok := found[id]; !ok {
			if missing != "" {
				missing += ", "
			}
			missing += id.String()
		}
	}
	return fmt.Sprintf("missing: %s", missing)
}
