package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/observability"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

// scanLockKey serializes duplicate scans across processes via an advisory
// lock. Concurrent scans are not harmful but would waste work and race on
// the existence check before each insert.
const scanLockKey int64 = 0x626b_7363616e // "bkscan"

// ErrScanInProgress is returned when another process holds the scan lock.
var ErrScanInProgress = errors.New("a duplicate scan is already running")

// AdvisoryLocker grants process-wide exclusivity through the database. The
// lock is transaction-scoped: it lives on the lock transaction's connection
// and is released when that transaction ends, so a crashed or interrupted
// scan can never strand it on a pooled session. Satisfied by *database.DB.
type AdvisoryLocker interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
	TryAcquireAdvisoryLockTx(ctx context.Context, tx pgx.Tx, key int64) (bool, error)
}

// ScanResult summarizes one completed detection scan.
type ScanResult struct {
	Run             *domain.DuplicateScanRun
	TotalAuthors    int
	PairsFound      int
	NewSimilarities int
}

// Scanner runs detection passes, records scan-run bookkeeping, and persists
// newly discovered similarity edges as pending records. Existing edges are
// never overwritten on rescan.
type Scanner struct {
	locks        AdvisoryLocker
	detector     *Detector
	similarities repository.SimilarityRepository
	scanRuns     repository.ScanRunRepository
	logger       zerolog.Logger
	metrics      *observability.Metrics
	minScore     int
}

// NewScanner wires a scanner over the detector and its repositories.
func NewScanner(
	locks AdvisoryLocker,
	detector *Detector,
	similarities repository.SimilarityRepository,
	scanRuns repository.ScanRunRepository,
	logger zerolog.Logger,
	metrics *observability.Metrics,
	minScore int,
) *Scanner {
	if minScore < MinPersistScore {
		minScore = MinPersistScore
	}
	return &Scanner{
		locks:        locks,
		detector:     detector,
		similarities: similarities,
		scanRuns:     scanRuns,
		logger:       logger,
		metrics:      metrics,
		minScore:     minScore,
	}
}

// Scan executes the requested detection pass under the scan advisory lock.
// The lock transaction holds one connection for the whole scan and carries
// nothing but the lock; the scan's own statements run outside it, so a
// failed scan keeps its run record while the lock still releases.
func (s *Scanner) Scan(ctx context.Context, scanType domain.ScanType) (*ScanResult, error) {
	if !domain.ValidScanType(scanType) {
		return nil, domain.NewValidationError("scan_type", "unknown scan type")
	}

	var result *ScanResult
	err := s.locks.WithTransaction(ctx, func(tx pgx.Tx) error {
		acquired, err := s.locks.TryAcquireAdvisoryLockTx(ctx, tx, scanLockKey)
		if err != nil {
			return fmt.Errorf("failed to acquire scan lock: %w", err)
		}
		if !acquired {
			return ErrScanInProgress
		}

		result, err = s.scanLocked(ctx, scanType)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// scanLocked records the run, executes the pass, and terminally updates the
// run on both success and failure; a failure is recorded and then re-raised
// so bookkeeping never masks the underlying error.
func (s *Scanner) scanLocked(ctx context.Context, scanType domain.ScanType) (*ScanResult, error) {
	run, err := s.scanRuns.Create(ctx, &domain.DuplicateScanRun{
		ScanType: scanType,
		MinScore: s.minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record scan run: %w", err)
	}

	logger := observability.WithScanContext(s.logger, run.ID.String(), string(scanType))
	logger.Info().Int("min_score", s.minScore).Msg("duplicate scan started")
	if s.metrics != nil {
		s.metrics.RecordScanStarted(string(scanType))
	}

	started := time.Now()
	result, err := s.runScan(ctx, scanType)
	elapsed := time.Since(started)

	if err != nil {
		if failErr := s.scanRuns.Fail(context.WithoutCancel(ctx), run.ID, err.Error(), elapsed.Milliseconds()); failErr != nil {
			logger.Error().Err(failErr).Msg("failed to record scan failure")
		}
		if s.metrics != nil {
			s.metrics.RecordScanFailed(string(scanType), elapsed.Seconds())
		}
		logger.Error().Err(err).Dur("elapsed", elapsed).Msg("duplicate scan failed")
		return nil, err
	}

	if err := s.scanRuns.Complete(ctx, run.ID, result.TotalAuthors, result.PairsFound, elapsed.Milliseconds()); err != nil {
		return nil, fmt.Errorf("failed to record scan completion: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordScanCompleted(string(scanType), result.PairsFound, elapsed.Seconds())
	}

	result.Run = run
	logger.Info().
		Int("total_authors", result.TotalAuthors).
		Int("pairs_found", result.PairsFound).
		Int("new_similarities", result.NewSimilarities).
		Dur("elapsed", elapsed).
		Msg("duplicate scan completed")

	return result, nil
}

// runScan dispatches to the detector pass for the scan type and persists the
// resulting edges.
func (s *Scanner) runScan(ctx context.Context, scanType domain.ScanType) (*ScanResult, error) {
	switch scanType {
	case domain.ScanTypeExact:
		groups, total, err := s.detector.FindExactDuplicates(ctx)
		if err != nil {
			return nil, err
		}
		edges := edgesFromExactGroups(groups)
		return s.persist(ctx, edges, total)

	case domain.ScanTypeFlipped:
		edges, total, err := s.detector.FindFlippedNameDuplicates(ctx)
		if err != nil {
			return nil, err
		}
		return s.persist(ctx, edges, total)

	case domain.ScanTypeFuzzy, domain.ScanTypeFull:
		edges, total, err := s.detector.FindAllDuplicates(ctx, FindAllOptions{MinScore: s.minScore})
		if err != nil {
			return nil, err
		}
		return s.persist(ctx, edges, total)

	default:
		return nil, domain.NewValidationError("scan_type", "unknown scan type")
	}
}

// edgesFromExactGroups expands each normalized-name group into pairwise
// exact-match edges.
func edgesFromExactGroups(groups []ExactGroup) []*domain.AuthorSimilarity {
	var edges []*domain.AuthorSimilarity
	for _, group := range groups {
		for i, a := range group.Authors {
			for _, b := range group.Authors[i+1:] {
				edges = append(edges, &domain.AuthorSimilarity{
					Author1ID:   a.ID,
					Author1Name: a.Name,
					Author2ID:   b.ID,
					Author2Name: b.Name,
					Score:       100,
					Confidence:  domain.ConfidenceExact,
					Reasons:     domain.MatchReasons{ExactMatch: true},
				})
			}
		}
	}
	return edges
}

// persist stores each edge whose unordered pair has no existing record.
func (s *Scanner) persist(ctx context.Context, edges []*domain.AuthorSimilarity, totalAuthors int) (*ScanResult, error) {
	existing, err := s.similarities.ExistingPairKeys(ctx)
	if err != nil {
		return nil, err
	}

	created := 0
	for _, edge := range edges {
		key := domain.PairKey(edge.Author1ID, edge.Author2ID)
		if _, ok := existing[key]; ok {
			continue
		}

		if _, err := s.similarities.Create(ctx, edge); err != nil {
			// A concurrent writer may have inserted the same pair
			// between the existence check and here.
			if errors.Is(err, domain.ErrAlreadyExists) {
				continue
			}
			return nil, fmt.Errorf("failed to persist similarity: %w", err)
		}
		existing[key] = struct{}{}
		created++
		if s.metrics != nil {
			s.metrics.RecordSimilarityRecorded(string(edge.Confidence))
		}
	}

	return &ScanResult{
		TotalAuthors:    totalAuthors,
		PairsFound:      len(edges),
		NewSimilarities: created,
	}, nil
}
