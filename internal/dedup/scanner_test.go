package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

// fakeLocker implements AdvisoryLocker in memory with the same lifetime the
// real lock has: keys taken inside WithTransaction are released when the
// transaction ends, on success and on failure alike.
type fakeLocker struct {
	held     map[int64]bool
	inTx     []int64
	denyAll  bool
	acquires int
	releases int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[int64]bool)}
}

func (f *fakeLocker) WithTransaction(_ context.Context, fn func(tx pgx.Tx) error) error {
	err := fn(nil)
	for _, key := range f.inTx {
		delete(f.held, key)
		f.releases++
	}
	f.inTx = nil
	return err
}

func (f *fakeLocker) TryAcquireAdvisoryLockTx(_ context.Context, _ pgx.Tx, key int64) (bool, error) {
	f.acquires++
	if f.denyAll || f.held[key] {
		return false, nil
	}
	f.held[key] = true
	f.inTx = append(f.inTx, key)
	return true, nil
}

// fakeSimilarityRepository stores edges keyed by unordered pair.
type fakeSimilarityRepository struct {
	byPair       map[string]*domain.AuthorSimilarity
	createErr    error
	hidePairKeys bool
}

var _ repository.SimilarityRepository = (*fakeSimilarityRepository)(nil)

func newFakeSimilarityRepository() *fakeSimilarityRepository {
	return &fakeSimilarityRepository{byPair: make(map[string]*domain.AuthorSimilarity)}
}

func (f *fakeSimilarityRepository) Create(_ context.Context, sim *domain.AuthorSimilarity) (*domain.AuthorSimilarity, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	key := domain.PairKey(sim.Author1ID, sim.Author2ID)
	if _, ok := f.byPair[key]; ok {
		return nil, domain.NewAlreadyExistsError("similarity", key)
	}
	if sim.ID == uuid.Nil {
		sim.ID = uuid.New()
	}
	if sim.Status == "" {
		sim.Status = domain.SimilarityStatusPending
	}
	sim.CreatedAt = time.Now().UTC()
	f.byPair[key] = sim
	return sim, nil
}

func (f *fakeSimilarityRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.AuthorSimilarity, error) {
	for _, sim := range f.byPair {
		if sim.ID == id {
			return sim, nil
		}
	}
	return nil, domain.NewNotFoundError("similarity", id.String())
}

func (f *fakeSimilarityRepository) ExistingPairKeys(_ context.Context) (map[string]struct{}, error) {
	keys := make(map[string]struct{}, len(f.byPair))
	if f.hidePairKeys {
		return keys, nil
	}
	for key := range f.byPair {
		keys[key] = struct{}{}
	}
	return keys, nil
}

func (f *fakeSimilarityRepository) List(_ context.Context, _ repository.SimilarityFilter) ([]*domain.AuthorSimilarity, int64, error) {
	var sims []*domain.AuthorSimilarity
	for _, sim := range f.byPair {
		sims = append(sims, sim)
	}
	return sims, int64(len(sims)), nil
}

func (f *fakeSimilarityRepository) UpdateStatus(_ context.Context, id uuid.UUID, status domain.SimilarityStatus, _ string, _ *string) error {
	for _, sim := range f.byPair {
		if sim.ID == id {
			sim.Status = status
			return nil
		}
	}
	return domain.NewNotFoundError("similarity", id.String())
}

func (f *fakeSimilarityRepository) MarkMerged(_ context.Context, ids []uuid.UUID, mergeID uuid.UUID, reviewedBy string) (int64, error) {
	var updated int64
	for _, sim := range f.byPair {
		for _, id := range ids {
			if sim.ID == id {
				sim.Status = domain.SimilarityStatusMerged
				sim.MergeID = &mergeID
				sim.ReviewedBy = &reviewedBy
				updated++
			}
		}
	}
	return updated, nil
}

func (f *fakeSimilarityRepository) MarkMergedForAuthors(_ context.Context, authorIDs []uuid.UUID, mergeID uuid.UUID, reviewedBy, note string) (int64, error) {
	var updated int64
	for _, sim := range f.byPair {
		if sim.Status != domain.SimilarityStatusPending {
			continue
		}
		for _, id := range authorIDs {
			if sim.Author1ID == id || sim.Author2ID == id {
				sim.Status = domain.SimilarityStatusMerged
				sim.MergeID = &mergeID
				sim.ReviewedBy = &reviewedBy
				sim.Notes = &note
				updated++
				break
			}
		}
	}
	return updated, nil
}

func (f *fakeSimilarityRepository) StatusCounts(_ context.Context) (map[domain.SimilarityStatus]int64, error) {
	counts := make(map[domain.SimilarityStatus]int64)
	for _, sim := range f.byPair {
		counts[sim.Status]++
	}
	return counts, nil
}

func (f *fakeSimilarityRepository) PendingConfidenceCounts(_ context.Context) (map[domain.Confidence]int64, error) {
	counts := make(map[domain.Confidence]int64)
	for _, sim := range f.byPair {
		if sim.Status == domain.SimilarityStatusPending {
			counts[sim.Confidence]++
		}
	}
	return counts, nil
}

func (f *fakeSimilarityRepository) PendingScoreRanges(_ context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}

// fakeScanRunRepository records run lifecycle transitions.
type fakeScanRunRepository struct {
	runs      map[uuid.UUID]*domain.DuplicateScanRun
	createErr error
}

var _ repository.ScanRunRepository = (*fakeScanRunRepository)(nil)

func newFakeScanRunRepository() *fakeScanRunRepository {
	return &fakeScanRunRepository{runs: make(map[uuid.UUID]*domain.DuplicateScanRun)}
}

func (f *fakeScanRunRepository) Create(_ context.Context, run *domain.DuplicateScanRun) (*domain.DuplicateScanRun, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.Status = domain.ScanStatusRunning
	run.CreatedAt = time.Now().UTC()
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeScanRunRepository) Complete(_ context.Context, id uuid.UUID, totalAuthors, duplicatesFound int, processingTimeMs int64) error {
	run, ok := f.runs[id]
	if !ok {
		return domain.NewNotFoundError("scan run", id.String())
	}
	run.Status = domain.ScanStatusCompleted
	run.TotalAuthors = totalAuthors
	run.DuplicatesFound = duplicatesFound
	run.ProcessingTimeMs = processingTimeMs
	now := time.Now().UTC()
	run.CompletedAt = &now
	return nil
}

func (f *fakeScanRunRepository) Fail(_ context.Context, id uuid.UUID, errMsg string, processingTimeMs int64) error {
	run, ok := f.runs[id]
	if !ok {
		return domain.NewNotFoundError("scan run", id.String())
	}
	run.Status = domain.ScanStatusFailed
	run.Error = &errMsg
	run.ProcessingTimeMs = processingTimeMs
	now := time.Now().UTC()
	run.CompletedAt = &now
	return nil
}

func (f *fakeScanRunRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.DuplicateScanRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.NewNotFoundError("scan run", id.String())
	}
	return run, nil
}

func (f *fakeScanRunRepository) ListRecent(_ context.Context, _ int) ([]*domain.DuplicateScanRun, error) {
	var runs []*domain.DuplicateScanRun
	for _, run := range f.runs {
		runs = append(runs, run)
	}
	return runs, nil
}

func newTestScanner(authors *fakeAuthorRepository, sims *fakeSimilarityRepository, runs *fakeScanRunRepository, locks *fakeLocker) *Scanner {
	return NewScanner(locks, NewDetector(authors, 0), sims, runs, zerolog.Nop(), nil, 70)
}

func TestScanner_Scan_Exact(t *testing.T) {
	authors := newFakeAuthorRepository("Stephen King", "stephen king", "George Orwell")
	sims := newFakeSimilarityRepository()
	runs := newFakeScanRunRepository()
	locks := newFakeLocker()
	scanner := newTestScanner(authors, sims, runs, locks)

	result, err := scanner.Scan(context.Background(), domain.ScanTypeExact)
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalAuthors)
	assert.Equal(t, 1, result.PairsFound)
	assert.Equal(t, 1, result.NewSimilarities)

	require.NotNil(t, result.Run)
	assert.Equal(t, domain.ScanStatusCompleted, result.Run.Status)
	assert.Equal(t, 1, result.Run.DuplicatesFound)

	require.Len(t, sims.byPair, 1)
	for _, sim := range sims.byPair {
		assert.Equal(t, 100, sim.Score)
		assert.Equal(t, domain.SimilarityStatusPending, sim.Status)
	}

	// The lock must be released with the lock transaction.
	assert.Equal(t, 1, locks.acquires)
	assert.Equal(t, 1, locks.releases)
	assert.Empty(t, locks.held)
}

func TestScanner_Scan_LockNeverOutlivesScan(t *testing.T) {
	authors := newFakeAuthorRepository("Stephen King", "stephen king")
	locks := newFakeLocker()
	scanner := newTestScanner(authors, newFakeSimilarityRepository(), newFakeScanRunRepository(), locks)

	// Back-to-back scans must each acquire a fresh lock: a completed scan
	// leaving the key held would wedge every later scan behind
	// ErrScanInProgress.
	for i := 0; i < 3; i++ {
		_, err := scanner.Scan(context.Background(), domain.ScanTypeExact)
		require.NoError(t, err)
		assert.Empty(t, locks.held)
	}
	assert.Equal(t, 3, locks.acquires)
	assert.Equal(t, 3, locks.releases)
}

func TestScanner_Scan_Full(t *testing.T) {
	authors := newFakeAuthorRepository("King, Stephen", "Stephen King", "Stephan King")
	sims := newFakeSimilarityRepository()
	runs := newFakeScanRunRepository()
	scanner := newTestScanner(authors, sims, runs, newFakeLocker())

	result, err := scanner.Scan(context.Background(), domain.ScanTypeFull)
	require.NoError(t, err)
	assert.Equal(t, 2, result.PairsFound)
	assert.Equal(t, 2, result.NewSimilarities)
}

func TestScanner_Scan_SkipsExistingPairs(t *testing.T) {
	authors := newFakeAuthorRepository("Stephen King", "stephen king")
	sims := newFakeSimilarityRepository()
	runs := newFakeScanRunRepository()
	scanner := newTestScanner(authors, sims, runs, newFakeLocker())

	first, err := scanner.Scan(context.Background(), domain.ScanTypeExact)
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewSimilarities)

	// Rescan finds the same pair but must not overwrite or duplicate it.
	second, err := scanner.Scan(context.Background(), domain.ScanTypeExact)
	require.NoError(t, err)
	assert.Equal(t, 1, second.PairsFound)
	assert.Equal(t, 0, second.NewSimilarities)
	assert.Len(t, sims.byPair, 1)
}

func TestScanner_Scan_LockDenied(t *testing.T) {
	authors := newFakeAuthorRepository("Stephen King")
	locks := newFakeLocker()
	locks.denyAll = true
	scanner := newTestScanner(authors, newFakeSimilarityRepository(), newFakeScanRunRepository(), locks)

	_, err := scanner.Scan(context.Background(), domain.ScanTypeExact)
	assert.ErrorIs(t, err, ErrScanInProgress)
}

func TestScanner_Scan_InvalidType(t *testing.T) {
	authors := newFakeAuthorRepository("Stephen King")
	scanner := newTestScanner(authors, newFakeSimilarityRepository(), newFakeScanRunRepository(), newFakeLocker())

	_, err := scanner.Scan(context.Background(), domain.ScanType("phonetic"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestScanner_Scan_FailureRecordedAndRaised(t *testing.T) {
	authors := newFakeAuthorRepository("Stephen King", "stephen king")
	sims := newFakeSimilarityRepository()
	sims.createErr = errors.New("disk full")
	runs := newFakeScanRunRepository()
	locks := newFakeLocker()
	scanner := newTestScanner(authors, sims, runs, locks)

	_, err := scanner.Scan(context.Background(), domain.ScanTypeExact)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	// The run is terminally marked failed, and the lock released.
	require.Len(t, runs.runs, 1)
	for _, run := range runs.runs {
		assert.Equal(t, domain.ScanStatusFailed, run.Status)
		require.NotNil(t, run.Error)
		assert.Contains(t, *run.Error, "disk full")
	}
	assert.Empty(t, locks.held)
}

func TestScanner_Scan_ConcurrentInsertTolerated(t *testing.T) {
	authors := newFakeAuthorRepository("Stephen King", "stephen king")
	sims := newFakeSimilarityRepository()
	runs := newFakeScanRunRepository()
	scanner := newTestScanner(authors, sims, runs, newFakeLocker())

	// Simulate another scanner inserting the pair between the existence
	// check and the insert: the pair exists in the store but is hidden
	// from ExistingPairKeys, so Create hits the unique violation.
	sims.hidePairKeys = true
	a := authors.byName("Stephen King")
	b := authors.byName("stephen king")
	_, err := sims.Create(context.Background(), &domain.AuthorSimilarity{
		Author1ID: a.ID, Author1Name: a.Name,
		Author2ID: b.ID, Author2Name: b.Name,
		Score: 100, Confidence: domain.ConfidenceExact,
	})
	require.NoError(t, err)

	result, err := scanner.Scan(context.Background(), domain.ScanTypeExact)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewSimilarities)
}
