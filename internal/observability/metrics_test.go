package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so we need to use
// unique namespaces per test to avoid registration conflicts.

func TestNewMetrics(t *testing.T) {
	// Use unique namespace to avoid conflicts with other tests
	m := NewMetrics("test_book_catalog_new")

	assert.NotNil(t, m.ScansStarted)
	assert.NotNil(t, m.ScansCompleted)
	assert.NotNil(t, m.ScansFailed)
	assert.NotNil(t, m.ScanDuration)
	assert.NotNil(t, m.PairsPerScan)
	assert.NotNil(t, m.SimilaritiesRecorded)
	assert.NotNil(t, m.SimilaritiesReviewed)
	assert.NotNil(t, m.MergesCompleted)
	assert.NotNil(t, m.MergesFailed)
	assert.NotNil(t, m.AuthorsAbsorbed)
	assert.NotNil(t, m.BooksReassigned)
	assert.NotNil(t, m.QueueClaims)
	assert.NotNil(t, m.QueueEntriesClaimed)
	assert.NotNil(t, m.QueueEntriesReleased)
	assert.NotNil(t, m.QueueDepth)
	assert.NotNil(t, m.HardcoverRequestsTotal)
	assert.NotNil(t, m.HardcoverRequestsFailed)
	assert.NotNil(t, m.EventsPublished)
}

func TestRecordScanStarted(t *testing.T) {
	m := NewMetrics("test_scan_started")

	m.RecordScanStarted("full")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScansStarted.WithLabelValues("full")))
}

func TestRecordScanCompleted(t *testing.T) {
	m := NewMetrics("test_scan_completed")

	m.RecordScanCompleted("exact", 12, 2.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScansCompleted.WithLabelValues("exact")))

	histCount, err := getHistogramSampleCount(m.ScanDuration.WithLabelValues("exact").(prometheus.Histogram))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), histCount)
}

func TestRecordScanFailed(t *testing.T) {
	m := NewMetrics("test_scan_failed")

	m.RecordScanFailed("fuzzy", 1.0)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ScansFailed.WithLabelValues("fuzzy")))
}

func TestRecordSimilarityRecorded(t *testing.T) {
	m := NewMetrics("test_similarity_recorded")

	m.RecordSimilarityRecorded("high")
	m.RecordSimilarityRecorded("high")
	m.RecordSimilarityRecorded("medium")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.SimilaritiesRecorded.WithLabelValues("high")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SimilaritiesRecorded.WithLabelValues("medium")))
}

func TestRecordSimilarityReviewed(t *testing.T) {
	m := NewMetrics("test_similarity_reviewed")

	m.RecordSimilarityReviewed("dismissed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SimilaritiesReviewed.WithLabelValues("dismissed")))
}

func TestRecordMergeCompleted(t *testing.T) {
	m := NewMetrics("test_merge_completed")

	initial := testutil.ToFloat64(m.MergesCompleted)
	m.RecordMergeCompleted(2, 7)
	assert.Equal(t, initial+1, testutil.ToFloat64(m.MergesCompleted))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AuthorsAbsorbed))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.BooksReassigned))
}

func TestRecordMergeFailed(t *testing.T) {
	m := NewMetrics("test_merge_failed")

	initial := testutil.ToFloat64(m.MergesFailed)
	m.RecordMergeFailed()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.MergesFailed))
}

func TestRecordQueueClaim(t *testing.T) {
	m := NewMetrics("test_queue_claim")

	m.RecordQueueClaim(25, 175)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QueueClaims))
	assert.Equal(t, float64(25), testutil.ToFloat64(m.QueueEntriesClaimed))
	assert.Equal(t, float64(175), testutil.ToFloat64(m.QueueDepth))
}

func TestRecordQueueReleased(t *testing.T) {
	m := NewMetrics("test_queue_released")

	m.RecordQueueReleased("stale", 4)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.QueueEntriesReleased.WithLabelValues("stale")))
}

func TestRecordQueueCompleted(t *testing.T) {
	m := NewMetrics("test_queue_completed")

	m.RecordQueueCompleted(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.QueueEntriesCompleted))
}

func TestRecordHardcoverRequest(t *testing.T) {
	m := NewMetrics("test_hardcover_request")

	m.RecordHardcoverRequest("search_books", 0.5)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HardcoverRequestsTotal.WithLabelValues("search_books")))
}

func TestRecordHardcoverRequestFailed(t *testing.T) {
	m := NewMetrics("test_hardcover_request_failed")

	m.RecordHardcoverRequestFailed("search_books", "timeout")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HardcoverRequestsFailed.WithLabelValues("search_books", "timeout")))
}

func TestRecordHardcoverRateLimited(t *testing.T) {
	m := NewMetrics("test_hardcover_rate_limited")

	initial := testutil.ToFloat64(m.HardcoverRateLimited)
	m.RecordHardcoverRateLimited()
	assert.Equal(t, initial+1, testutil.ToFloat64(m.HardcoverRateLimited))
}

func TestRecordEventPublished(t *testing.T) {
	m := NewMetrics("test_event_published")

	m.RecordEventPublished("author.merged")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsPublished.WithLabelValues("author.merged")))
}

func TestRecordEventFailed(t *testing.T) {
	m := NewMetrics("test_event_failed")

	m.RecordEventFailed("scan.completed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsFailed.WithLabelValues("scan.completed")))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
