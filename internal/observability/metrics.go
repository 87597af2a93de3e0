package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the book catalog service.
// Metrics are organized by subsystem: duplicate scans, similarities, merges,
// enrichment queue, and Hardcover API calls. All counters and histograms are
// registered via promauto for automatic registration with the default
// Prometheus registry.
type Metrics struct {
	// ScansStarted counts duplicate scans initiated, labeled by scan type.
	ScansStarted *prometheus.CounterVec

	// ScansCompleted counts duplicate scans that finished successfully, labeled by scan type.
	ScansCompleted *prometheus.CounterVec

	// ScansFailed counts duplicate scans that ended in failure, labeled by scan type.
	ScansFailed *prometheus.CounterVec

	// ScanDuration observes scan duration in seconds, labeled by scan type.
	ScanDuration *prometheus.HistogramVec

	// PairsPerScan observes the distribution of candidate pairs found per scan, labeled by scan type.
	PairsPerScan *prometheus.HistogramVec

	// SimilaritiesRecorded counts similarity edges persisted, labeled by confidence.
	SimilaritiesRecorded *prometheus.CounterVec

	// SimilaritiesReviewed counts manual status changes on similarity edges, labeled by new status.
	SimilaritiesReviewed *prometheus.CounterVec

	// MergesCompleted counts author merge operations that committed.
	MergesCompleted prometheus.Counter

	// MergesFailed counts author merge operations that rolled back.
	MergesFailed prometheus.Counter

	// AuthorsAbsorbed counts duplicate authors removed by merges.
	AuthorsAbsorbed prometheus.Counter

	// BooksReassigned counts book attributions moved to a merge target.
	BooksReassigned prometheus.Counter

	// QueueClaims counts claim cycles executed against the enrichment queue.
	QueueClaims prometheus.Counter

	// QueueEntriesClaimed counts entries handed out across all claim cycles.
	QueueEntriesClaimed prometheus.Counter

	// QueueEntriesReleased counts claims released, labeled by reason (done, stale, explicit).
	QueueEntriesReleased *prometheus.CounterVec

	// QueueEntriesCompleted counts entries removed after successful enrichment.
	QueueEntriesCompleted prometheus.Counter

	// QueueDepth tracks the current number of unclaimed entries.
	QueueDepth prometheus.Gauge

	// HardcoverRequestsTotal counts requests to the Hardcover API, labeled by operation.
	HardcoverRequestsTotal *prometheus.CounterVec

	// HardcoverRequestsFailed counts failed Hardcover requests, labeled by operation and error type.
	HardcoverRequestsFailed *prometheus.CounterVec

	// HardcoverRequestDuration observes Hardcover request duration in seconds, labeled by operation.
	HardcoverRequestDuration *prometheus.HistogramVec

	// HardcoverRateLimited counts rate-limited responses from the Hardcover API.
	HardcoverRateLimited prometheus.Counter

	// EventsPublished counts lifecycle events published to Kafka, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts lifecycle events that failed to publish, labeled by event type.
	EventsFailed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Scans
		ScansStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_started_total",
			Help:      "Total number of duplicate scans started by type",
		}, []string{"scan_type"}),
		ScansCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_completed_total",
			Help:      "Total number of duplicate scans completed by type",
		}, []string{"scan_type"}),
		ScansFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_failed_total",
			Help:      "Total number of duplicate scans that failed by type",
		}, []string{"scan_type"}),
		ScanDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of duplicate scans in seconds by type",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"scan_type"}),
		PairsPerScan: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pairs_per_scan",
			Help:      "Number of candidate pairs found per scan by type",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"scan_type"}),

		// Similarities
		SimilaritiesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarities_recorded_total",
			Help:      "Total number of similarity edges persisted by confidence",
		}, []string{"confidence"}),
		SimilaritiesReviewed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "similarities_reviewed_total",
			Help:      "Total number of similarity edge status changes by new status",
		}, []string{"status"}),

		// Merges
		MergesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_completed_total",
			Help:      "Total number of author merges committed",
		}),
		MergesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merges_failed_total",
			Help:      "Total number of author merges rolled back",
		}),
		AuthorsAbsorbed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authors_absorbed_total",
			Help:      "Total number of duplicate authors removed by merges",
		}),
		BooksReassigned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_reassigned_total",
			Help:      "Total number of book attributions moved to merge targets",
		}),

		// Queue
		QueueClaims: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_claims_total",
			Help:      "Total number of claim cycles executed",
		}),
		QueueEntriesClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_entries_claimed_total",
			Help:      "Total number of queue entries claimed",
		}),
		QueueEntriesReleased: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_entries_released_total",
			Help:      "Total number of queue claims released by reason",
		}, []string{"reason"}),
		QueueEntriesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_entries_completed_total",
			Help:      "Total number of queue entries removed after enrichment",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of unclaimed queue entries",
		}),

		// Hardcover
		HardcoverRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardcover_requests_total",
			Help:      "Total number of requests to the Hardcover API",
		}, []string{"operation"}),
		HardcoverRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardcover_requests_failed_total",
			Help:      "Total number of failed Hardcover API requests",
		}, []string{"operation", "error_type"}),
		HardcoverRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hardcover_request_duration_seconds",
			Help:      "Duration of Hardcover API requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		HardcoverRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardcover_rate_limited_total",
			Help:      "Total number of rate limit responses from the Hardcover API",
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of lifecycle events published",
		}, []string{"event_type"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of lifecycle events that failed to publish",
		}, []string{"event_type"}),
	}
}

// RecordScanStarted records that a duplicate scan has started.
func (m *Metrics) RecordScanStarted(scanType string) {
	m.ScansStarted.WithLabelValues(scanType).Inc()
}

// RecordScanCompleted records that a duplicate scan has completed.
func (m *Metrics) RecordScanCompleted(scanType string, pairCount int, durationSeconds float64) {
	m.ScansCompleted.WithLabelValues(scanType).Inc()
	m.ScanDuration.WithLabelValues(scanType).Observe(durationSeconds)
	m.PairsPerScan.WithLabelValues(scanType).Observe(float64(pairCount))
}

// RecordScanFailed records that a duplicate scan has failed.
func (m *Metrics) RecordScanFailed(scanType string, durationSeconds float64) {
	m.ScansFailed.WithLabelValues(scanType).Inc()
	m.ScanDuration.WithLabelValues(scanType).Observe(durationSeconds)
}

// RecordSimilarityRecorded records a persisted similarity edge.
func (m *Metrics) RecordSimilarityRecorded(confidence string) {
	m.SimilaritiesRecorded.WithLabelValues(confidence).Inc()
}

// RecordSimilarityReviewed records a manual status change on a similarity edge.
func (m *Metrics) RecordSimilarityReviewed(status string) {
	m.SimilaritiesReviewed.WithLabelValues(status).Inc()
}

// RecordMergeCompleted records a committed author merge.
func (m *Metrics) RecordMergeCompleted(absorbed, booksReassigned int) {
	m.MergesCompleted.Inc()
	m.AuthorsAbsorbed.Add(float64(absorbed))
	m.BooksReassigned.Add(float64(booksReassigned))
}

// RecordMergeFailed records a rolled-back author merge.
func (m *Metrics) RecordMergeFailed() {
	m.MergesFailed.Inc()
}

// RecordQueueClaim records a claim cycle and the entries it handed out.
func (m *Metrics) RecordQueueClaim(claimed, remaining int) {
	m.QueueClaims.Inc()
	m.QueueEntriesClaimed.Add(float64(claimed))
	m.QueueDepth.Set(float64(remaining))
}

// RecordQueueReleased records released claims by reason.
func (m *Metrics) RecordQueueReleased(reason string, count int) {
	m.QueueEntriesReleased.WithLabelValues(reason).Add(float64(count))
}

// RecordQueueCompleted records entries removed after successful enrichment.
func (m *Metrics) RecordQueueCompleted(count int) {
	m.QueueEntriesCompleted.Add(float64(count))
}

// RecordHardcoverRequest records a request to the Hardcover API.
func (m *Metrics) RecordHardcoverRequest(operation string, durationSeconds float64) {
	m.HardcoverRequestsTotal.WithLabelValues(operation).Inc()
	m.HardcoverRequestDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordHardcoverRequestFailed records a failed Hardcover API request.
func (m *Metrics) RecordHardcoverRequestFailed(operation, errorType string) {
	m.HardcoverRequestsFailed.WithLabelValues(operation, errorType).Inc()
}

// RecordHardcoverRateLimited records a rate limit response from the Hardcover API.
func (m *Metrics) RecordHardcoverRateLimited() {
	m.HardcoverRateLimited.Inc()
}

// RecordEventPublished records a published lifecycle event.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventFailed records a lifecycle event that failed to publish.
func (m *Metrics) RecordEventFailed(eventType string) {
	m.EventsFailed.WithLabelValues(eventType).Inc()
}
