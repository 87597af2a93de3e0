// Package observability provides logging and metrics support for the book
// catalog service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for scans, merges, the enrichment queue, and the
//     Hardcover API client
//   - Context helpers for propagating request and lease identifiers
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("scan_id", scanID).Msg("scan started")
//
// Add scan context to a logger:
//
//	logger = observability.WithScanContext(logger, scanID, scanType)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("book_catalog")
//
// Record metrics:
//
//	metrics.RecordScanStarted("full")
//	metrics.RecordMergeCompleted(absorbed, booksReassigned)
//	metrics.RecordQueueClaim(claimed, remaining)
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	reqID := observability.RequestIDFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: HTTP request identifier
//   - scan_id: Duplicate scan run identifier
//   - scan_type: Scan strategy (exact, flipped, fuzzy, full)
//   - author_id: Author identifier
//   - target_author_id: Merge target identifier
//   - processing_id: Queue lease token
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
