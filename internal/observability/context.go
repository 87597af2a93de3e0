package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey    contextKey = "request_id"
	scanIDKey       contextKey = "scan_id"
	processingIDKey contextKey = "processing_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithScanID adds a duplicate-scan run ID to the context.
func WithScanID(ctx context.Context, scanID string) context.Context {
	return context.WithValue(ctx, scanIDKey, scanID)
}

// ScanIDFromContext retrieves the scan run ID from context.
// Returns empty string if not present.
func ScanIDFromContext(ctx context.Context) string {
	if v := ctx.Value(scanIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithProcessingID adds a queue lease token to the context.
func WithProcessingID(ctx context.Context, processingID string) context.Context {
	return context.WithValue(ctx, processingIDKey, processingID)
}

// ProcessingIDFromContext retrieves the queue lease token from context.
// Returns empty string if not present.
func ProcessingIDFromContext(ctx context.Context) string {
	if v := ctx.Value(processingIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
