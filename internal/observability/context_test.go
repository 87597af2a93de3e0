package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestRequestIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestWithScanID(t *testing.T) {
	ctx := context.Background()

	ctx = WithScanID(ctx, "scan-456")
	assert.Equal(t, "scan-456", ScanIDFromContext(ctx))
}

func TestScanIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, ScanIDFromContext(context.Background()))
}

func TestWithProcessingID(t *testing.T) {
	ctx := context.Background()

	ctx = WithProcessingID(ctx, "proc-789")
	assert.Equal(t, "proc-789", ProcessingIDFromContext(ctx))
}

func TestProcessingIDFromContext_Missing(t *testing.T) {
	assert.Empty(t, ProcessingIDFromContext(context.Background()))
}

func TestContextKeysIndependent(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithScanID(ctx, "scan-1")
	ctx = WithProcessingID(ctx, "proc-1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "scan-1", ScanIDFromContext(ctx))
	assert.Equal(t, "proc-1", ProcessingIDFromContext(ctx))
}
