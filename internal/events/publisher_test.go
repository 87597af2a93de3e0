package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/domain"
)

type capturedWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *capturedWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *capturedWriter) Close() error {
	w.closed = true
	return nil
}

func newTestPublisher(writer messageWriter) *Publisher {
	return &Publisher{writer: writer, topic: "events.dedup.book_catalog_service", logger: zerolog.Nop()}
}

func TestPublisher_PublishAuthorMerged(t *testing.T) {
	writer := &capturedWriter{}
	publisher := newTestPublisher(writer)

	target := uuid.New()
	absorbed := uuid.New()
	merge := &domain.AuthorMerge{
		ID:                uuid.New(),
		MergedAuthorIDs:   []uuid.UUID{absorbed},
		MergedAuthorNames: []string{"Stephan King"},
		TargetAuthorID:    target,
		TargetAuthorName:  "Stephen King",
		MergedBy:          "admin",
		BooksReassigned:   7,
	}

	require.NoError(t, publisher.PublishAuthorMerged(context.Background(), merge))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, target.String(), string(msg.Key))

	var envelope Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, EventAuthorMerged, envelope.EventType)
	assert.False(t, envelope.OccurredAt.IsZero())

	var event AuthorMergedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &event))
	assert.Equal(t, merge.ID.String(), event.MergeID)
	assert.Equal(t, "Stephen King", event.TargetAuthorName)
	assert.Equal(t, []string{absorbed.String()}, event.MergedAuthorIDs)
	assert.Equal(t, 7, event.BooksReassigned)
}

func TestPublisher_PublishScanCompleted(t *testing.T) {
	writer := &capturedWriter{}
	publisher := newTestPublisher(writer)

	run := &domain.DuplicateScanRun{
		ID:               uuid.New(),
		ScanType:         domain.ScanTypeFull,
		TotalAuthors:     1200,
		DuplicatesFound:  14,
		ProcessingTimeMs: 5300,
	}

	require.NoError(t, publisher.PublishScanCompleted(context.Background(), run))
	require.Len(t, writer.messages, 1)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &envelope))
	assert.Equal(t, EventScanCompleted, envelope.EventType)

	var event ScanCompletedEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &event))
	assert.Equal(t, "full", event.ScanType)
	assert.Equal(t, 14, event.DuplicatesFound)
}

func TestPublisher_WriteFailureSurfaces(t *testing.T) {
	writer := &capturedWriter{err: errors.New("broker unreachable")}
	publisher := newTestPublisher(writer)

	err := publisher.PublishAuthorMerged(context.Background(), &domain.AuthorMerge{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "author.merged")
}

func TestPublisher_DisabledDropsEvents(t *testing.T) {
	publisher := NewPublisher(config.KafkaConfig{Enabled: false}, zerolog.Nop())

	assert.NoError(t, publisher.PublishAuthorMerged(context.Background(), &domain.AuthorMerge{}))
	assert.NoError(t, publisher.PublishScanCompleted(context.Background(), &domain.DuplicateScanRun{}))
	assert.NoError(t, publisher.Close())
}

func TestPublisher_Close(t *testing.T) {
	writer := &capturedWriter{}
	publisher := newTestPublisher(writer)

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}
