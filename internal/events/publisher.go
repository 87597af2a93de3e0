// Package events publishes dedup lifecycle events to Kafka so downstream
// consumers can react to author merges and completed scans. Publishing is
// best effort and can be disabled entirely through configuration.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/ibdb/book-catalog-service/internal/config"
	"github.com/ibdb/book-catalog-service/internal/domain"
)

// Event types carried in the envelope.
const (
	EventAuthorMerged  = "author.merged"
	EventScanCompleted = "scan.completed"
)

// Envelope is the wire format shared by all published events.
type Envelope struct {
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// AuthorMergedEvent announces that duplicate authors were absorbed into a
// surviving record.
type AuthorMergedEvent struct {
	MergeID           string   `json:"merge_id"`
	TargetAuthorID    string   `json:"target_author_id"`
	TargetAuthorName  string   `json:"target_author_name"`
	MergedAuthorIDs   []string `json:"merged_author_ids"`
	MergedAuthorNames []string `json:"merged_author_names"`
	MergedBy          string   `json:"merged_by"`
	BooksReassigned   int      `json:"books_reassigned"`
}

// ScanCompletedEvent announces that a duplicate detection scan finished.
type ScanCompletedEvent struct {
	ScanID           string `json:"scan_id"`
	ScanType         string `json:"scan_type"`
	TotalAuthors     int    `json:"total_authors"`
	DuplicatesFound  int    `json:"duplicates_found"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// messageWriter is the kafka.Writer surface used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes dedup events to a single Kafka topic. A disabled
// publisher swallows all events, so callers never need a nil check.
type Publisher struct {
	writer messageWriter
	topic  string
	logger zerolog.Logger
}

// NewPublisher builds a Kafka-backed publisher from configuration. When
// publishing is disabled the returned publisher drops events silently.
func NewPublisher(cfg config.KafkaConfig, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		topic:  cfg.Topic,
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
	if !cfg.Enabled {
		return p
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 100 * time.Millisecond
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireOne,
	}
	return p
}

// PublishAuthorMerged publishes an author.merged event keyed by the target
// author, so all merges into one author land on the same partition.
func (p *Publisher) PublishAuthorMerged(ctx context.Context, merge *domain.AuthorMerge) error {
	ids := make([]string, len(merge.MergedAuthorIDs))
	for i, id := range merge.MergedAuthorIDs {
		ids[i] = id.String()
	}

	return p.publish(ctx, merge.TargetAuthorID.String(), EventAuthorMerged, AuthorMergedEvent{
		MergeID:           merge.ID.String(),
		TargetAuthorID:    merge.TargetAuthorID.String(),
		TargetAuthorName:  merge.TargetAuthorName,
		MergedAuthorIDs:   ids,
		MergedAuthorNames: merge.MergedAuthorNames,
		MergedBy:          merge.MergedBy,
		BooksReassigned:   merge.BooksReassigned,
	})
}

// PublishScanCompleted publishes a scan.completed event keyed by the run id.
func (p *Publisher) PublishScanCompleted(ctx context.Context, run *domain.DuplicateScanRun) error {
	return p.publish(ctx, run.ID.String(), EventScanCompleted, ScanCompletedEvent{
		ScanID:           run.ID.String(),
		ScanType:         string(run.ScanType),
		TotalAuthors:     run.TotalAuthors,
		DuplicatesFound:  run.DuplicatesFound,
		ProcessingTimeMs: run.ProcessingTimeMs,
	})
}

func (p *Publisher) publish(ctx context.Context, key, eventType string, payload any) error {
	if p.writer == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}
	envelope, err := json.Marshal(Envelope{
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", eventType, err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: envelope,
	}); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("key", key).
		Msg("published event")
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
