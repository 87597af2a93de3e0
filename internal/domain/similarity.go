package domain

import (
	"time"

	"github.com/google/uuid"
)

// Confidence is a coarse bucket summarizing a similarity score for review
// triage. These values must match the database enum confidence_tier.
type Confidence string

const (
	ConfidenceExact  Confidence = "exact"
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// confidenceRank orders confidence tiers for monotonic raising across the
// scoring cascade: exact > high > medium > low.
var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
	ConfidenceExact:  3,
}

// Max returns the higher of the two confidence tiers.
func (c Confidence) Max(other Confidence) Confidence {
	if confidenceRank[other] > confidenceRank[c] {
		return other
	}
	return c
}

// SimilarityStatus is the review lifecycle of a candidate-duplicate edge.
// These values must match the database enum similarity_status.
type SimilarityStatus string

const (
	SimilarityStatusPending   SimilarityStatus = "pending"
	SimilarityStatusReviewed  SimilarityStatus = "reviewed"
	SimilarityStatusMerged    SimilarityStatus = "merged"
	SimilarityStatusDismissed SimilarityStatus = "dismissed"
)

// ValidSimilarityStatus reports whether s is a known lifecycle value.
func ValidSimilarityStatus(s SimilarityStatus) bool {
	switch s {
	case SimilarityStatusPending, SimilarityStatusReviewed, SimilarityStatusMerged, SimilarityStatusDismissed:
		return true
	default:
		return false
	}
}

// MatchReasons records which scoring rules contributed to a similarity.
// Fields are optional flags rather than a free-form map so callers can
// pattern-match exhaustively when rendering or reasoning about confidence.
type MatchReasons struct {
	ExactMatch        bool     `json:"exactMatch,omitempty"`
	NameFlipped       bool     `json:"nameFlipped,omitempty"`
	FuzzyMatch        int      `json:"fuzzyMatch,omitempty"`
	PhoneticMatch     bool     `json:"phoneticMatch,omitempty"`
	InitialsMatch     bool     `json:"initialsMatch,omitempty"`
	MissingMiddle     bool     `json:"missingMiddle,omitempty"`
	SharedExternalIDs []string `json:"sharedExternalIds,omitempty"`
}

// AuthorSimilarity is a candidate-duplicate edge between two author records.
// The pair is symmetric but stored ordered; a pair is persisted at most once
// regardless of endpoint order.
type AuthorSimilarity struct {
	ID          uuid.UUID
	Author1ID   uuid.UUID
	Author1Name string
	Author2ID   uuid.UUID
	Author2Name string
	Score       int
	Confidence  Confidence
	Reasons     MatchReasons
	Status      SimilarityStatus
	MergeID     *uuid.UUID
	ReviewedAt  *time.Time
	ReviewedBy  *string
	Notes       *string
	CreatedAt   time.Time
}

// PairKey returns an order-independent key identifying the author pair, so
// (a,b) and (b,a) collapse to the same edge.
func PairKey(a, b uuid.UUID) string {
	if b.String() < a.String() {
		a, b = b, a
	}
	return a.String() + ":" + b.String()
}

// AuthorMerge is the immutable audit record of a completed merge.
type AuthorMerge struct {
	ID                uuid.UUID
	MergedAuthorIDs   []uuid.UUID
	MergedAuthorNames []string
	TargetAuthorID    uuid.UUID
	TargetAuthorName  string
	MergedBy          string
	MergeReason       *string
	BooksReassigned   int
	CreatedAt         time.Time
}

// ScanType selects which detection pass a scan run performs.
type ScanType string

const (
	ScanTypeExact   ScanType = "exact"
	ScanTypeFlipped ScanType = "flipped"
	ScanTypeFuzzy   ScanType = "fuzzy"
	ScanTypeFull    ScanType = "full"
)

// ValidScanType reports whether t is a known scan type.
func ValidScanType(t ScanType) bool {
	switch t {
	case ScanTypeExact, ScanTypeFlipped, ScanTypeFuzzy, ScanTypeFull:
		return true
	default:
		return false
	}
}

// ScanStatus is the lifecycle of a duplicate scan run.
type ScanStatus string

const (
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// DuplicateScanRun is the audit record of one detection scan. A run stuck in
// `running` after a crash is a known recoverable inconsistency that requires
// external reconciliation.
type DuplicateScanRun struct {
	ID               uuid.UUID
	ScanType         ScanType
	MinScore         int
	Status           ScanStatus
	TotalAuthors     int
	DuplicatesFound  int
	ProcessingTimeMs int64
	Error            *string
	CreatedAt        time.Time
	CompletedAt      *time.Time
}
