package httpserver

import (
	"time"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// Response types for JSON serialization.

type authorResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	GoodReadsID   *string `json:"goodreads_id,omitempty"`
	OpenLibraryID *string `json:"openlibrary_id,omitempty"`
	HardcoverID   *string `json:"hardcover_id,omitempty"`
	HardcoverSlug *string `json:"hardcover_slug,omitempty"`
}

// similarityEndpoint is one side of a candidate-duplicate pair, enriched
// with the live author record when it still exists.
type similarityEndpoint struct {
	AuthorID string          `json:"author_id"`
	Name     string          `json:"name"`
	Deleted  bool            `json:"deleted"`
	Author   *authorResponse `json:"author,omitempty"`
}

type similarityResponse struct {
	ID         string               `json:"id"`
	Author1    similarityEndpoint   `json:"author1"`
	Author2    similarityEndpoint   `json:"author2"`
	Score      int                  `json:"score"`
	Confidence string               `json:"confidence"`
	Reasons    domain.MatchReasons  `json:"reasons"`
	Status     string               `json:"status"`
	MergeID    *string              `json:"merge_id,omitempty"`
	ReviewedAt *time.Time           `json:"reviewed_at,omitempty"`
	ReviewedBy *string              `json:"reviewed_by,omitempty"`
	Notes      *string              `json:"notes,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

type listSimilaritiesResponse struct {
	Duplicates []similarityResponse `json:"duplicates"`
	TotalCount int64                `json:"total_count"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
}

type scanRunResponse struct {
	ID               string     `json:"id"`
	ScanType         string     `json:"scan_type"`
	MinScore         int        `json:"min_score"`
	Status           string     `json:"status"`
	TotalAuthors     int        `json:"total_authors"`
	DuplicatesFound  int        `json:"duplicates_found"`
	ProcessingTimeMs int64      `json:"processing_time_ms"`
	Error            *string    `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type detectResponse struct {
	Run             scanRunResponse      `json:"run"`
	TotalAuthors    int                  `json:"total_authors"`
	PairsFound      int                  `json:"pairs_found"`
	NewSimilarities int                  `json:"new_similarities"`
	Preview         []similarityResponse `json:"preview"`
}

type statsResponse struct {
	StatusCounts     map[string]int64 `json:"status_counts"`
	PendingByTier    map[string]int64 `json:"pending_by_confidence"`
	PendingByScore   map[string]int64 `json:"pending_by_score_range"`
	TotalMerges      int64            `json:"total_merges"`
	BooksReassigned  int64            `json:"books_reassigned"`
}

type mergeRecordResponse struct {
	ID                string    `json:"id"`
	TargetAuthorID    string    `json:"target_author_id"`
	TargetAuthorName  string    `json:"target_author_name"`
	MergedAuthorIDs   []string  `json:"merged_author_ids"`
	MergedAuthorNames []string  `json:"merged_author_names"`
	MergedBy          string    `json:"merged_by"`
	MergeReason       *string   `json:"merge_reason,omitempty"`
	BooksReassigned   int       `json:"books_reassigned"`
	CreatedAt         time.Time `json:"created_at"`
}

type listMergesResponse struct {
	Merges     []mergeRecordResponse `json:"merges"`
	TotalCount int64                 `json:"total_count"`
	Limit      int                   `json:"limit"`
	Offset     int                   `json:"offset"`
}

type mergeResultResponse struct {
	MergeID         *string `json:"merge_id,omitempty"`
	BooksReassigned int     `json:"books_reassigned"`
	AuthorsDeleted  int     `json:"authors_deleted"`
	AlreadyMerged   bool    `json:"already_merged"`
}

type editionResponse struct {
	ID          string  `json:"id"`
	ISBN13      *string `json:"isbn_13,omitempty"`
	HardcoverID *string `json:"hardcover_id,omitempty"`
}

type bookResponse struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	HardcoverID   *string          `json:"hardcover_id,omitempty"`
	HardcoverSlug *string          `json:"hardcover_slug,omitempty"`
	Authors       []authorResponse `json:"authors"`
	LatestEdition *editionResponse `json:"latest_edition,omitempty"`
}

type claimResponse struct {
	Books              []bookResponse `json:"books"`
	ProcessingID       string         `json:"processing_id"`
	RemainingUnclaimed int64          `json:"remaining_unclaimed"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

// Converter functions

func domainAuthorToResponse(a *domain.Author) authorResponse {
	return authorResponse{
		ID:            a.ID.String(),
		Name:          a.Name,
		GoodReadsID:   a.GoodReadsID,
		OpenLibraryID: a.OpenLibraryID,
		HardcoverID:   a.HardcoverID,
		HardcoverSlug: a.HardcoverSlug,
	}
}

// domainSimilarityToResponse renders a similarity edge. live maps author id
// to the current record; endpoints missing from it are marked deleted.
func domainSimilarityToResponse(sim *domain.AuthorSimilarity, live map[uuid.UUID]*domain.Author) similarityResponse {
	resp := similarityResponse{
		ID:         sim.ID.String(),
		Author1:    endpointResponse(sim.Author1ID, sim.Author1Name, live),
		Author2:    endpointResponse(sim.Author2ID, sim.Author2Name, live),
		Score:      sim.Score,
		Confidence: string(sim.Confidence),
		Reasons:    sim.Reasons,
		Status:     string(sim.Status),
		ReviewedAt: sim.ReviewedAt,
		ReviewedBy: sim.ReviewedBy,
		Notes:      sim.Notes,
		CreatedAt:  sim.CreatedAt,
	}
	if sim.MergeID != nil {
		id := sim.MergeID.String()
		resp.MergeID = &id
	}
	return resp
}

func endpointResponse(id uuid.UUID, name string, live map[uuid.UUID]*domain.Author) similarityEndpoint {
	endpoint := similarityEndpoint{AuthorID: id.String(), Name: name}
	if live == nil {
		return endpoint
	}
	if author, ok := live[id]; ok {
		resp := domainAuthorToResponse(author)
		endpoint.Author = &resp
	} else {
		endpoint.Deleted = true
	}
	return endpoint
}

func domainScanRunToResponse(run *domain.DuplicateScanRun) scanRunResponse {
	return scanRunResponse{
		ID:               run.ID.String(),
		ScanType:         string(run.ScanType),
		MinScore:         run.MinScore,
		Status:           string(run.Status),
		TotalAuthors:     run.TotalAuthors,
		DuplicatesFound:  run.DuplicatesFound,
		ProcessingTimeMs: run.ProcessingTimeMs,
		Error:            run.Error,
		CreatedAt:        run.CreatedAt,
		CompletedAt:      run.CompletedAt,
	}
}

func domainMergeToResponse(m *domain.AuthorMerge) mergeRecordResponse {
	ids := make([]string, len(m.MergedAuthorIDs))
	for i, id := range m.MergedAuthorIDs {
		ids[i] = id.String()
	}
	return mergeRecordResponse{
		ID:                m.ID.String(),
		TargetAuthorID:    m.TargetAuthorID.String(),
		TargetAuthorName:  m.TargetAuthorName,
		MergedAuthorIDs:   ids,
		MergedAuthorNames: m.MergedAuthorNames,
		MergedBy:          m.MergedBy,
		MergeReason:       m.MergeReason,
		BooksReassigned:   m.BooksReassigned,
		CreatedAt:         m.CreatedAt,
	}
}

func domainBookToResponse(b *domain.Book) bookResponse {
	authors := make([]authorResponse, len(b.Authors))
	for i := range b.Authors {
		authors[i] = domainAuthorToResponse(&b.Authors[i])
	}
	resp := bookResponse{
		ID:            b.ID.String(),
		Title:         b.Title,
		HardcoverID:   b.HardcoverID,
		HardcoverSlug: b.HardcoverSlug,
		Authors:       authors,
	}
	if edition := b.LatestEdition(); edition != nil {
		resp.LatestEdition = &editionResponse{
			ID:          edition.ID.String(),
			ISBN13:      edition.ISBN13,
			HardcoverID: edition.HardcoverID,
		}
	}
	return resp
}
