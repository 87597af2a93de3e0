package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

// previewSize bounds the similarity preview returned by a detect request.
const previewSize = 10

// reviewRequest is the JSON body for reviewing a candidate-duplicate edge.
type reviewRequest struct {
	Status     string  `json:"status" validate:"required,oneof=pending reviewed dismissed"`
	ReviewedBy string  `json:"reviewed_by" validate:"required,max=255"`
	Notes      *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// detectRequest is the JSON body for triggering a detection scan.
type detectRequest struct {
	ScanType string `json:"scan_type" validate:"required,oneof=exact flipped fuzzy full"`
}

// listDuplicates handles GET /api/v1/duplicates.
func (s *Server) listDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := similarityFilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sims, total, err := s.similarities.List(ctx, *filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list duplicates")
		writeDomainError(w, err)
		return
	}

	live, err := s.liveAuthors(ctx, sims)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load authors for duplicates")
		writeDomainError(w, err)
		return
	}

	resp := listSimilaritiesResponse{
		Duplicates: make([]similarityResponse, len(sims)),
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	for i, sim := range sims {
		resp.Duplicates[i] = domainSimilarityToResponse(sim, live)
	}

	writeJSON(w, http.StatusOK, resp)
}

// reviewDuplicate handles PATCH /api/v1/duplicates/{similarityID}.
func (s *Server) reviewDuplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseUUIDParam(r, "similarityID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := domain.SimilarityStatus(req.Status)
	if err := s.similarities.UpdateStatus(ctx, id, status, req.ReviewedBy, req.Notes); err != nil {
		writeDomainError(w, err)
		return
	}

	sim, err := s.similarities.GetByID(ctx, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, domainSimilarityToResponse(sim, nil))
}

// duplicateStats handles GET /api/v1/duplicates/stats.
func (s *Server) duplicateStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	statusCounts, err := s.similarities.StatusCounts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load status counts")
		writeDomainError(w, err)
		return
	}
	tierCounts, err := s.similarities.PendingConfidenceCounts(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load confidence counts")
		writeDomainError(w, err)
		return
	}
	scoreRanges, err := s.similarities.PendingScoreRanges(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load score ranges")
		writeDomainError(w, err)
		return
	}
	mergeCount, booksReassigned, err := s.merges.Totals(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load merge totals")
		writeDomainError(w, err)
		return
	}

	resp := statsResponse{
		StatusCounts:    make(map[string]int64, len(statusCounts)),
		PendingByTier:   make(map[string]int64, len(tierCounts)),
		PendingByScore:  scoreRanges,
		TotalMerges:     mergeCount,
		BooksReassigned: booksReassigned,
	}
	for status, count := range statusCounts {
		resp.StatusCounts[string(status)] = count
	}
	for tier, count := range tierCounts {
		resp.PendingByTier[string(tier)] = count
	}

	writeJSON(w, http.StatusOK, resp)
}

// detectDuplicates handles POST /api/v1/duplicates/detect.
func (s *Server) detectDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req detectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.scanner.Scan(ctx, domain.ScanType(req.ScanType))
	if err != nil {
		s.logger.Error().Err(err).Str("scan_type", req.ScanType).Msg("scan failed")
		writeDomainError(w, err)
		return
	}

	run := result.Run
	run.Status = domain.ScanStatusCompleted
	run.TotalAuthors = result.TotalAuthors
	run.DuplicatesFound = result.PairsFound

	if s.publisher != nil {
		if err := s.publisher.PublishScanCompleted(ctx, run); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish scan event")
		}
	}

	preview, err := s.pendingPreview(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load scan preview")
		preview = nil
	}

	writeJSON(w, http.StatusOK, detectResponse{
		Run:             domainScanRunToResponse(run),
		TotalAuthors:    result.TotalAuthors,
		PairsFound:      result.PairsFound,
		NewSimilarities: result.NewSimilarities,
		Preview:         preview,
	})
}

// listScanRuns handles GET /api/v1/duplicates/detect/runs.
func (s *Server) listScanRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 10)
	runs, err := s.scanRuns.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list scan runs")
		writeDomainError(w, err)
		return
	}

	resp := make([]scanRunResponse, len(runs))
	for i, run := range runs {
		resp[i] = domainScanRunToResponse(run)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": resp})
}

// getScanRun handles GET /api/v1/duplicates/detect/runs/{runID}.
func (s *Server) getScanRun(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "runID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.scanRuns.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainScanRunToResponse(run))
}

// authorDuplicates handles GET /api/v1/authors/{authorID}/duplicates.
// Candidates are computed on demand and are not persisted.
func (s *Server) authorDuplicates(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "authorID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidates, err := s.finder.FindDuplicatesForAuthor(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := make([]similarityResponse, len(candidates))
	for i, sim := range candidates {
		resp[i] = domainSimilarityToResponse(sim, nil)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": resp})
}

// liveAuthors loads the current author records referenced by the given edges.
func (s *Server) liveAuthors(ctx context.Context, sims []*domain.AuthorSimilarity) (map[uuid.UUID]*domain.Author, error) {
	if len(sims) == 0 {
		return map[uuid.UUID]*domain.Author{}, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(sims)*2)
	ids := make([]uuid.UUID, 0, len(sims)*2)
	for _, sim := range sims {
		for _, id := range []uuid.UUID{sim.Author1ID, sim.Author2ID} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	authors, err := s.authors.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	live := make(map[uuid.UUID]*domain.Author, len(authors))
	for _, author := range authors {
		live[author.ID] = author
	}
	return live, nil
}

// pendingPreview returns the highest scoring pending edges.
func (s *Server) pendingPreview(ctx context.Context) ([]similarityResponse, error) {
	status := domain.SimilarityStatusPending
	sims, _, err := s.similarities.List(ctx, repository.SimilarityFilter{
		Status: &status,
		Limit:  previewSize,
	})
	if err != nil {
		return nil, err
	}

	preview := make([]similarityResponse, len(sims))
	for i, sim := range sims {
		preview[i] = domainSimilarityToResponse(sim, nil)
	}
	return preview, nil
}

// similarityFilterFromQuery builds a list filter from query parameters.
func similarityFilterFromQuery(r *http.Request) (*repository.SimilarityFilter, error) {
	filter := &repository.SimilarityFilter{
		Limit:  queryInt(r, "limit", 0),
		Offset: queryInt(r, "offset", 0),
	}

	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.SimilarityStatus(v)
		filter.Status = &status
	}
	if v := r.URL.Query().Get("confidence"); v != "" {
		confidence := domain.Confidence(v)
		filter.Confidence = &confidence
	}
	if v := r.URL.Query().Get("min_score"); v != "" {
		score, err := strconv.Atoi(v)
		if err != nil {
			return nil, domain.NewValidationError("min_score", "must be an integer")
		}
		filter.MinScore = &score
	}
	if v := r.URL.Query().Get("author_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, domain.NewValidationError("author_id", "must be a UUID")
		}
		filter.AuthorID = &id
	}

	if err := filter.Validate(); err != nil {
		return nil, err
	}
	return filter, nil
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
