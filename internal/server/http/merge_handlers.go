package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/merge"
)

// mergeRequest is the JSON body for executing an author merge.
type mergeRequest struct {
	AuthorIDs      []string `json:"author_ids" validate:"required,min=2,dive,uuid"`
	TargetAuthorID string   `json:"target_author_id" validate:"required,uuid"`
	MergedBy       string   `json:"merged_by" validate:"required,max=255"`
	Reason         *string  `json:"reason,omitempty" validate:"omitempty,max=2000"`
	SimilarityIDs  []string `json:"similarity_ids,omitempty" validate:"omitempty,dive,uuid"`
}

// executeMerge handles POST /api/v1/merges.
func (s *Server) executeMerge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	authorIDs, err := parseUUIDs(req.AuthorIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "author_ids must be UUIDs")
		return
	}
	targetID, err := uuid.Parse(req.TargetAuthorID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "target_author_id must be a UUID")
		return
	}
	similarityIDs, err := parseUUIDs(req.SimilarityIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, "similarity_ids must be UUIDs")
		return
	}

	result, err := s.merger.Merge(ctx, merge.Request{
		AuthorIDs:      authorIDs,
		TargetAuthorID: targetID,
		Initiator:      req.MergedBy,
		Reason:         req.Reason,
		SimilarityIDs:  similarityIDs,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("target_author_id", req.TargetAuthorID).Msg("merge failed")
		writeDomainError(w, err)
		return
	}

	resp := mergeResultResponse{
		BooksReassigned: result.BooksReassigned,
		AuthorsDeleted:  result.AuthorsDeleted,
		AlreadyMerged:   result.AlreadyMerged,
	}
	if result.MergeID != nil {
		id := result.MergeID.String()
		resp.MergeID = &id
	}

	status := http.StatusCreated
	if result.AlreadyMerged {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

// listMerges handles GET /api/v1/merges.
func (s *Server) listMerges(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	records, total, err := s.merges.List(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list merges")
		writeDomainError(w, err)
		return
	}

	resp := listMergesResponse{
		Merges:     make([]mergeRecordResponse, len(records)),
		TotalCount: total,
		Limit:      limit,
		Offset:     offset,
	}
	for i, record := range records {
		resp.Merges[i] = domainMergeToResponse(record)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getMerge handles GET /api/v1/merges/{mergeID}.
func (s *Server) getMerge(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "mergeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.merges.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainMergeToResponse(record))
}

// parseUUIDs parses a slice of UUID strings.
func parseUUIDs(values []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(values))
	for i, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
