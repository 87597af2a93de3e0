package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/ibdb/book-catalog-service/internal/domain"
)

// hardcoverAuthorUpdate is one author identifier inside an update request.
type hardcoverAuthorUpdate struct {
	AuthorID      string `json:"author_id" validate:"required,uuid"`
	HardcoverID   string `json:"hardcover_id" validate:"required,max=64"`
	HardcoverSlug string `json:"hardcover_slug" validate:"omitempty,max=255"`
}

// hardcoverUpdateRequest is the JSON body applying one book's resolved
// identifiers and completing its queue entry.
type hardcoverUpdateRequest struct {
	BookID             string                  `json:"book_id" validate:"required,uuid"`
	HardcoverID        string                  `json:"hardcover_id" validate:"required,max=64"`
	HardcoverSlug      string                  `json:"hardcover_slug" validate:"omitempty,max=255"`
	EditionID          string                  `json:"edition_id,omitempty" validate:"omitempty,uuid"`
	HardcoverEditionID string                  `json:"hardcover_edition_id,omitempty" validate:"omitempty,max=64"`
	Authors            []hardcoverAuthorUpdate `json:"authors,omitempty" validate:"omitempty,dive"`
}

// claimMissingHardcover handles GET /api/v1/missing/hardcover. It leases a
// batch of queued books under a fresh processing token; a
// previous_processing_id query parameter discards that cycle's entries first.
func (s *Server) claimMissingHardcover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var previous *uuid.UUID
	if v := r.URL.Query().Get("previous_processing_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "previous_processing_id must be a UUID")
			return
		}
		previous = &id
	}

	limit := queryInt(r, "limit", 0)
	claim, err := s.queueManager.ClaimBooks(ctx, previous, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("claim failed")
		writeDomainError(w, err)
		return
	}

	resp := claimResponse{
		Books:              make([]bookResponse, len(claim.Books)),
		ProcessingID:       claim.ProcessingID.String(),
		RemainingUnclaimed: claim.RemainingUnclaimed,
	}
	for i, book := range claim.Books {
		resp.Books[i] = domainBookToResponse(book)
	}
	writeJSON(w, http.StatusOK, resp)
}

// applyHardcoverUpdate handles POST /api/v1/missing/hardcover/update. The
// route is guarded by the shared update secret.
func (s *Server) applyHardcoverUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req hardcoverUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.HardcoverEditionID != "" && req.EditionID == "" {
		writeError(w, http.StatusBadRequest, "edition_id is required with hardcover_edition_id")
		return
	}

	bookID, err := uuid.Parse(req.BookID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "book_id must be a UUID")
		return
	}

	slug := optionalString(req.HardcoverSlug)
	if err := s.books.UpdateHardcover(ctx, bookID, &req.HardcoverID, slug); err != nil {
		writeDomainError(w, err)
		return
	}

	if req.HardcoverEditionID != "" {
		editionID, err := uuid.Parse(req.EditionID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "edition_id must be a UUID")
			return
		}
		if err := s.books.UpdateEditionHardcover(ctx, editionID, req.HardcoverEditionID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	for _, update := range req.Authors {
		authorID, err := uuid.Parse(update.AuthorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "author_id must be a UUID")
			return
		}
		authorSlug := optionalString(update.HardcoverSlug)
		if err := s.authors.UpdateHardcover(ctx, authorID, &update.HardcoverID, authorSlug); err != nil {
			// A missing author was likely merged away since the claim.
			if errors.Is(err, domain.ErrNotFound) {
				s.logger.Warn().Str("author_id", update.AuthorID).Msg("author vanished before identifier update")
				continue
			}
			writeDomainError(w, err)
			return
		}
	}

	removed, err := s.queueManager.RemoveBookFromQueue(ctx, bookID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"updated": true, "dequeued": removed})
}

// optionalString returns nil for an empty string.
func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
