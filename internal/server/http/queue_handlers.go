package httpserver

import (
	"encoding/json"
	"io"
	"net/http"
	"time"
)

// releaseOldRequest is the JSON body for releasing stale claims. An empty
// body uses the configured default age.
type releaseOldRequest struct {
	OlderThanMinutes int `json:"older_than_minutes" validate:"omitempty,min=1,max=10080"`
}

// queueDepth handles GET /api/v1/queue/depth.
func (s *Server) queueDepth(w http.ResponseWriter, r *http.Request) {
	depth, err := s.queueManager.Depth(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read queue depth")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: depth})
}

// cleanupQueue handles POST /api/v1/queue/cleanup.
func (s *Server) cleanupQueue(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.queueManager.CleanupCompleted(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("queue cleanup failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: deleted})
}

// releaseOldClaims handles POST /api/v1/queue/release-old.
func (s *Server) releaseOldClaims(w http.ResponseWriter, r *http.Request) {
	age := s.cfg.StaleClaimAge

	var req releaseOldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.OlderThanMinutes > 0 {
		if err := s.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		age = time.Duration(req.OlderThanMinutes) * time.Minute
	}

	released, err := s.queueManager.ReleaseOldClaims(r.Context(), age)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to release old claims")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: released})
}

// releaseClaim handles POST /api/v1/queue/claims/{processingID}/release.
func (s *Server) releaseClaim(w http.ResponseWriter, r *http.Request) {
	processingID, err := parseUUIDParam(r, "processingID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	released, err := s.queueManager.ReleaseClaim(r.Context(), processingID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: released})
}

// populateQueue handles POST /api/v1/queue/populate.
func (s *Server) populateQueue(w http.ResponseWriter, r *http.Request) {
	created, err := s.queueManager.Populate(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("queue population failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: created})
}

// addBookToQueue handles POST /api/v1/queue/books/{bookID}.
func (s *Server) addBookToQueue(w http.ResponseWriter, r *http.Request) {
	bookID, err := parseUUIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	added, err := s.queueManager.AddBookToQueue(r.Context(), bookID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if !added {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]bool{"added": added})
}

// removeBookFromQueue handles DELETE /api/v1/queue/books/{bookID}.
func (s *Server) removeBookFromQueue(w http.ResponseWriter, r *http.Request) {
	bookID, err := parseUUIDParam(r, "bookID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	removed, err := s.queueManager.RemoveBookFromQueue(r.Context(), bookID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "book is not queued")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}
