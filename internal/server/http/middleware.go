package httpserver

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ibdb/book-catalog-service/internal/observability"
)

// updateSecretHeader carries the shared secret for the enrichment update
// endpoint.
const updateSecretHeader = "X-Update-Secret"

// jsonContentTypeMiddleware sets Content-Type: application/json for all
// responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request with status and duration, and
// threads the chi request id into the context for downstream log fields.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		ctx := observability.WithRequestID(r.Context(), requestID)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

// requireUpdateSecret rejects requests without the configured shared secret.
// An unconfigured secret disables the guarded endpoint rather than leaving
// it open.
func (s *Server) requireUpdateSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.UpdateSecret == "" {
			writeError(w, http.StatusForbidden, "update endpoint is not configured")
			return
		}

		provided := r.Header.Get(updateSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.UpdateSecret)) != 1 {
			writeError(w, http.StatusForbidden, "invalid update secret")
			return
		}

		next.ServeHTTP(w, r)
	})
}
