// Package httpserver provides the HTTP admin and API server for the book
// catalog service: the duplicate review surface, scan and merge execution,
// queue administration, and the enrichment claim/update endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ibdb/book-catalog-service/internal/database"
	"github.com/ibdb/book-catalog-service/internal/dedup"
	"github.com/ibdb/book-catalog-service/internal/domain"
	"github.com/ibdb/book-catalog-service/internal/merge"
	"github.com/ibdb/book-catalog-service/internal/queue"
	"github.com/ibdb/book-catalog-service/internal/repository"
)

// Scanner runs duplicate detection passes. Satisfied by *dedup.Scanner.
type Scanner interface {
	Scan(ctx context.Context, scanType domain.ScanType) (*dedup.ScanResult, error)
}

// DuplicateFinder computes on-demand candidates for a single author.
// Satisfied by *dedup.Detector.
type DuplicateFinder interface {
	FindDuplicatesForAuthor(ctx context.Context, id uuid.UUID) ([]*domain.AuthorSimilarity, error)
}

// Merger executes author merges. Satisfied by *merge.Coordinator.
type Merger interface {
	Merge(ctx context.Context, req merge.Request) (*merge.Result, error)
}

// QueueManager is the queue surface exposed over HTTP. Satisfied by
// *queue.Manager.
type QueueManager interface {
	ClaimBooks(ctx context.Context, previousProcessingID *uuid.UUID, limit int) (*queue.ClaimResult, error)
	ReleaseClaim(ctx context.Context, processingID uuid.UUID) (int64, error)
	ReleaseOldClaims(ctx context.Context, age time.Duration) (int64, error)
	CleanupCompleted(ctx context.Context) (int64, error)
	Populate(ctx context.Context) (int64, error)
	Depth(ctx context.Context) (int64, error)
	AddBookToQueue(ctx context.Context, bookID uuid.UUID) (bool, error)
	RemoveBookFromQueue(ctx context.Context, bookID uuid.UUID) (bool, error)
}

// ScanEventPublisher announces completed scans. Satisfied by
// *events.Publisher; may be nil.
type ScanEventPublisher interface {
	PublishScanCompleted(ctx context.Context, run *domain.DuplicateScanRun) error
}

// HealthChecker reports database health. Satisfied by *database.DB.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// UpdateSecret guards the enrichment update endpoint. Empty disables
	// the endpoint entirely.
	UpdateSecret string
	// StaleClaimAge is the default lease age for the release-old endpoint.
	StaleClaimAge time.Duration
}

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	cfg        Config

	scanner      Scanner
	finder       DuplicateFinder
	merger       Merger
	queueManager QueueManager
	publisher    ScanEventPublisher

	authors      repository.AuthorRepository
	books        repository.BookRepository
	similarities repository.SimilarityRepository
	merges       repository.MergeRepository
	scanRuns     repository.ScanRunRepository

	health   HealthChecker
	logger   zerolog.Logger
	validate *validator.Validate
}

// NewServer creates an HTTP server with all dependencies. publisher may be
// nil.
func NewServer(
	cfg Config,
	scanner Scanner,
	finder DuplicateFinder,
	merger Merger,
	queueManager QueueManager,
	publisher ScanEventPublisher,
	authors repository.AuthorRepository,
	books repository.BookRepository,
	similarities repository.SimilarityRepository,
	merges repository.MergeRepository,
	scanRuns repository.ScanRunRepository,
	health HealthChecker,
	logger zerolog.Logger,
) *Server {
	if cfg.StaleClaimAge <= 0 {
		cfg.StaleClaimAge = 30 * time.Minute
	}

	s := &Server{
		cfg:          cfg,
		scanner:      scanner,
		finder:       finder,
		merger:       merger,
		queueManager: queueManager,
		publisher:    publisher,
		authors:      authors,
		books:        books,
		similarities: similarities,
		merges:       merges,
		scanRuns:     scanRuns,
		health:       health,
		logger:       logger.With().Str("component", "http-server").Logger(),
		validate:     validator.New(),
	}

	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(jsonContentTypeMiddleware)

		r.Route("/duplicates", func(r chi.Router) {
			r.Get("/", s.listDuplicates)
			r.Get("/stats", s.duplicateStats)
			r.Post("/detect", s.detectDuplicates)
			r.Get("/detect/runs", s.listScanRuns)
			r.Get("/detect/runs/{runID}", s.getScanRun)
			r.Patch("/{similarityID}", s.reviewDuplicate)
		})

		r.Get("/authors/{authorID}/duplicates", s.authorDuplicates)

		r.Route("/merges", func(r chi.Router) {
			r.Post("/", s.executeMerge)
			r.Get("/", s.listMerges)
			r.Get("/{mergeID}", s.getMerge)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/depth", s.queueDepth)
			r.Post("/cleanup", s.cleanupQueue)
			r.Post("/release-old", s.releaseOldClaims)
			r.Post("/claims/{processingID}/release", s.releaseClaim)
			r.Post("/populate", s.populateQueue)
			r.Post("/books/{bookID}", s.addBookToQueue)
			r.Delete("/books/{bookID}", s.removeBookFromQueue)
		})

		r.Route("/missing/hardcover", func(r chi.Router) {
			r.Get("/", s.claimMissingHardcover)
			r.With(s.requireUpdateSecret).Post("/update", s.applyHardcoverUpdate)
		})
	})

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler returns readiness status.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers already sent; nothing left to do.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeDomainError maps domain errors to HTTP status codes. Unknown errors
// become a generic 500; the caller is expected to have logged the detail.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, dedup.ErrScanInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUIDParam parses a UUID path parameter.
func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}
