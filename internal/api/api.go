// Package api exposes the bug store over HTTP. Every response uses the
// uniform {success, data, message, errors} envelope; this is the single
// point where internal errors are translated for callers.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fieldstone/bugtrack/internal/models"
	"github.com/fieldstone/bugtrack/internal/query"
	"github.com/fieldstone/bugtrack/internal/store"
	"github.com/fieldstone/bugtrack/internal/validate"
)

// Server provides the REST API handlers.
type Server struct {
	store   store.Store
	logger  *slog.Logger
	devMode bool
	started time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithDevMode makes 500 responses echo the underlying error. Off by
// default so internal details never leak to callers.
func WithDevMode(on bool) Option {
	return func(s *Server) { s.devMode = on }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a new API server over the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:   st,
		logger:  slog.Default(),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	mux.HandleFunc("GET /bugs", s.listBugs)
	mux.HandleFunc("POST /bugs", s.createBug)
	mux.HandleFunc("GET /bugs/{id}", s.getBug)
	mux.HandleFunc("PUT /bugs/{id}", s.updateBug)
	mux.HandleFunc("DELETE /bugs/{id}", s.deleteBug)

	return s.recoverer(s.requestLogger(corsMiddleware(mux)))
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

// recoverer converts panics into the generic internal-error envelope so no
// request ever escapes without a response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
				)
				s.writeInternalError(w, errors.New("handler panic"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// --- Envelope ---

type listEnvelope struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Data    []*models.Bug `json:"data"`
}

type bugEnvelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    *models.Bug `json:"data,omitempty"`
}

type errorEnvelope struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Errors  []validate.Violation `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeStoreError maps the error taxonomy onto the envelope: Violations
// become 400 with the full list, NotFound becomes 404, anything else is a
// generic 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	var v validate.Violations
	if errors.As(err, &v) {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{
			Message: "Validation failed",
			Errors:  v,
		})
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorEnvelope{Message: "Bug not found"})
		return
	}
	s.writeInternalError(w, err)
}

func (s *Server) writeInternalError(w http.ResponseWriter, err error) {
	s.logger.Error("internal error", slog.Any("error", err))
	msg := "Internal server error"
	if s.devMode {
		msg = err.Error()
	}
	writeJSON(w, http.StatusInternalServerError, errorEnvelope{Message: msg})
}

// --- Input schemas ---

// newBugInput is the closed create schema. Unknown keys (including id and
// timestamps) are rejected at the boundary before anything reaches the
// store.
type newBugInput struct {
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Severity          string   `json:"severity"`
	Status            string   `json:"status"`
	ReportedBy        string   `json:"reportedBy"`
	AssignedTo        string   `json:"assignedTo"`
	Tags              []string `json:"tags"`
	ReproductionSteps string   `json:"reproductionSteps"`
}

func decodeStrict(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// --- Handlers ---

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Seconds(),
	})
}

func (s *Server) listBugs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Status:   models.Status(q.Get("status")),
		Severity: models.Severity(q.Get("severity")),
	}
	if filter.Status == query.FilterAll {
		filter.Status = ""
	}

	bugs, err := s.store.ListBugs(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	bugs = query.SortBugs(bugs, query.ParseSort(q.Get("sort")))
	if bugs == nil {
		bugs = []*models.Bug{}
	}
	writeJSON(w, http.StatusOK, listEnvelope{
		Success: true,
		Count:   len(bugs),
		Data:    bugs,
	})
}

func (s *Server) getBug(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bug, err := s.store.GetBug(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bugEnvelope{Success: true, Data: bug})
}

func (s *Server) createBug(w http.ResponseWriter, r *http.Request) {
	var in newBugInput
	if err := decodeStrict(r.Body, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Message: "Invalid request body"})
		return
	}

	bug := &models.Bug{
		Title:             in.Title,
		Description:       in.Description,
		Severity:          models.Severity(in.Severity),
		Status:            models.Status(in.Status),
		ReportedBy:        in.ReportedBy,
		AssignedTo:        in.AssignedTo,
		Tags:              in.Tags,
		ReproductionSteps: in.ReproductionSteps,
	}

	if err := s.store.CreateBug(r.Context(), bug); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bugEnvelope{
		Success: true,
		Message: "Bug created successfully",
		Data:    bug,
	})
}

func (s *Server) updateBug(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch models.BugPatch
	if err := decodeStrict(r.Body, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorEnvelope{Message: "Invalid request body"})
		return
	}

	bug, err := s.store.UpdateBug(r.Context(), id, patch)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bugEnvelope{
		Success: true,
		Message: "Bug updated successfully",
		Data:    bug,
	})
}

func (s *Server) deleteBug(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteBug(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bugEnvelope{
		Success: true,
		Message: "Bug deleted successfully",
	})
}
