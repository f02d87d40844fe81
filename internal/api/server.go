package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gobeyondidentity/podnotes/internal/version"
	"github.com/gobeyondidentity/podnotes/pkg/notes"
	"github.com/gobeyondidentity/podnotes/pkg/session"
)

// maxBodyBytes bounds a note request body.
const maxBodyBytes = 1 << 20

// NoteService is the subset of *session.Session the server needs.
type NoteService interface {
	Create(ctx context.Context, in session.NoteInput) (*notes.Note, error)
	Update(ctx context.Context, id string, in session.NoteInput) (*notes.Note, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) (*notes.ListResult, error)
}

// Server is the notes HTTP API.
type Server struct {
	notes   NoteService
	origins []string
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins enables CORS for the given browser origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a server backed by svc.
func NewServer(svc NoteService, opts ...Option) *Server {
	s := &Server{notes: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the routes mounted on a chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.cors)

	r.Get("/health", s.handleHealth)
	r.Route("/notes", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
	})
	return r
}

// Response bodies.
type (
	noteResponse struct {
		Message string      `json:"message"`
		Note    *notes.Note `json:"note"`
	}
	listResponse struct {
		Total  int          `json:"total"`
		Notes  []notes.Note `json:"notes"`
		Failed []string     `json:"failed"`
	}
	deleteResponse struct {
		Message string `json:"message"`
		ID      string `json:"id"`
	}
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in session.NoteInput
	if !s.decode(w, r, &in) {
		return
	}
	note, err := s.notes.Create(r.Context(), in)
	if err != nil {
		s.mapError(w, r, err, "Failed to create note")
		return
	}
	writeJSON(w, http.StatusCreated, noteResponse{Message: "Note created successfully", Note: note})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	result, err := s.notes.List(r.Context())
	if err != nil {
		s.mapError(w, r, err, "Failed to list notes")
		return
	}
	resp := listResponse{Total: len(result.Notes), Notes: result.Notes, Failed: result.Failed}
	if resp.Notes == nil {
		resp.Notes = []notes.Note{}
	}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var in session.NoteInput
	if !s.decode(w, r, &in) {
		return
	}
	note, err := s.notes.Update(r.Context(), id, in)
	if err != nil {
		s.mapError(w, r, err, "Failed to update note")
		return
	}
	writeJSON(w, http.StatusOK, noteResponse{Message: "Note updated successfully", Note: note})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.notes.Delete(r.Context(), id); err != nil {
		s.mapError(w, r, err, "Failed to delete note")
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Message: "Note deleted successfully", ID: id})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// logRequests logs method, path, status and latency of every request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// cors answers preflight requests and tags responses for allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !slices.Contains(s.origins, origin) {
			next.ServeHTTP(w, r)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var _ NoteService = (*session.Session)(nil)
