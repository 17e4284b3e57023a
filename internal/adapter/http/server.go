package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/elteam/everyload/internal/domain"
	"github.com/elteam/everyload/internal/download"
	"github.com/elteam/everyload/internal/portals"
	"github.com/elteam/everyload/internal/store"
)

// Server is the HTTP adapter for job submission and inspection.
type Server struct {
	svc     *download.Service
	portals *portals.Manager
	mux     *http.ServeMux
	server  *http.Server
	log     *logrus.Logger
}

// NewServer creates a new HTTP server.
func NewServer(svc *download.Service, pm *portals.Manager, addr string, log *logrus.Logger) *Server {
	s := &Server{
		svc:     svc,
		portals: pm,
		mux:     http.NewServeMux(),
		log:     log,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /jobs", s.handleSubmit)
	s.mux.HandleFunc("GET /jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /jobs/{id}/stop", s.handleStopJob)
	s.mux.HandleFunc("DELETE /jobs/{id}", s.handleRemoveJob)
	s.mux.HandleFunc("DELETE /jobs", s.handleClearJobs)
	s.mux.HandleFunc("GET /portals", s.handleListPortals)
	s.mux.HandleFunc("POST /portals", s.handleAddPortal)
	s.mux.HandleFunc("DELETE /portals/{id}", s.handleRemovePortal)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// submitRequest is the request body for POST /jobs.
type submitRequest struct {
	URL string `json:"url"`
}

// jobResponse is the JSON shape of a job.
type jobResponse struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Title     string   `json:"title,omitempty"`
	Status    string   `json:"status"`
	Info      string   `json:"info,omitempty"`
	Files     []string `json:"files,omitempty"`
	LocalURI  string   `json:"local_uri,omitempty"`
	Triggered bool     `json:"triggered"`
	CreatedAt string   `json:"created_at"`
}

// portalRequest is the request body for POST /portals.
type portalRequest struct {
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
	Example string   `json:"example"`
}

// portalResponse is the JSON shape of a portal.
type portalResponse struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
	Example string   `json:"example,omitempty"`
	AddedAt string   `json:"added_at"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	job, err := s.svc.Submit(req.URL)
	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		s.writeError(w, http.StatusBadRequest, "invalid URL")
		return
	case errors.Is(err, domain.ErrJobExists):
		s.writeError(w, http.StatusConflict, "active job already exists for URL")
		return
	case err != nil:
		s.log.WithError(err).Error("submit failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusCreated, jobToResponse(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FilterQuery{
		Query:      q.Get("q"),
		Extensions: splitParam(q.Get("ext")),
		Domains:    splitParam(q.Get("domain")),
	}

	var jobs []domain.Job
	if filter.Query == "" && len(filter.Extensions) == 0 && len(filter.Domains) == 0 {
		jobs = s.svc.Jobs()
	} else {
		jobs = s.svc.Filter(filter)
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, jobToResponse(job))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Job(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	err := s.svc.Stop(r.PathValue("id"))
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		s.writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrNotActive):
		s.writeError(w, http.StatusConflict, "job is not active")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Remove(r.PathValue("id")); err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearJobs(w http.ResponseWriter, r *http.Request) {
	s.svc.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPortals(w http.ResponseWriter, r *http.Request) {
	var list []portals.Portal
	if q := r.URL.Query().Get("q"); q != "" {
		list = s.portals.Search(q)
	} else {
		list = s.portals.All()
	}
	out := make([]portalResponse, 0, len(list))
	for _, p := range list {
		out = append(out, portalToResponse(p))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddPortal(w http.ResponseWriter, r *http.Request) {
	var req portalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Domains) == 0 {
		s.writeError(w, http.StatusBadRequest, "domains are required")
		return
	}
	portal := s.portals.Add(req.Name, req.Domains, req.Example)
	s.writeJSON(w, http.StatusCreated, portalToResponse(portal))
}

func (s *Server) handleRemovePortal(w http.ResponseWriter, r *http.Request) {
	if !s.portals.Remove(r.PathValue("id")) {
		s.writeError(w, http.StatusNotFound, "portal not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func jobToResponse(job domain.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		URL:       job.URL,
		Title:     job.Title,
		Status:    job.Status.String(),
		Info:      job.Info,
		Files:     job.Files,
		LocalURI:  job.LocalURI,
		Triggered: job.Triggered,
		CreatedAt: job.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func portalToResponse(p portals.Portal) portalResponse {
	return portalResponse{
		ID:      p.ID,
		Name:    p.Name,
		Domains: p.Domains,
		Example: p.Example,
		AddedAt: p.AddedAt.UTC().Format(time.RFC3339),
	}
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
