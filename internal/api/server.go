// Package api exposes run status over HTTP. The surface is read-only:
// health, the overall run, and per-job drill-down.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vk/pipegrid/internal/ctxlog"
	"github.com/vk/pipegrid/internal/scheduler"
)

// StatusSource yields the current run report. It returns nil while no run
// is active.
type StatusSource interface {
	Snapshot() *scheduler.Report
}

// Server serves the status API.
type Server struct {
	source StatusSource
	http   *http.Server
}

// NewServer builds a status server bound to addr.
func NewServer(addr string, source StatusSource) *Server {
	s := &Server{source: source}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/run", s.handleRun)
	r.Get("/jobs", s.handleJobs)
	r.Get("/jobs/{job}", s.handleJob)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving in the background. Errors other than a clean close
// are logged; a status server failure never fails the run.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	logger.Info("🌐 Status API listening.", "addr", ln.Addr().String())
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status API stopped unexpectedly.", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server, waiting briefly for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	report := s.source.Snapshot()
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active run"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	report := s.source.Snapshot()
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active run"})
		return
	}
	writeJSON(w, http.StatusOK, report.Jobs)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	report := s.source.Snapshot()
	if report == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no active run"})
		return
	}
	jobID := chi.URLParam(r, "job")
	for _, job := range report.Jobs {
		if job.ID == jobID {
			writeJSON(w, http.StatusOK, job)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job " + jobID})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
