// Package web exposes the simulation pipeline over HTTP: a synchronous
// submit endpoint, an optional queued submit endpoint, the duplex websocket
// channel, and the workspace refresh trigger.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/datavista/launchsim/internal/domain"
	"github.com/datavista/launchsim/internal/session"
	"github.com/datavista/launchsim/internal/workspace"
)

// Server bundles the handler dependencies. Queue may be nil, in which case
// the queued submit endpoint reports the feature unavailable.
type Server struct {
	Pipeline  domain.Pipeline
	Workspace *workspace.Workspace
	Gate      *session.Gate
	Queue     domain.JobQueue

	hub wsHub
}

// Routes returns the full handler tree. Submit endpoints go through the
// rate limiter; everything is wrapped in the CORS middleware.
func (s *Server) Routes(limiter *RateLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/submit", limiter.Middleware(s.handleSubmit))
	mux.HandleFunc("POST /api/jobs", limiter.Middleware(s.handleEnqueue))
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/ws", s.handleWS)

	return enableCORS(mux)
}

// handleSubmit is the synchronous fallback path: query parameters name the
// user and output files, the raw body is the function source, and the
// response body is the aggregated log text regardless of outcome.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	job := domain.Job{
		User:    q.Get("user"),
		OutName: q.Get("out"),
		OutPlot: q.Get("outplot"),
	}

	source, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	job.Source = string(source)

	slog.Info("Received submission", "user", job.User, "out", job.OutName, "outplot", job.OutPlot)

	// Once launched, the external processes run to completion; a client
	// hanging up must not kill a validator or generator mid-run and leave
	// a half-written artifact behind.
	result := s.Pipeline.Run(context.WithoutCancel(r.Context()), job)

	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, result.Log)
}

// handleEnqueue accepts the same submission shape as handleSubmit but hands
// it to the queue instead of running it inline. The reply carries the job
// id; the result comes back over the duplex channel when a session is open.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		http.Error(w, "job queue is not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	job := domain.Job{
		ID:      uuid.New().String(),
		User:    q.Get("user"),
		OutName: q.Get("out"),
		OutPlot: q.Get("outplot"),
	}

	source, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	job.Source = string(source)

	if !workspace.ValidSegment(job.User) || !workspace.ValidSegment(job.OutName) || !workspace.ValidSegment(job.OutPlot) {
		http.Error(w, "invalid user or file name", http.StatusBadRequest)
		return
	}

	slog.Info("Enqueueing submission", "jobID", job.ID, "user", job.User)
	if err := s.Queue.Publish(r.Context(), job); err != nil {
		slog.Error("Failed to publish job", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": job.ID,
		"status": "queued",
	})
}

// handleRefresh wipes every per-user directory, mirroring the dashboard's
// refresh action.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	slog.Info("Workspace refresh requested", "remoteAddr", r.RemoteAddr)
	if err := s.Workspace.CleanAll(); err != nil {
		http.Error(w, "cleanup failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// enableCORS adds headers to allow requests from the dashboard frontend.
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
