// Package api provides a read-only HTTP API over stored runs and sweeps.
// Every endpoint is a GET; nothing here starts or alters an experiment.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/evosim/internal/persistence"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Store is the subset of the result store the API reads from.
type Store interface {
	ListRuns(ctx context.Context, limit int) ([]persistence.RunSummary, error)
	LoadRun(ctx context.Context, id string) (*persistence.RunRecord, error)
	ListSweeps(ctx context.Context, limit int) ([]persistence.SweepSummary, error)
	LoadSweep(ctx context.Context, id string) (*persistence.SweepRecord, error)
}

// Server serves stored results over HTTP.
type Server struct {
	Store   Store
	Port    int
	Version string
	Limiter *RateLimiter // Nil disables rate limiting

	started time.Time
}

// Handler builds the routed handler with CORS and, if configured, rate limiting.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now().UTC()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRunDetail)
	mux.HandleFunc("GET /api/v1/sweeps", s.handleSweeps)
	mux.HandleFunc("GET /api/v1/sweeps/{id}", s.handleSweepDetail)

	var h http.Handler = mux
	if s.Limiter != nil {
		h = RateLimitMiddleware(s.Limiter, h)
	}
	return corsMiddleware(h)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", srv.Addr, "rate_limit", s.Limiter != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		slog.Info("HTTP API shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// CORS_ORIGINS extends the localhost defaults with a comma-separated list.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "evosim",
		"version": s.Version,
		"started": s.started,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	runs, err := s.Store.ListRuns(r.Context(), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if runs == nil {
		runs = []persistence.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.LoadRun(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSweeps(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sweeps, err := s.Store.ListSweeps(r.Context(), limit)
	if err != nil {
		s.storeError(w, err)
		return
	}
	if sweeps == nil {
		sweeps = []persistence.SweepSummary{}
	}
	writeJSON(w, http.StatusOK, sweeps)
}

func (s *Server) handleSweepDetail(w http.ResponseWriter, r *http.Request) {
	rec, err := s.Store.LoadSweep(r.Context(), r.PathValue("id"))
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	slog.Error("store query failed", "error", err)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

// parseLimit reads ?limit=, defaulting to 50 and capping at 500.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	return min(n, maxLimit), nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
