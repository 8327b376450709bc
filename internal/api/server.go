// Package api exposes the generation engine over HTTP: enqueue jobs, poll
// task status, read snapshots, export workbooks.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"slotforge/internal/jobs"
	"slotforge/internal/report"
)

// HTTPServer serves the engine's JSON API.
type HTTPServer struct {
	orch     *jobs.Orchestrator
	exporter *report.Exporter
	apiKey   string
	addr     string
	logger   *zerolog.Logger

	server *http.Server
}

// NewHTTPServer creates an API server. An empty apiKey disables the key
// check.
func NewHTTPServer(port int, apiKey string, orch *jobs.Orchestrator, exporter *report.Exporter, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		orch:     orch,
		exporter: exporter,
		apiKey:   apiKey,
		addr:     fmt.Sprintf(":%d", port),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/availability/generate", s.requireKey(s.handleGenerate))
	mux.HandleFunc("/api/tasks/", s.requireKey(s.handleTaskStatus))
	mux.HandleFunc("/api/availability/export", s.requireKey(s.handleExport))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("api server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// requireKey guards a handler with the X-API-Key header.
func (s *HTTPServer) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
