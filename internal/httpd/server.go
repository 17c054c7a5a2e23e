// Package httpd provides the core's own minimal HTTP surface: /status
// (registry introspection) and /metrics (prometheus). Every other route a
// full Kismet server would expose (device listings, alerts, dumpfile
// downloads, the web UI) belongs to the HTTP route-handlers collaborator,
// explicitly out of scope here.
package httpd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kismetwireless/kismet-core/internal/middleware"
	"github.com/kismetwireless/kismet-core/internal/registry"
)

// chiMiddleware adapts the core's http.HandlerFunc-shaped middleware to
// chi's func(http.Handler) http.Handler, the same small shim the teacher
// uses to reuse its own middleware package under chi's router.
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Server wraps net/http.Server with a chi.Router exposing /status and
// /metrics. It implements registry.LifetimeGlobal so Teardown can shut it
// down, but it is called explicitly at TEARDOWN step 2 rather than waiting
// for the general lifetime pass at step 9, since the event loop design
// stops serving HTTP before the final drain.
type Server struct {
	httpServer      *http.Server
	registry        *registry.Registry
	shutdownTimeout time.Duration
}

// statusResponse is the /status payload.
type statusResponse struct {
	Spindown         bool     `json:"spindown"`
	Fatal            bool     `json:"fatal"`
	FatalReason      string   `json:"fatal_reason,omitempty"`
	PollableCount    int      `json:"pollable_count"`
	CriticalFailures []string `json:"critical_failures,omitempty"`
}

// New builds a Server bound to addr and r. shutdownTimeout bounds how long
// Close waits for in-flight requests to finish; a value <= 0 falls back to
// 10 seconds.
func New(addr string, r *registry.Registry, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	s := &Server{registry: r, shutdownTimeout: shutdownTimeout}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	router.Use(chiMiddleware(middleware.RequestID))
	router.Use(chiMiddleware(middleware.PrometheusMetrics))

	router.Get("/status", s.handleStatus)
	router.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	fatal, reason := s.registry.Fatal()
	failures := s.registry.CriticalFailures()
	texts := make([]string, len(failures))
	for i, f := range failures {
		texts[i] = f.Text
	}

	resp := statusResponse{
		Spindown:         s.registry.Spindown(),
		Fatal:            fatal,
		FatalReason:      reason,
		PollableCount:    len(s.registry.Pollables()),
		CriticalFailures: texts,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, fmt.Sprintf("encode status: %v", err), http.StatusInternalServerError)
	}
}

// ListenAndServe starts serving. It blocks until the server stops, and
// returns nil (rather than http.ErrServerClosed) on a graceful Close.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close implements registry.LifetimeGlobal: it gracefully shuts the server
// down, waiting up to shutdownTimeout for in-flight requests to finish.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
