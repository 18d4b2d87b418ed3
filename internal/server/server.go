// Package server exposes a running scrape over HTTP: health, Prometheus
// metrics and the run status.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maltedev/sku-scraper/internal/config"
)

type Server struct {
	cfg     config.ServerConfig
	tracker *Tracker
	http    *http.Server
	logger  *slog.Logger
}

func New(cfg config.ServerConfig, tracker *Tracker, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		tracker: tracker,
		logger:  logger.With("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	}
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/run", s.run)
	})

	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves in the background until Shutdown is called.
func (s *Server) Start() {
	go func() {
		s.logger.Info("status server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown matches the lifecycle teardown signature.
func (s *Server) Shutdown() error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := s.tracker.Snapshot()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"run_id": status.RunID,
		"state":  status.State,
	})
}

func (s *Server) run(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.tracker.Snapshot())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
