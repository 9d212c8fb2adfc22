/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the HTTP surface: the websocket endpoint clients
// speak JSON-RPC over, the session exchange and operational endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/friendsincode/turnstyle/internal/channel"
	"github.com/friendsincode/turnstyle/internal/config"
	"github.com/friendsincode/turnstyle/internal/store"
	"github.com/friendsincode/turnstyle/internal/telemetry"
)

// Server bundles the HTTP listener with the room registry.
type Server struct {
	cfg    *config.Config
	logger zerolog.Logger
	router chi.Router

	httpServer    *http.Server
	metricsServer *http.Server

	store    *store.Service
	registry *channel.Registry
}

// New constructs the server and wires routes.
func New(cfg *config.Config, registry *channel.Registry, svc *store.Service, logger zerolog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)

	s := &Server{
		cfg:      cfg,
		logger:   logger.With().Str("component", "server").Logger(),
		router:   router,
		store:    svc,
		registry: registry,
	}
	s.configureRoutes()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.router.Post("/v1/session", s.handleSession)
	s.router.Get("/v1/channels/{id}/ws", s.handleWebSocket)
	s.router.Get("/v1/channels/{id}/history", s.handleHistory)
}

// Start serves HTTP and, on a separate listener, Prometheus metrics.
func (s *Server) Start() error {
	if s.cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		s.metricsServer = &http.Server{
			Addr:              s.cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			s.logger.Info().Str("addr", s.cfg.MetricsBind).Msg("metrics listener started")
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http listener started")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains the listeners and stops every room.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.registry.CloseAll()
	return firstErr
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }
