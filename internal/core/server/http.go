// Package server provides HTTP server lifecycle management.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgerline/autoflow/internal/core/api"
	"github.com/ledgerline/autoflow/internal/core/auth"
	"github.com/ledgerline/autoflow/internal/core/config"
	"github.com/ledgerline/autoflow/internal/store"
)

// HTTPServer manages HTTP server lifecycle.
type HTTPServer struct {
	server *http.Server
	config *config.Config
}

// NewHTTPServer assembles the router and creates the server. Health and
// metrics are unauthenticated; everything under /api/v1 requires a valid
// API key, and tenancy flows exclusively from the key.
func NewHTTPServer(cfg *config.Config, service *api.Service, authenticator *auth.Authenticator, st *store.Store) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := st.DB().PingContext(req.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticator.Middleware)

		r.Post("/events", service.IngestEvents)
		r.Post("/run", service.Run)
		r.Get("/executions", service.ListExecutions)

		r.Route("/rules", func(r chi.Router) {
			r.Post("/", service.CreateRule)
			r.Get("/", service.ListRules)
			r.Get("/{id}", service.GetRule)
			r.Put("/{id}", service.UpdateRule)
			r.Post("/{id}/enable", service.EnableRule)
			r.Post("/{id}/disable", service.DisableRule)
		})

		r.Route("/pending", func(r chi.Router) {
			r.Get("/", service.ListPending)
			r.Post("/{id}/confirm", service.ConfirmPending)
			r.Post("/{id}/reject", service.RejectPending)
		})
	})

	return &HTTPServer{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  cfg.RequestTimeout,
			WriteTimeout: cfg.RequestTimeout,
		},
		config: cfg,
	}, nil
}

// Start serves HTTP requests. Blocks until Shutdown is called.
func (s *HTTPServer) Start(ctx context.Context) error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server with a 30-second timeout.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
