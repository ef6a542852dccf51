// Package web serves the ingestion and query HTTP API.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/emiliopalmerini/salespulse/internal/aggregation"
	"github.com/emiliopalmerini/salespulse/internal/household"
	"github.com/emiliopalmerini/salespulse/internal/pipeline"
	"github.com/emiliopalmerini/salespulse/internal/ports"
	"github.com/emiliopalmerini/salespulse/internal/reconcile"
)

// Services are the application services behind the API.
type Services struct {
	Store      ports.Store
	Processor  *pipeline.Processor
	Engine     *aggregation.Engine
	Households *household.Service
	Reconciler *reconcile.Reconciler
}

type Server struct {
	svc     Services
	router  *chi.Mux
	port    int
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewServer builds the router. HTTP metrics are registered on reg, which
// /metrics also serves. A nil reg uses a fresh registry.
func NewServer(svc Services, port int, logger *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics, err := NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register http metrics: %w", err)
	}
	s := &Server{
		svc:     svc,
		router:  chi.NewRouter(),
		port:    port,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(RequestID)
	s.router.Use(RequestLogger(s.logger))
	s.router.Use(s.metrics.Middleware)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router.Route("/v1", func(r chi.Router) {
		r.Post("/submissions", s.handleSubmit)
		r.Post("/submissions/{id}/reprocess", s.handleReprocess)
		r.Get("/submissions/{id}/audit", s.handleAudit)

		r.Post("/quotes", s.handleQuote)
		r.Post("/sales", s.handleSale)
		r.Post("/retention-signals", s.handleSignal)

		r.Get("/households/{id}", s.handleHousehold)
		r.Post("/households/{id}/status", s.handleSetStatus)

		r.Get("/members/{id}/metrics", s.handleMemberMetrics)
		r.Post("/members/{id}/recompute", s.handleRecompute)
		r.Post("/members/{id}/metrics/{date}/quick-quote", s.handleQuickQuote)

		r.Post("/reconcile/households", s.handleReconcileHouseholds)
		r.Post("/reconcile/ghosts", s.handleReconcileGhosts)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns only after in-flight requests have completed or the shutdown
// timeout has passed.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting http server", slog.Int("port", s.port))

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		// In-flight requests finish before the caller tears down the bus.
		<-shutdownDone
		return nil
	}
	return err
}
