package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/fraud"
	"github.com/opensource-finance/harrier/internal/queue"
	"github.com/opensource-finance/harrier/internal/review"
	"github.com/opensource-finance/harrier/internal/workflow"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, orch *workflow.Orchestrator, agent *review.Agent, reviewQueue *queue.ReviewQueue, checks *fraud.CustomChecks, version string) *Server {
	handler := NewHandler(repo, cache, orch, agent, reviewQueue, checks, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Claim intake and retrieval
		r.Post("/claims", handler.SubmitClaim)
		r.Get("/claims/{id}", handler.GetClaim)
		r.Get("/claims", handler.ListClaims)

		// Human review
		r.Get("/review/pending", handler.ListPendingReviews)
		r.Get("/review/next", handler.NextPendingReview)
		r.Get("/review/claims/{claimID}", handler.GetReviewItem)
		r.Post("/review/claims/{claimID}/decision", handler.SubmitDecision)
		r.Get("/review/stats", handler.ReviewStats)

		// Custom fraud check management
		r.Get("/fraud-checks", handler.ListFraudChecks)
		r.Post("/fraud-checks", handler.CreateFraudCheck)
		r.Post("/fraud-checks/reload", handler.ReloadFraudChecks)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
