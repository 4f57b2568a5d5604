package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/propledger/internal/api/handlers"
	"github.com/eshaffer321/propledger/internal/api/middleware"
	"github.com/eshaffer321/propledger/internal/application/matching"
	"github.com/eshaffer321/propledger/internal/application/reconciliation"
	"github.com/eshaffer321/propledger/internal/application/reporting"
	"github.com/eshaffer321/propledger/internal/infrastructure/storage"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	RateLimitRPS   float64 // 0 disables rate limiting
	RateLimitBurst int
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8085,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		RateLimitRPS:   50,
		RateLimitBurst: 100,
	}
}

// Services are the application services the API exposes.
type Services struct {
	Repo           storage.Repository
	Matching       *matching.Service
	Reconciliation *reconciliation.Service
	Reporting      *reporting.Service
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	services   Services
}

// NewServer creates a new API server.
func NewServer(cfg Config, services Services, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		logger:   logger,
		services: services,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(middleware.RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst, s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	base := handlers.NewBase(s.logger)

	// Health check (no /api prefix - for load balancers)
	s.router.Get("/health", handlers.NewHealthHandler(base).ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Organization)

		rulesHandler := handlers.NewRulesHandler(base, s.services.Repo)
		r.Get("/rules", rulesHandler.List)
		r.Post("/rules", rulesHandler.Create)
		r.Get("/rules/{id}", rulesHandler.Get)

		txHandler := handlers.NewTransactionsHandler(base, s.services.Repo, s.services.Matching)
		r.Get("/transactions", txHandler.List)
		r.Get("/transactions/{id}", txHandler.Get)
		r.Post("/transactions/{id}/match", txHandler.Match)
		r.Post("/bank-accounts/{id}/match", txHandler.MatchUnmatched)
		r.Post("/repair", txHandler.Repair)

		reconHandler := handlers.NewReconciliationsHandler(base, s.services.Reconciliation)
		r.Post("/reconciliations", reconHandler.Start)
		r.Get("/reconciliations", reconHandler.List)
		r.Get("/reconciliations/trust-operating", reconHandler.TrustOperating)
		r.Get("/reconciliations/{id}", reconHandler.Get)
		r.Post("/reconciliations/{id}/complete", reconHandler.Complete)
		r.Post("/bank-accounts/{id}/three-way", reconHandler.ThreeWay)
		r.Post("/bank-accounts/{id}/void-check", reconHandler.VoidCheck)
		r.Post("/bank-accounts/{id}/nsf", reconHandler.NSF)

		reportsHandler := handlers.NewReportsHandler(base, s.services.Reporting)
		r.Route("/reports", func(r chi.Router) {
			r.Get("/trial-balance", reportsHandler.TrialBalance)
			r.Get("/balance-sheet", reportsHandler.BalanceSheet)
			r.Get("/income-statement", reportsHandler.IncomeStatement)
			r.Get("/properties/{id}/pnl", reportsHandler.PropertyPnL)
			r.Get("/owners/{id}/statement", reportsHandler.OwnerStatement)
			r.Get("/accounts/{id}/activity", reportsHandler.AccountActivity)
		})

		eventsHandler := handlers.NewEventsHandler(base, s.services.Repo)
		r.Get("/events", eventsHandler.List)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
