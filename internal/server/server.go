// Package server provides the HTTP server and routing for the paper-trading
// ledger.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/stonksbot/stonks/internal/config"
	"github.com/stonksbot/stonks/internal/database"
	"github.com/stonksbot/stonks/internal/events"
	"github.com/stonksbot/stonks/internal/modules/broker"
	brokerhandlers "github.com/stonksbot/stonks/internal/modules/broker/handlers"
	"github.com/stonksbot/stonks/internal/modules/market_hours"
	markethandlers "github.com/stonksbot/stonks/internal/modules/market_hours/handlers"
)

// Config holds server configuration
type Config struct {
	Log         zerolog.Logger
	Config      *config.Config
	StateDB     *database.DB
	CacheDB     *database.DB
	Broker      *broker.Service
	Quotes      broker.QuoteSource
	MarketHours *market_hours.Service
	EventBus    *events.Bus
	Port        int
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	stateDB        *database.DB
	cacheDB        *database.DB
	broker         *broker.Service
	quotes         broker.QuoteSource
	marketHours    *market_hours.Service
	eventBus       *events.Bus
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		cfg:         cfg.Config,
		stateDB:     cfg.StateDB,
		cacheDB:     cfg.CacheDB,
		broker:      cfg.Broker,
		quotes:      cfg.Quotes,
		marketHours: cfg.MarketHours,
		eventBus:    cfg.EventBus,
	}

	s.systemHandlers = NewSystemHandlers(cfg.Log, cfg.Config.DataDir, cfg.StateDB, cfg.CacheDB, cfg.Broker)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	brokerHandler := brokerhandlers.NewHandler(s.broker, s.quotes, s.eventBus, s.log)
	marketHandler := markethandlers.NewHandler(s.marketHours, s.log)
	eventsHandler := NewEventsStreamHandler(s.eventBus, s.log)

	s.router.Route("/api", func(r chi.Router) {
		// Live event stream (WebSocket). Kept outside the timeout group, the
		// connection stays open for as long as the client listens.
		r.Get("/events/ws", eventsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			brokerHandler.RegisterRoutes(r)
			marketHandler.RegisterRoutes(r)

			r.Route("/system", func(r chi.Router) {
				r.Get("/status", s.systemHandlers.HandleSystemStatus)
				r.Get("/databases", s.systemHandlers.HandleDatabaseStats)
			})
		})
	})
}

// handleHealth reports liveness plus database health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for name, db := range map[string]*database.DB{"state": s.stateDB, "cache": s.cacheDB} {
		if db == nil {
			continue
		}
		if err := db.HealthCheck(r.Context()); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Health check failed")
			http.Error(w, fmt.Sprintf("%s database unavailable", name), http.StatusServiceUnavailable)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.log.Error().Err(err).Msg("Failed to write health response")
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
