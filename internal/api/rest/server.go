package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/service"
	"github.com/fortuna/janus/pkg/logger"
	"github.com/fortuna/janus/pkg/metrics"
)

// Deps bundles what the REST server serves. Nil services leave their routes unregistered.
type Deps struct {
	Health    HealthChecker
	Games     *service.GameService
	Analytics *service.AnalyticsService
	Miscounts *service.MiscountService
	Players   *service.PlayerService
	Backfill  BackfillService
	Scheduler StatusProvider
	Metrics   *metrics.Manager
	Log       logrus.FieldLogger
}

// Server represents the REST API server
type Server struct {
	port    string
	server  *http.Server
	handler *Handler
	root    http.Handler
}

// NewServer creates a new REST API server
func NewServer(port string, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = logger.GetLogger()
	}
	log = logger.WithComponent(log, "rest")

	handler := &Handler{
		health:           deps.Health,
		gameService:      deps.Games,
		analyticsService: deps.Analytics,
		miscountService:  deps.Miscounts,
		playerService:    deps.Players,
		scheduler:        deps.Scheduler,
	}

	router := mux.NewRouter()

	// Apply middleware
	router.Use(RecoveryMiddleware(log))
	router.Use(LoggingMiddleware(log))
	router.Use(MetricsMiddleware(deps.Metrics))

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Games
	if deps.Games != nil {
		api.HandleFunc("/games", handler.GetSeasonGames).Methods("GET")
		api.HandleFunc("/games/{gameID}/timeline", handler.GetTimeline).Methods("GET")
		api.HandleFunc("/games/{gameID}/matchups", handler.GetMatchups).Methods("GET")
	}

	// Lineup analytics
	if deps.Analytics != nil {
		api.HandleFunc("/games/{gameID}/features", handler.GetLineupFeature).Methods("GET")
		api.HandleFunc("/lineups", handler.GetTopLineups).Methods("GET")
	}

	if deps.Miscounts != nil {
		api.HandleFunc("/miscounts", handler.GetMiscounts).Methods("GET")
	}
	if deps.Players != nil {
		api.HandleFunc("/players/{playerID}", handler.GetPlayer).Methods("GET")
	}
	api.HandleFunc("/scheduler/status", handler.GetSchedulerStatus).Methods("GET")

	// Backfill operations
	if deps.Backfill != nil {
		backfillHandler := NewBackfillHandler(deps.Backfill)
		api.HandleFunc("/backfill", backfillHandler.HandleBackfillRequest).Methods("POST")
		api.HandleFunc("/backfill/status", backfillHandler.HandleBackfillStatus).Methods("GET")
	}

	// CORS wraps the router so preflight requests never hit method matching
	root := CORSMiddleware(router)

	return &Server{
		port:    port,
		handler: handler,
		root:    root,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           root,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.root
}

// Start starts the REST API server
func (s *Server) Start() error {
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("rest server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
