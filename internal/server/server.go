package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"itinerary-router/internal/config"
	"itinerary-router/internal/distance"
	"itinerary-router/internal/fanout"
	"itinerary-router/internal/geocoding"
	"itinerary-router/internal/handlers"
	"itinerary-router/internal/logging"
	"itinerary-router/internal/models"
	"itinerary-router/internal/places"
	"itinerary-router/internal/preferences"
	"itinerary-router/internal/routing"
	"itinerary-router/internal/store"
	"itinerary-router/internal/suggest"
)

// Nominatim's usage policy allows one request per second
const nominatimRatePerSec = 1

// Server wraps the HTTP server and all dependencies
type Server struct {
	httpServer *http.Server
	handler    *handlers.Handler
	db         *store.Store
	listener   net.Listener
	addr       string
	logger     *slog.Logger
}

// New creates and initializes a new server (does not start it)
func New(cfg *config.Config, base *slog.Logger) (*Server, error) {
	logger := logging.Component(base, "server")

	db, err := store.New(cfg.Database.Driver, cfg.Database.DSN, base)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data store: %w", err)
	}

	handler := newHandler(cfg, db, base)
	if cfg.Server.JWTSecret == "" {
		logger.Warn("no JWT secret configured, all requests run as " + AnonymousUser)
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      NewRouter(handler, cfg.Server.JWTSecret, base),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.Limits),
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		handler:    handler,
		db:         db,
		addr:       cfg.Server.Addr,
		logger:     logger,
	}, nil
}

// writeTimeout leaves headroom past the longest request deadline
func writeTimeout(limits config.LimitsConfig) time.Duration {
	return max(limits.PlanTimeout, limits.OptimizeTimeout) + 15*time.Second
}

// newHandler wires the collaborators and pipelines behind the HTTP API
func newHandler(cfg *config.Config, db *store.Store, logger *slog.Logger) *handlers.Handler {
	httpClient := &http.Client{Timeout: cfg.Limits.CallTimeout}
	mode := models.TravelMode(cfg.Services.TravelMode)
	concurrency := cfg.Limits.MaxConcurrency

	policy := func(service string, limiter *rate.Limiter) fanout.Policy {
		return fanout.Policy{
			Service: service,
			Timeout: cfg.Limits.CallTimeout,
			Retries: cfg.Limits.Retries,
			Backoff: cfg.Limits.RetryBackoff,
			Limiter: limiter,
		}
	}
	// Cost and geometry lookups hit the same OSRM instance
	osrmLimiter := fanout.NewLimiter(cfg.Limits.RateLimitPerSec)
	placesLimiter := fanout.NewLimiter(cfg.Limits.RateLimitPerSec)

	routes := distance.NewOSRMService(cfg.Services.OSRMURL, httpClient, logger)
	matrices := distance.NewMatrixProvider(routes, db.DistanceCache(), distance.MatrixOptions{
		Policy:      policy("osrm", osrmLimiter),
		Concurrency: concurrency,
		Mode:        mode,
	}, logger)
	optimizer := routing.NewService(db.Locations(), matrices,
		routing.NewSolver(routing.DefaultSolverOptions(), logger), cfg.Limits.OptimizeTimeout, logger)

	var lookup places.LookupService = places.NewOverpassLookup(cfg.Services.OverpassURL, cfg.Limits.CallTimeout, logger)
	if cfg.Suggest.PlaceCacheTTL > 0 {
		lookup = places.NewCachedLookup(lookup, cfg.Suggest.PlaceCacheTTL)
	}

	translator := suggest.NewTranslator(nil)
	for _, pt := range translator.UnsupportedTypes(places.SupportedPlaceType) {
		logger.Warn("category table maps to a place type with no OSM tag", "place_type", pt)
	}
	var extractor preferences.Extractor = preferences.NewKeywordExtractor(translator.Categories())
	if cfg.Services.PreferencesURL != "" {
		extractor = &preferences.FallbackExtractor{
			Primary:   preferences.NewHTTPExtractor(cfg.Services.PreferencesURL, httpClient, policy("preferences", nil), logger),
			Secondary: extractor,
			Logger:    logging.Component(logger, "preferences"),
		}
	}

	planner := suggest.NewPlanner(
		suggest.NewSampler(routes, suggest.SamplerOptions{
			Policy:      policy("directions", osrmLimiter),
			Concurrency: concurrency,
			Mode:        mode,
		}, logger),
		suggest.NewAggregator(lookup, suggest.AggregatorOptions{
			Policy:      policy("places", placesLimiter),
			Concurrency: concurrency,
		}, logger),
		translator,
		extractor,
		db.Locations(),
		suggest.PlannerOptions{
			SamplesPerSegment: cfg.Suggest.SamplesPerSegment,
			Radius:            cfg.Suggest.RadiusMeters,
			Limit:             cfg.Suggest.Limit,
			MinScore:          cfg.Suggest.MinScore,
			Timeout:           cfg.Limits.PlanTimeout,
		},
		logger,
	)

	geocoder := geocoding.NewNominatimGeocoder(cfg.Services.NominatimURL, httpClient,
		fanout.NewLimiter(nominatimRatePerSec), logger)

	return &handlers.Handler{
		DB:        db,
		Geocoder:  geocoder,
		Optimizer: optimizer,
		Planner:   planner,
		Logger:    logging.Component(logger, "handlers"),
	}
}

// NewRouter configures all HTTP routes
func NewRouter(h *handlers.Handler, jwtSecret string, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logging.Component(logger, "http")), cors())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.GET("/health", h.HandleHealthCheck)
	api.GET("/address-search", h.HandleAddressSearch)
	api.POST("/itineraries/optimize", h.HandleOptimize)

	auth := api.Group("", authenticate(jwtSecret))
	auth.POST("/plan", h.HandlePlan)
	auth.GET("/places/:id", h.HandleGetPlace)

	itineraries := auth.Group("/itineraries")
	itineraries.GET("", h.HandleListItineraries)
	itineraries.POST("", h.HandleCreateItinerary)
	itineraries.GET("/:id", h.HandleGetItinerary)
	itineraries.PUT("/:id", h.HandleUpdateItinerary)
	itineraries.DELETE("/:id", h.HandleDeleteItinerary)
	itineraries.POST("/:id/optimize-route", h.HandleOptimizeItinerary)

	return r
}

// Start starts the server and returns the actual address (useful for random port)
func (s *Server) Start() (string, error) {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return "", fmt.Errorf("failed to listen: %w", err)
	}

	s.listener = listener
	actualAddr := listener.Addr().String()
	s.logger.Info("starting server", "addr", actualAddr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server error", "err", err)
		}
	}()

	return actualAddr, nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return s.db.Close()
}
