// Package api provides the HTTP API for DayTrip.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/api/handler"
	"github.com/daytrip/daytrip/internal/api/middleware"
	"github.com/daytrip/daytrip/internal/auth"
	"github.com/daytrip/daytrip/internal/catalog"
	"github.com/daytrip/daytrip/internal/featureflags"
	"github.com/daytrip/daytrip/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// JWTService authenticates clients. When nil, every route is open;
	// only use that for local development.
	JWTService *auth.JWTService

	Planner            handler.TripPlanner
	PlanTimeout        time.Duration
	CatalogService     *catalog.Service
	FeatureFlagService *featureflags.Service

	// Ops status sources.
	ReadinessChecks []handler.DependencyCheck
	Providers       *resilience.Registry
	RouteCache      handler.RouteCache
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "daytrip-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement behind a load balancer
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // JSON request bodies only

	var catalogResolver handler.PlaceResolver
	if cfg.CatalogService != nil {
		catalogResolver = cfg.CatalogService
	}

	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:      cfg.Version,
		BuildTime:    cfg.BuildTime,
		Checks:       cfg.ReadinessChecks,
		Providers:    cfg.Providers,
		RouteCache:   cfg.RouteCache,
		FeatureFlags: cfg.FeatureFlagService,
	})

	authenticate := passthrough
	requireScope := func(string) func(http.Handler) http.Handler { return passthrough }
	if cfg.JWTService != nil {
		authenticate = middleware.Auth(cfg.JWTService)
		requireScope = middleware.RequireScope
	} else {
		cfg.Logger.Warn().Msg("api authentication disabled, no JWT service configured")
	}

	planRateLimit := middleware.RateLimitByClient(middleware.PlanRateLimit)         // 20 req/min
	adminRateLimit := middleware.RateLimitByClient(middleware.AdminRateLimit)       // 30 req/min
	standardRateLimit := middleware.RateLimitByClient(middleware.StandardRateLimit) // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			// Status endpoint requires authentication
			r.With(authenticate).Get("/status", opsHandler.SystemStatus)
		})

		// Trip planning - fans out to routing providers, strict rate limiting
		if cfg.Planner != nil {
			tripsHandler := handler.NewTripsHandler(cfg.Planner, catalogResolver, cfg.PlanTimeout, cfg.Logger)
			r.With(authenticate, requireScope(auth.ScopePlan), planRateLimit).
				Post("/trips:plan", tripsHandler.PlanTrip)
		}

		// Place catalog
		if cfg.CatalogService != nil {
			placesHandler := handler.NewPlacesHandler(cfg.CatalogService, cfg.Logger)
			r.Route("/places", func(r chi.Router) {
				r.Use(authenticate)
				r.With(standardRateLimit).Get("/", placesHandler.ListPlaces)
				r.Route("/{placeId}", func(r chi.Router) {
					r.With(standardRateLimit).Get("/", placesHandler.GetPlace)
					r.With(requireScope(auth.ScopeCatalogWrite), adminRateLimit).Put("/", placesHandler.PutPlace)
					r.With(requireScope(auth.ScopeCatalogWrite), adminRateLimit).Delete("/", placesHandler.DeletePlace)
				})
			})
		}

		// Admin endpoints - for internal operations
		if cfg.FeatureFlagService != nil {
			featureFlagsHandler := handler.NewFeatureFlagsHandler(cfg.FeatureFlagService, cfg.Logger)
			r.Route("/admin", func(r chi.Router) {
				r.Use(authenticate)
				r.Use(requireScope(auth.ScopeAdmin))
				r.Use(adminRateLimit)

				r.Route("/feature-flags", func(r chi.Router) {
					r.Get("/", featureFlagsHandler.ListFeatureFlags)
					r.Put("/", featureFlagsHandler.UpsertFeatureFlags)
					r.Post("/invalidate", featureFlagsHandler.InvalidateCache)
					r.Delete("/{key}", featureFlagsHandler.ResetFeatureFlag)
				})
			})
		}
	})

	return r
}

func passthrough(next http.Handler) http.Handler {
	return next
}
