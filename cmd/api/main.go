// Package main provides the entrypoint for the DayTrip API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/daytrip/daytrip/internal/api"
	"github.com/daytrip/daytrip/internal/api/handler"
	"github.com/daytrip/daytrip/internal/api/middleware"
	"github.com/daytrip/daytrip/internal/auth"
	"github.com/daytrip/daytrip/internal/bootstrap"
	"github.com/daytrip/daytrip/internal/catalog"
	"github.com/daytrip/daytrip/internal/database"
	"github.com/daytrip/daytrip/internal/featureflags"
	"github.com/daytrip/daytrip/internal/planner"
	"github.com/daytrip/daytrip/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "daytrip-api"

	log := bootstrap.NewLogger(serviceName, Version)
	bootstrap.LoadDotEnv(log)

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting DayTrip API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	planTimeout := handler.DefaultPlanTimeout
	if d, err := time.ParseDuration(os.Getenv("PLAN_TIMEOUT")); err == nil && d > 0 {
		planTimeout = d
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	env := telemetryCfg.Environment

	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}

	var checks []handler.DependencyCheck

	// Geo provider, route cache and geocode cache
	geoDeps, err := bootstrap.NewGeo(ctx, bootstrap.GeoConfigFromEnv(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize geo service")
	}
	defer geoDeps.Close()
	checks = append(checks, handler.DependencyCheck{Name: "geo", Check: geoDeps.Registry.Check})
	if geoDeps.Redis != nil {
		checks = append(checks, handler.DependencyCheck{Name: "redis", Check: geoDeps.PingRedis})
	}

	// Catalog and feature flags live in Postgres when configured, in memory otherwise
	var (
		catalogRepo catalog.Repository
		flagRepo    featureflags.Repository
	)
	if database.Configured() {
		dbConfig := database.ConfigFromEnv()
		pool, err := database.Connect(ctx, dbConfig, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("host", dbConfig.Host).
			Int("port", dbConfig.Port).
			Str("database", dbConfig.Database).
			Msg("database connected")

		if os.Getenv("DB_MIGRATE") == "true" {
			if err := database.Migrate(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("failed to migrate database")
			}
			log.Info().Msg("database schema up to date")
		}

		catalogRepo = catalog.NewPostgresRepository(pool)
		flagRepo = featureflags.NewPostgresRepository(pool)
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Check: pool.Ping})
	} else {
		log.Warn().Msg("no database configured, catalog is in memory")
		catalogRepo = catalog.NewInMemoryRepository()
		if geoDeps.Redis != nil {
			flagRepo = featureflags.NewRedisRepository(geoDeps.Redis, os.Getenv("FEATURE_FLAGS_REDIS_KEY"))
			log.Info().Msg("feature flags stored in redis")
		} else {
			flagRepo = featureflags.NewInMemoryRepository()
		}
	}

	ffService := featureflags.NewService(featureflags.ServiceConfig{
		Repository: flagRepo,
		Logger:     log,
		CacheTTL:   1 * time.Minute,
	})
	log.Info().Msg("feature flags service initialized")

	catalogService := catalog.NewService(catalogRepo, log)
	log.Info().Msg("catalog service initialized")

	plannerMetrics, err := telemetry.NewPlannerMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("planner metrics disabled")
	}

	tripPlanner, err := planner.NewSystem(planner.SystemConfig{
		Geo:     geoDeps.Service,
		Options: ffService,
		Metrics: plannerMetrics,
		Logger:  log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize planner")
	}

	// Service tokens
	var jwtService *auth.JWTService
	jwtConfig := bootstrap.JWTConfigFromEnv()
	if jwtConfig.SigningKey == "" {
		if env == "production" {
			log.Fatal().Msg("JWT_SIGNING_KEY is required in production")
		}
		log.Warn().Msg("JWT_SIGNING_KEY not set, API authentication disabled")
	} else {
		jwtService, err = auth.NewJWTService(jwtConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize JWT service")
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Version:            Version,
		BuildTime:          BuildTime,
		Logger:             log,
		ServiceName:        serviceName,
		Metrics:            metrics,
		RequireTLS:         env == "production",
		JWTService:         jwtService,
		Planner:            tripPlanner,
		PlanTimeout:        planTimeout,
		CatalogService:     catalogService,
		FeatureFlagService: ffService,
		ReadinessChecks:    checks,
		Providers:          geoDeps.Registry,
		RouteCache:         geoDeps.Service,
	})

	// WriteTimeout leaves room for the plan timeout.
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      planTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	waitForShutdown(log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

func waitForShutdown(log zerolog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")
}
