// Package main provides the entrypoint for the DayTrip planning worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daytrip/daytrip/internal/bootstrap"
	"github.com/daytrip/daytrip/internal/catalog"
	"github.com/daytrip/daytrip/internal/database"
	"github.com/daytrip/daytrip/internal/featureflags"
	"github.com/daytrip/daytrip/internal/planner"
	"github.com/daytrip/daytrip/internal/telemetry"
	"github.com/daytrip/daytrip/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "daytrip-worker"

	log := bootstrap.NewLogger(serviceName, Version)
	bootstrap.LoadDotEnv(log)

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting DayTrip worker")

	// Worker also exposes a health endpoint for Cloud Run
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	subscription := os.Getenv("PUBSUB_SUBSCRIPTION")
	resultTopic := os.Getenv("PUBSUB_RESULT_TOPIC")
	if resultTopic == "" {
		resultTopic = "daytrip-plan-results"
	}
	if projectID == "" || subscription == "" {
		log.Fatal().Msg("PUBSUB_PROJECT_ID and PUBSUB_SUBSCRIPTION are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown telemetry")
		}
	}()

	geoDeps, err := bootstrap.NewGeo(ctx, bootstrap.GeoConfigFromEnv(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize geo service")
	}
	defer geoDeps.Close()

	// The catalog is only needed for jobs that reference stored places
	var (
		resolver worker.PlaceResolver
		options  planner.OptionsSource
	)
	if database.Configured() {
		pool, err := database.Connect(ctx, database.ConfigFromEnv(), log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		resolver = catalog.NewService(catalog.NewPostgresRepository(pool), log)
		options = featureflags.NewService(featureflags.ServiceConfig{
			Repository: featureflags.NewPostgresRepository(pool),
			Logger:     log,
			CacheTTL:   1 * time.Minute,
		})
		log.Info().Msg("database connected")
	} else {
		log.Warn().Msg("no database configured, only inline place jobs can be planned")
	}

	plannerMetrics, err := telemetry.NewPlannerMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("planner metrics disabled")
	}

	tripPlanner, err := planner.NewSystem(planner.SystemConfig{
		Geo:     geoDeps.Service,
		Options: options,
		Metrics: plannerMetrics,
		Logger:  log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize planner")
	}

	workerCfg := worker.ConfigFromEnv()
	batch := worker.NewBatchPlanner(worker.BatchPlannerConfig{
		Config:   workerCfg,
		Planner:  tripPlanner,
		Resolver: resolver,
		Logger:   log,
	})

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        projectID,
		SubscriptionName: subscription,
		ResultTopic:      resultTopic,
		Batch:            batch,
		Logger:           log,
		MaxOutstanding:   2 * workerCfg.Concurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize pubsub handler")
	}
	defer func() {
		if err := handler.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub handler")
		}
	}()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"metrics": batch.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go func() {
		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub receive stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
