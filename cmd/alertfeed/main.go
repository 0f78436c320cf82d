// alertfeed server — polls public disaster/safety sources into an append-only
// event log and fans new events out to SSE subscribers across instances.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/krsafety/alertfeed/pkg/api"
	"github.com/krsafety/alertfeed/pkg/config"
	"github.com/krsafety/alertfeed/pkg/database"
	"github.com/krsafety/alertfeed/pkg/events"
	"github.com/krsafety/alertfeed/pkg/ingest"
	"github.com/krsafety/alertfeed/pkg/services"
	"github.com/krsafety/alertfeed/pkg/sources/forestfire"
	"github.com/krsafety/alertfeed/pkg/sources/pews"
	"github.com/krsafety/alertfeed/pkg/sources/quakenotice"
	"github.com/krsafety/alertfeed/pkg/sources/safetymsg"
	"github.com/krsafety/alertfeed/pkg/sources/weatherwarn"
	"github.com/krsafety/alertfeed/pkg/version"
)

// ingestConcurrency is the worker's parallelism across distinct sources;
// polls of the same source are serialized by the single-flight guard.
const ingestConcurrency = 4

// shutdownWatchdog force-exits if graceful teardown hangs.
const shutdownWatchdog = 10 * time.Second

func main() {
	// 1. Configuration — fatal before anything starts.
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	config.SetupLogging(cfg.Env)

	ctx := context.Background()
	slog.Info("Starting alertfeed",
		"version", version.Full(),
		"env", cfg.Env,
		"addr", cfg.Addr(),
		"ingest_enabled", cfg.IngestEnabled)

	// 2. Database (runs embedded migrations).
	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL database")

	eventService := services.NewEventService(dbClient.Pool())
	checkpointService := services.NewCheckpointService(dbClient.Pool())

	// 3. Event bus — one publishing client, one dedicated subscriber.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	pubClient := redis.NewClient(redisOpts)
	subClient := redis.NewClient(redisOpts)
	if err := pubClient.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus(pubClient, subClient)
	writer := events.NewWriter(eventService, bus)

	// 4. SSE hub. A subscribe failure leaves the hub un-started; the
	// instance still serves queries and catch-up, so keep running.
	hub := events.NewHub(bus, eventService)
	if err := hub.Start(ctx); err != nil {
		slog.Error("SSE hub did not start, live fan-out disabled on this instance", "error", err)
	}

	// 5. Source registry.
	registry, err := buildRegistry(cfg)
	if err != nil {
		slog.Error("Failed to build source registry", "error", err)
		os.Exit(1)
	}

	// 6. Ingest scheduler + worker, unless this is a read-only replica.
	var scheduler *ingest.Scheduler
	var worker *ingest.Worker
	if cfg.IngestEnabled {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			slog.Error("Invalid REDIS_URL for job queue", "error", err)
			os.Exit(1)
		}

		worker = ingest.NewWorker(redisOpt, registry, checkpointService, writer, ingestConcurrency)
		if err := worker.Start(); err != nil {
			slog.Error("Failed to start ingest worker", "error", err)
			os.Exit(1)
		}

		scheduler = ingest.NewScheduler(redisOpt, registry)
		if err := scheduler.Start(); err != nil {
			slog.Error("Failed to start ingest scheduler", "error", err)
			os.Exit(1)
		}
		slog.Info("Ingest pipeline started", "sources", len(registry.List()))
	}

	// 7. HTTP server.
	httpServer := api.NewServer(eventService, hub, api.Options{
		CORSEnabled:    cfg.CORS,
		SwaggerEnabled: cfg.Swagger,
	})
	httpServer.SetDatabaseHealth(func(ctx context.Context) (*database.HealthStatus, error) {
		return database.Health(ctx, dbClient.Pool())
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Addr())
		if err := httpServer.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 8. Wait for shutdown signal or server error.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// Late signals must not restart teardown.
	signal.Stop(sigCh)

	// 9. Ordered teardown under a watchdog: a hung step force-exits.
	watchdog := time.AfterFunc(shutdownWatchdog, func() {
		slog.Error("Shutdown watchdog fired, forcing exit")
		os.Exit(1)
	})
	defer watchdog.Stop()

	httpCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(httpCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	hub.Stop()

	if scheduler != nil {
		scheduler.Shutdown()
	}
	if worker != nil {
		worker.Shutdown()
	}

	if err := subClient.Close(); err != nil {
		slog.Error("Error closing redis subscriber", "error", err)
	}
	if err := pubClient.Close(); err != nil {
		slog.Error("Error closing redis client", "error", err)
	}

	dbClient.Close()

	slog.Info("Shutdown complete")
}

// buildRegistry assembles the compile-time source list. The weather-warning
// adapter needs an API key and is skipped without one; the earthquake stream
// runs in replay mode when simulation is configured.
func buildRegistry(cfg *config.Config) (*ingest.Registry, error) {
	adapters := []ingest.Adapter{
		safetymsg.New(),
		quakenotice.New(),
		forestfire.New(),
	}

	if cfg.PEWSSimEnabled() {
		sim, err := pews.NewSimulation(cfg.PEWSSimEqkID, cfg.PEWSSimStartAt)
		if err != nil {
			return nil, err
		}
		slog.Info("PEWS simulation mode active", "eqk_id", cfg.PEWSSimEqkID)
		adapters = append(adapters, sim)
	} else {
		adapters = append(adapters, pews.New())
	}

	if cfg.KMAAPIKey != "" {
		adapters = append(adapters, weatherwarn.New(cfg.KMAAPIKey))
	} else {
		slog.Info("KMA_API_KEY not set, weather-warning source disabled")
	}

	return ingest.NewRegistry(adapters...)
}
