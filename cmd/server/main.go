package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/config"
	"github.com/channelsync/inventory-service/internal/catalog"
	"github.com/channelsync/inventory-service/internal/channel"
	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/handlers"
	internalhttp "github.com/channelsync/inventory-service/internal/http"
	"github.com/channelsync/inventory-service/internal/http/ratelimit"
	"github.com/channelsync/inventory-service/internal/ingest"
	"github.com/channelsync/inventory-service/internal/jobs"
	"github.com/channelsync/inventory-service/internal/lifecycle"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/middleware"
	"github.com/channelsync/inventory-service/internal/rematch"
	"github.com/channelsync/inventory-service/internal/storage"
	"github.com/channelsync/inventory-service/internal/sweepers"
	"github.com/channelsync/inventory-service/internal/taskqueue"
	"github.com/channelsync/inventory-service/internal/telemetry"
	"github.com/channelsync/inventory-service/internal/workers"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting inventory service")

	ctx := context.Background()

	cleanupTelemetry := telemetry.MustInit(ctx, telemetry.GetConfigFromEnv())
	defer cleanupTelemetry(context.Background())

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	pool := database.Pool()
	repo := database.NewBatchRepo(pool)
	mappingStore := mappings.NewStore(pool)
	queue := taskqueue.New(pool)

	// Claims held by a previous process are worthless after a restart.
	if released, err := queue.ReleaseStale(ctx, 0); err != nil {
		logger.Warn().Err(err).Msg("Failed to release poll tasks from previous run")
	} else if released > 0 {
		logger.Info().Int("released", released).Msg("Released poll tasks from previous run")
	}

	rateConfig := ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		MaxRetries:        cfg.RateLimit.MaxRetries,
		InitialBackoffMs:  cfg.RateLimit.InitialBackoffMs,
		MaxBackoffMs:      cfg.RateLimit.MaxBackoffMs,
	}
	var channelHeaders map[string]string
	if cfg.Channel.APIKey != "" {
		channelHeaders = map[string]string{"Authorization": "Bearer " + cfg.Channel.APIKey}
	}
	reports := channel.NewClient(internalhttp.NewClient(rateConfig, channelHeaders), cfg.Channel.BaseURL)
	resolver := catalog.NewHTTPResolver(internalhttp.NewClientDefault(), cfg.Catalog.BaseURL)

	ingestor := ingest.NewService(mappingStore, repo)
	manager := lifecycle.NewManager(repo, ingestor, reports)
	rematcher := rematch.NewEngine(repo, mappingStore)
	importer := mappings.NewImporter(mappingStore, resolver)

	var archive storage.Storage
	if cfg.Storage.Type == "local" && cfg.Storage.BasePath != "" {
		local, err := storage.NewLocalStorage(cfg.Storage.BasePath)
		if err != nil {
			logger.Warn().Err(err).Msg("Payload archiving disabled")
		} else {
			archive = local
			manager.SetArchive(archive)
		}
	}

	sweeper := sweepers.NewPollTaskSweeper(queue, logger, cfg.Worker.SweepInterval, cfg.Worker.MaxClaimAge)
	go sweeper.Start(ctx)

	// PIDs collide across replicas; a random suffix keeps claim owners distinct.
	pollWorker := workers.New(queue, manager, workers.PollWorkerConfig{
		WorkerID:   fmt.Sprintf("poll-%s", uuid.NewString()[:8]),
		NumWorkers: cfg.Worker.NumWorkers,
		MaxTasks:   cfg.Worker.MaxTasks,
		PollDelay:  cfg.Worker.PollDelay,
	})
	pollWorker.Start(ctx)

	go runCleanupLoop(ctx, logger, queue, archive)

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	public := router.Group("/", middleware.RateLimitMiddleware())
	public.GET("/health", handlers.HealthCheck)
	public.GET("/metrics", gin.WrapH(promhttp.Handler()))

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.Auth.InternalAPIKey))
	internal.Use(middleware.ServiceRateLimitMiddleware(50, 100))
	{
		internal.GET("/health", handlers.HealthCheck)

		batchHandler := handlers.NewBatchHandler(repo, manager, rematcher, queue, cfg.Channel.PollDeadline)
		handlers.RegisterBatchRoutes(internal, batchHandler)
		handlers.RegisterRowRoutes(internal, repo)
		handlers.RegisterRollupRoutes(internal, repo, mappingStore)

		mappingHandler := handlers.NewMappingHandler(mappingStore, importer, rematcher, cfg.Catalog.CompanyID)
		handlers.RegisterMappingRoutes(internal, mappingHandler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	sweeper.Stop()
	pollWorker.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

// runCleanupLoop runs retention maintenance once a day
func runCleanupLoop(ctx context.Context, logger *zerolog.Logger, queue *taskqueue.Queue, archive storage.Storage) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := jobs.CleanupAbandonedBatches(ctx, 7*24*time.Hour); err != nil {
				logger.Error().Err(err).Msg("Failed to expire abandoned batches")
			} else if n > 0 {
				logger.Info().Int("count", n).Msg("Expired abandoned batches")
			}

			if n, err := queue.CleanupFinished(ctx, 7*24*time.Hour); err != nil {
				logger.Error().Err(err).Msg("Failed to delete finished poll tasks")
			} else if n > 0 {
				logger.Info().Int("count", n).Msg("Deleted finished poll tasks")
			}

			if archive != nil {
				if n, err := jobs.CleanupPayloadArchives(ctx, archive, 90*24*time.Hour); err != nil {
					logger.Error().Err(err).Msg("Failed to prune payload archives")
				} else if n > 0 {
					logger.Info().Int("count", n).Msg("Pruned payload archives")
				}
			}
		}
	}
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	zlog.Logger = logger
	return &logger
}
