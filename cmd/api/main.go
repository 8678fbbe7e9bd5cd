package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"attendboard/internal/attendance"
	"attendboard/internal/config"
	"attendboard/internal/diagnostics"
	"attendboard/internal/faceclient"
	"attendboard/internal/gqlclient"
	"attendboard/internal/handler"
	"attendboard/internal/jobs"
	"attendboard/internal/logging"
	"attendboard/internal/queue"
	"attendboard/internal/seed"
	"attendboard/internal/store"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "attendboard-api")

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App, logger zerolog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schema, err := gqlclient.ParseSchema(cfg.GraphQLSchema)
	if err != nil {
		return err
	}
	zone, err := attendance.NewZonePolicy(cfg.Timezone)
	if err != nil {
		return err
	}

	// Archive is optional; without it snapshot and history return 503.
	var (
		db      *store.DB
		repo    *attendance.Repository
		archive diagnostics.Pinger
	)
	if cfg.DatabaseURL != "" {
		db, err = store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			logger.Warn().Err(err).Msg("archive database not reachable, reports disabled")
		} else {
			repo = attendance.NewRepository(db.Client)
			if err := repo.InitSchema(ctx); err != nil {
				return err
			}
			archive = repo
		}
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if rdb != nil && !rdb.Healthy(ctx) {
		logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable, dashboard cache disabled")
		rdb = nil
	}

	backend := gqlclient.New(gqlclient.Options{
		Endpoint: cfg.GraphQLEndpoint,
		APIKey:   cfg.GraphQLAPIKey,
		Schema:   schema,
		Timeout:  cfg.GraphQLTimeout,
		PageSize: cfg.GraphQLPageSize,
	}, logger)

	opts := attendance.Options{Zone: zone, ChartDays: cfg.ChartDays, CacheTTL: cfg.CacheTTL}
	if repo != nil {
		opts.Archive = repo
	}
	dash := attendance.NewService(backend, rdb.Raw(), opts, logger)

	var face diagnostics.FaceProbe
	if cfg.FaceServiceURL != "" {
		face = faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, 5*time.Second)
	}
	diag := diagnostics.NewRunner(diagnostics.Config{
		Endpoint:  cfg.GraphQLEndpoint,
		Schema:    schema,
		APIKeySet: cfg.GraphQLAPIKey != "",
	}, backend, face, rdb.Raw(), archive, logger)

	results := jobs.NewResultStore(rdb.Raw())

	var q queue.Queue
	if cfg.QueueBackend == "redis" && rdb != nil {
		q = queue.NewRedisQueue(rdb.Raw(), "")
	} else {
		if cfg.QueueBackend == "redis" {
			logger.Warn().Msg("redis queue requested but redis is unavailable, running jobs in process")
		}
		mem := queue.NewInMemory(16)
		q = mem
		driver := seed.NewDriver(backend, seed.Options{
			Retries:      cfg.SeedRetries,
			RetryDelay:   cfg.SeedRetryDelay,
			Pace:         cfg.SeedPace,
			Settle:       cfg.SeedSettle,
			WithStatuses: schema == gqlclient.SchemaRecords,
			WithAlerts:   schema == gqlclient.SchemaRecords,
		}, logger)
		runner := jobs.NewRunner(mem, driver, dash, results, logger)
		go func() {
			if err := runner.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("in-process job runner stopped")
			}
		}()
	}

	health := map[string]handler.HealthCheck{
		"backend": func(ctx context.Context) bool { return backend.Ping(ctx) == nil },
	}
	if rdb != nil {
		health["redis"] = rdb.Healthy
	}
	if repo != nil {
		health["db"] = func(ctx context.Context) bool { return repo.Ping(ctx) == nil }
	}

	h := handler.New(handler.Deps{
		Dashboard:   dash,
		Backend:     backend,
		Diagnostics: diag,
		Queue:       q,
		SeedResults: results,
		Health:      health,
		Logger:      logger,
	})
	r := handler.NewRouter(h, handler.RouterOptions{
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.CORSOrigins,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("port", cfg.HTTPPort).Str("schema", string(schema)).Str("zone", zone.String()).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced shutdown")
	}

	logger.Info().Msg("server exited")
	return nil
}
