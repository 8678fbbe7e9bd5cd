package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"attendboard/internal/attendance"
	"attendboard/internal/config"
	"attendboard/internal/faceclient"
	"attendboard/internal/gqlclient"
	"attendboard/internal/jobs"
	"attendboard/internal/logging"
	"attendboard/internal/queue"
	"attendboard/internal/seed"
	"attendboard/internal/store"
)

// Worker consumes seed and snapshot jobs published by the API.
func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "attendboard-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	schema, err := gqlclient.ParseSchema(cfg.GraphQLSchema)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid graphql schema")
	}
	zone, err := attendance.NewZonePolicy(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid timezone")
	}

	rdb := store.NewRedis(cfg.RedisAddr)
	if !rdb.Healthy(ctx) {
		logger.Fatal().Str("addr", cfg.RedisAddr).Msg("worker needs redis for the job queue")
	}
	defer rdb.Close()

	backend := gqlclient.New(gqlclient.Options{
		Endpoint: cfg.GraphQLEndpoint,
		APIKey:   cfg.GraphQLAPIKey,
		Schema:   schema,
		Timeout:  cfg.GraphQLTimeout,
		PageSize: cfg.GraphQLPageSize,
	}, logger)

	opts := attendance.Options{Zone: zone, ChartDays: cfg.ChartDays, CacheTTL: cfg.CacheTTL}
	if cfg.DatabaseURL != "" {
		db, err := store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db connect failed")
		}
		defer db.Close()
		repo := attendance.NewRepository(db.Client)
		if err := repo.InitSchema(ctx); err != nil {
			logger.Fatal().Err(err).Msg("archive schema init failed")
		}
		opts.Archive = repo
	}
	dash := attendance.NewService(backend, rdb.Raw(), opts, logger)

	// Check face service health on startup
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, 0)
	if rep, err := face.Health(ctx); err != nil {
		logger.Warn().Err(err).Msg("face service not available")
	} else if rep.Reachable {
		logger.Info().Str("status", rep.Status).Int("gallery_size", rep.Gallery).Msg("face service connected")
	}

	driver := seed.NewDriver(backend, seed.Options{
		Retries:      cfg.SeedRetries,
		RetryDelay:   cfg.SeedRetryDelay,
		Pace:         cfg.SeedPace,
		Settle:       cfg.SeedSettle,
		WithStatuses: schema == gqlclient.SchemaRecords,
		WithAlerts:   schema == gqlclient.SchemaRecords,
	}, logger)

	runner := jobs.NewRunner(queue.NewRedisQueue(rdb.Raw(), ""), driver, dash, jobs.NewResultStore(rdb.Raw()), logger)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}
