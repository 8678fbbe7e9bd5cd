package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"attendboard/internal/config"
	"attendboard/internal/diagnostics"
	"attendboard/internal/faceclient"
	"attendboard/internal/gqlclient"
	"attendboard/internal/jobs"
	"attendboard/internal/logging"
	"attendboard/internal/seed"
	"attendboard/internal/store"
)

// seed populates the backend with demo data, or runs the diagnostics checks with -diagnose
// (add -write to exercise the create path).
func main() {
	cfg := config.Load()
	diagnose := flag.Bool("diagnose", false, "run connectivity diagnostics instead of seeding")
	write := flag.Bool("write", false, "with -diagnose, also create a test student and attendance row")
	alerts := flag.Bool("alerts", true, "create sample unknown-face alerts (records schema only)")
	asJSON := flag.Bool("json", false, "print the result as JSON")
	flag.Parse()

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, "attendboard-seed")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schema, err := gqlclient.ParseSchema(cfg.GraphQLSchema)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid graphql schema")
	}
	backend := gqlclient.New(gqlclient.Options{
		Endpoint: cfg.GraphQLEndpoint,
		APIKey:   cfg.GraphQLAPIKey,
		Schema:   schema,
		Timeout:  cfg.GraphQLTimeout,
		PageSize: cfg.GraphQLPageSize,
	}, logger)

	rdb := store.NewRedis(cfg.RedisAddr)
	defer rdb.Close()
	if rdb != nil && !rdb.Healthy(ctx) {
		logger.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable, result kept in memory only")
		rdb = nil
	}

	if *diagnose {
		var face diagnostics.FaceProbe
		if cfg.FaceServiceURL != "" {
			face = faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, 0)
		}
		runner := diagnostics.NewRunner(diagnostics.Config{
			Endpoint:  cfg.GraphQLEndpoint,
			Schema:    schema,
			APIKeySet: cfg.GraphQLAPIKey != "",
		}, backend, face, rdb.Raw(), nil, logger)
		var rep diagnostics.Report
		if *write {
			rep = runner.RunWrite(ctx, backend)
		} else {
			rep = runner.Run(ctx)
		}
		if *asJSON {
			printJSON(rep)
		} else {
			fmt.Println(rep.Log)
		}
		if rep.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	driver := seed.NewDriver(backend, seed.Options{
		Retries:      cfg.SeedRetries,
		RetryDelay:   cfg.SeedRetryDelay,
		Pace:         cfg.SeedPace,
		Settle:       cfg.SeedSettle,
		WithStatuses: schema == gqlclient.SchemaRecords,
		WithAlerts:   *alerts && schema == gqlclient.SchemaRecords,
	}, logger)

	res, runErr := driver.Run(ctx)
	if err := jobs.NewResultStore(rdb.Raw()).Save(context.Background(), res); err != nil {
		logger.Warn().Err(err).Msg("failed to store seed result")
	}

	if *asJSON {
		printJSON(res)
	} else {
		fmt.Println("Seeding complete: " + res.Summary())
		for _, e := range res.Errors {
			fmt.Println("  - " + e)
		}
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("seeding aborted")
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
