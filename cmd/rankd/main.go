// Package main is the entry point for the ranking calculation job.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/forecastarena/rankd/internal/config"
	"github.com/forecastarena/rankd/internal/elo"
	"github.com/forecastarena/rankd/internal/jobs"
	"github.com/forecastarena/rankd/internal/scope"
	"github.com/forecastarena/rankd/internal/score"
	"github.com/forecastarena/rankd/internal/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	dateFlag := flag.String("date", "", "calculation date as YYYY-MM-DD (default: today, UTC)")
	seedFlag := flag.Int64("seed", 0, "override the random seed (0 keeps the configured value)")
	daemon := flag.Bool("daemon", false, "keep running and recompute rankings daily instead of exiting after one run")
	interval := flag.Duration("interval", jobs.DefaultCheckInterval, "check interval in daemon mode")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Forecast Arena Ranking Job")
		fmt.Println()
		fmt.Println("Usage: rankd [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	for key, value := range cfg.LogSummary() {
		logger.Debug("config", slog.String(key, value))
	}

	date, err := parseDate(*dateFlag)
	if err != nil {
		logger.Error("invalid -date flag", slog.String("error", err.Error()))
		os.Exit(1)
	}

	seed := time.Now().UnixNano()
	if cfg.RandomSeed != nil {
		seed = *cfg.RandomSeed
	}
	if *seedFlag != 0 {
		seed = *seedFlag
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to reach database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	metrics := jobs.NewMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.String("error", err.Error()))
		os.Exit(1)
	}

	source := score.NewPostgresSource(db, logger)
	store := snapshot.NewPostgresStore(db, cfg.SnapshotRetryAttempts, logger)
	aggregator := scope.NewAggregator(source, elo.Config{
		KFactor:     cfg.KFactor,
		BaseRating:  cfg.BaseRating,
		Iterations:  cfg.NBootstraps,
		Seed:        seed,
		MaxParallel: cfg.MaxConcurrentIterations,
	}, cfg.MaxConcurrentScopes, logger)
	runner := jobs.NewRunner(aggregator, store, cfg.MinMatchesForRanking, metrics, logger)

	if *daemon {
		job := jobs.NewDailyJob(jobs.DailyJobConfig{
			Interval: *interval,
			Logger:   logger,
		}, runner, store)
		if err := job.Start(ctx); err != nil {
			logger.Error("failed to start daily job", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("daily ranking job started", slog.Duration("interval", *interval))
		<-ctx.Done()
		job.Stop()
		logger.Info("daily ranking job stopped")
		return
	}

	report, err := runner.Run(ctx, date)
	if err != nil {
		logger.Error("ranking run failed", slog.String("error", err.Error()))
		// A partial report means some scopes were written before the
		// failure; only exit non-zero when nothing succeeded.
		if report == nil || report.ScopesCompleted == 0 {
			os.Exit(1)
		}
	}
}

// newLogger builds a JSON slog logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// parseDate parses the -date flag, defaulting to today's UTC date.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		y, m, d := time.Now().UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse("2006-01-02", s)
}
