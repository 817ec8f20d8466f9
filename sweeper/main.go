package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/goeievraag/backend/internal/config"
	"github.com/goeievraag/backend/internal/elasticsearch"
	"github.com/goeievraag/backend/internal/liveness"
	"github.com/goeievraag/backend/internal/logger"
)

func main() {
	log := logger.New("sweeper")

	app := &cli.Command{
		Name:  "sweeper",
		Usage: "Validate the canonical URL of every indexed question",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "run a single sweep and exit instead of looping on SWEEP_INTERVAL",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, log, c.Bool("once"))
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error("sweeper failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, once bool) error {
	cfg, err := config.LoadSweeper()
	if err != nil {
		return err
	}

	esClient, err := connect(ctx, log, cfg)
	if err != nil {
		return err
	}
	log.Info("connected to elasticsearch")

	sweeper := liveness.New(
		esClient,
		liveness.NewHTTPProber(cfg.ProbeTimeout),
		liveness.Config{
			Workers:      cfg.Workers,
			Rate:         cfg.Rate,
			ScanBatch:    cfg.ScanBatch,
			PersistAlive: cfg.PersistAlive,
			FlatURLs:     cfg.FlatURLs,
		},
		log,
	)

	if once {
		_, err := sweeper.Sweep(ctx)
		return err
	}

	log.Info("sweep loop running", slog.Duration("interval", cfg.Interval))

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	runOnce(ctx, log, sweeper)

	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil
		case <-ticker.C:
			runOnce(ctx, log, sweeper)
		}
	}
}

func runOnce(ctx context.Context, log *slog.Logger, sweeper *liveness.Sweeper) {
	if _, err := sweeper.Sweep(ctx); err != nil {
		log.Warn("sweep failed (will retry on next interval)", slog.Any("err", err))
	}
}

// connect retries the Elasticsearch connection with exponential backoff so the
// sweeper can start before the cluster is up.
func connect(ctx context.Context, log *slog.Logger, cfg *config.Sweeper) (*elasticsearch.Client, error) {
	const maxRetries = 10
	retryDelay := 2 * time.Second

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = esClient.Ping(pingCtx)
			cancel()
			if err == nil {
				return esClient, nil
			}
		}
		lastErr = err

		log.Warn("elasticsearch not reachable, retrying",
			slog.Any("err", err),
			slog.Int("attempt", i+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_in", retryDelay),
		)

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		retryDelay *= 2
		if retryDelay > 30*time.Second {
			retryDelay = 30 * time.Second
		}
	}

	return nil, lastErr
}
