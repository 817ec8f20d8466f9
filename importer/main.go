package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/goeievraag/backend/internal/config"
	"github.com/goeievraag/backend/internal/elasticsearch"
	"github.com/goeievraag/backend/internal/ingest"
	"github.com/goeievraag/backend/internal/logger"
)

func main() {
	log := logger.New("importer")

	app := &cli.Command{
		Name:  "importer",
		Usage: "Load category, question and answer CSV exports into the search index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "categories",
				Usage: "categories CSV path (empty skips the stage)",
			},
			&cli.StringFlag{
				Name:  "questions",
				Usage: "questions CSV path (empty skips the stage)",
			},
			&cli.StringFlag{
				Name:  "answers",
				Usage: "answers CSV path (empty skips the stage)",
			},
			&cli.BoolFlag{
				Name:  "no-progress",
				Usage: "disable progress bars",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, log,
				c.String("categories"),
				c.String("questions"),
				c.String("answers"),
				!c.Bool("no-progress"),
			)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error("import failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, categories, questions, answers string, progress bool) error {
	if categories == "" && questions == "" && answers == "" {
		return fmt.Errorf("nothing to import: pass at least one of --categories, --questions, --answers")
	}

	cfg, err := config.LoadImporter()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		return fmt.Errorf("init elasticsearch: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := esClient.Ping(pingCtx); err != nil {
		return err
	}

	start := time.Now()
	if err := ingest.New(esClient, log, progress).Run(ctx, categories, questions, answers); err != nil {
		return err
	}

	log.Info("import finished", slog.Duration("elapsed", time.Since(start)))
	return nil
}
