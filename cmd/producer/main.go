// Command producer enqueues a single simulation submission, reading the
// function definition from a file or stdin. Useful for exercising the worker
// without the dashboard.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/datavista/launchsim/internal/config"
	"github.com/datavista/launchsim/internal/domain"
	"github.com/datavista/launchsim/internal/platform/queue"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	app := &cli.App{
		Name:  "launchsim-producer",
		Usage: "publish a simulation job to the queue",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the YAML config file"},
			&cli.StringFlag{Name: "user", Required: true, Usage: "submitting user"},
			&cli.StringFlag{Name: "out", Required: true, Usage: "filename for the persisted submission"},
			&cli.StringFlag{Name: "outplot", Required: true, Usage: "desired plot artifact name"},
			&cli.StringFlag{Name: "source", Usage: "function definition file, - or empty for stdin"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Producer failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if !cfg.QueueEnabled() {
		return cli.Exit("redis address is not configured", 1)
	}

	var source []byte
	if path := c.String("source"); path != "" && path != "-" {
		source, err = os.ReadFile(path)
	} else {
		source, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return err
	}

	redisQ := queue.NewRedisQueue(cfg.Redis.Addr, cfg.Redis.Stream, cfg.Redis.Group, cfg.Redis.Results)

	job := domain.Job{
		ID:      uuid.New().String(),
		User:    c.String("user"),
		OutName: c.String("out"),
		OutPlot: c.String("outplot"),
		Source:  string(source),
	}

	slog.Info("Publishing job", "jobID", job.ID, "user", job.User)
	if err := redisQ.Publish(context.Background(), job); err != nil {
		return err
	}
	slog.Info("Job published", "jobID", job.ID)
	return nil
}
