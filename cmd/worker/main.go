package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/datavista/launchsim/internal/config"
	"github.com/datavista/launchsim/internal/pipeline"
	"github.com/datavista/launchsim/internal/platform/queue"
	"github.com/datavista/launchsim/internal/procexec"
	"github.com/datavista/launchsim/internal/worker"
	"github.com/datavista/launchsim/internal/workspace"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	app := &cli.App{
		Name:  "launchsim-worker",
		Usage: "consume queued simulation jobs and run the pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the YAML config file",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Value: 1,
				Usage: "number of job consumers; 1 keeps submissions single-flight",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if !cfg.QueueEnabled() {
		return cli.Exit("redis address is not configured, worker has nothing to consume", 1)
	}

	ws := workspace.New(cfg.WorkspaceRoot, cfg.FunctionsDir, cfg.PlotsDir)
	runner := &procexec.Runner{Timeout: cfg.StageTimeout.Std()}
	coord := pipeline.NewCoordinator(
		ws,
		&pipeline.ValidationStage{Bin: cfg.ValidatorPath, Runner: runner, WS: ws},
		&pipeline.GenerationStage{Bin: cfg.GeneratorPath, Runner: runner, WS: ws, Layers: cfg.Layers},
	)

	redisQ := queue.NewRedisQueue(cfg.Redis.Addr, cfg.Redis.Stream, cfg.Redis.Group, cfg.Redis.Results)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go redisQ.StartRecoveryRoutine(ctx, 1*time.Minute, 5*time.Minute)

	pool := worker.NewPool(c.Int("concurrency"), redisQ, coord)
	slog.Info("Starting worker", "concurrency", c.Int("concurrency"))
	return pool.Run(ctx)
}
