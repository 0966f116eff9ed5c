package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/datavista/launchsim/internal/config"
	"github.com/datavista/launchsim/internal/domain"
	"github.com/datavista/launchsim/internal/pipeline"
	"github.com/datavista/launchsim/internal/platform/queue"
	"github.com/datavista/launchsim/internal/platform/web"
	"github.com/datavista/launchsim/internal/procexec"
	"github.com/datavista/launchsim/internal/session"
	"github.com/datavista/launchsim/internal/workspace"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	app := &cli.App{
		Name:  "launchsim-server",
		Usage: "serve the user-submitted simulation pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "path to the YAML config file",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address, overrides the config file",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Addr = addr
	}

	ws := workspace.New(cfg.WorkspaceRoot, cfg.FunctionsDir, cfg.PlotsDir)

	// Stale per-user files from a previous run are meaningless to the new
	// dashboard state; start from a clean slate like the refresh action.
	if err := ws.CleanAll(); err != nil {
		slog.Warn("Initial workspace cleanup incomplete", "error", err)
	}

	runner := &procexec.Runner{Timeout: cfg.StageTimeout.Std()}
	coord := pipeline.NewCoordinator(
		ws,
		&pipeline.ValidationStage{Bin: cfg.ValidatorPath, Runner: runner, WS: ws},
		&pipeline.GenerationStage{Bin: cfg.GeneratorPath, Runner: runner, WS: ws, Layers: cfg.Layers},
	)

	srv := &web.Server{
		Pipeline:  coord,
		Workspace: ws,
		Gate:      session.NewGate(cfg.Label),
	}

	if cfg.QueueEnabled() {
		redisQ := queue.NewRedisQueue(cfg.Redis.Addr, cfg.Redis.Stream, cfg.Redis.Group, cfg.Redis.Results)
		srv.Queue = redisQ
		go broadcastResults(redisQ, srv)
	}

	limiter := web.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
	handler := srv.Routes(limiter)

	slog.Info("API Server starting", "addr", cfg.Addr)
	return http.ListenAndServe(cfg.Addr, handler)
}

// broadcastResults forwards finished queued jobs to the active duplex
// session.
func broadcastResults(q domain.JobQueue, srv *web.Server) {
	results, err := q.SubscribeResults(context.Background())
	if err != nil {
		slog.Error("Failed to subscribe to results", "error", err)
		os.Exit(1)
	}

	for res := range results {
		srv.ForwardResult(res)
	}
}
