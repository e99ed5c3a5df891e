package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"floodwatch/internal/aggregator"
	"floodwatch/internal/api"
	"floodwatch/internal/config"
	"floodwatch/internal/logging"
	"floodwatch/internal/metrics"
	"floodwatch/internal/relay"
	"floodwatch/internal/render"
	"floodwatch/internal/scheduler"
	"floodwatch/internal/timefmt"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "floodwatch.yaml", "path to YAML or JSON config")
	envPath := flag.String("env", ".env", "optional .env file with FLOODWATCH_* overrides")
	flag.Parse()

	config.LoadEnvFile(*envPath)
	mgr, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := mgr.SetOverlay(func(c *config.Config) error { return config.ApplyEnv(c, os.Getenv) }); err != nil {
		log.Fatalf("config error: %v", err)
	}
	cfg := mgr.Get()

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	loc, err := cfg.Display.Location()
	if err != nil {
		fatal(logger, "timezone error", err)
	}
	renderer := render.NewRenderer(render.Policy{Placeholder: cfg.Display.Placeholder}, timefmt.New(loc, cfg.Display.Placeholder))
	board := render.NewBoard(renderer, logger)
	cycles := metrics.NewStore(cfg.Metrics.StoreLimit)
	agg := aggregator.New(cfg.Remote.RequestTimeout, cfg.Remote.HistoryLimit, logger)
	sched := scheduler.New(agg, board, cycles, logger, scheduler.Options{
		BaseURL:     cfg.Remote.BaseURL,
		LocationID:  cfg.Remote.LocationID,
		Interval:    cfg.Refresh.Interval,
		StalePolicy: cfg.Refresh.StalePolicy,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Relay.Enabled {
		k := relay.NewKafka(cfg.Relay, logger)
		board.AddTarget(k)
		go k.Run(ctx)
	} else {
		logger.Info("frame relay disabled")
	}

	if cfg.API.Enabled {
		srv, err := api.New(mgr, cycles, sched, board, logger, version)
		if err != nil {
			fatal(logger, "api setup error", err)
		}
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error("api server error", "err", err)
				cancel()
			}
		}()
	} else {
		logger.Info("api disabled")
	}

	go mgr.Watch(ctx, 3*time.Second, sched.UpdateConfig, logger)

	logger.Info("floodwatch starting",
		"version", version,
		"base_url", cfg.Remote.BaseURL,
		"location_id", cfg.Remote.LocationID,
		"interval", cfg.Refresh.Interval,
		"stale_policy", cfg.Refresh.StalePolicy,
	)
	sched.Run(ctx)
	logger.Info("floodwatch stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}
