package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/btc-guess/internal/app"
	"github.com/example/btc-guess/internal/config"
	"github.com/example/btc-guess/internal/logger"
	"go.uber.org/zap"
)

// resolver runs the resolution scheduler without the HTTP API
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Resolver] failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.AppEnv, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("[Resolver] exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("[Resolver] ========================================")
	log.Info("[Resolver] BTC Guess - Resolution Engine")
	log.Info("[Resolver] ========================================")
	log.Info("[Resolver] configuration",
		zap.String("store", cfg.Store.Backend),
		zap.String("feed", cfg.Feed.Source),
		zap.Duration("interval", cfg.Resolution.Interval),
		zap.Bool("run_on_start", cfg.Resolution.RunOnStart),
	)

	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	publisher, closePublisher := app.NewPublisher(cfg, log)
	defer func() { _ = closePublisher() }()

	locker, closeLocker, err := app.NewLocker(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeLocker() }()

	engine, err := app.NewEngine(cfg, app.NewServices(st, cfg.Tables, log), publisher, log)
	if err != nil {
		return err
	}

	if err := app.NewScheduler(cfg, engine, locker, log).Run(ctx); err != nil {
		return err
	}
	log.Info("[Resolver] stopped")
	return nil
}
