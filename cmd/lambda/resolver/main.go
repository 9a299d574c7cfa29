package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/example/btc-guess/internal/app"
	"github.com/example/btc-guess/internal/config"
	"github.com/example/btc-guess/internal/logger"
	"github.com/example/btc-guess/internal/resolution"
	"go.uber.org/zap"
)

var (
	scheduler *resolution.Scheduler
	log       *zap.Logger
)

// init wires the engine once per container; each scheduled invocation runs one cycle
func init() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Lambda Resolver] failed to load config: %v\n", err)
		os.Exit(1)
	}
	log = logger.Must(cfg.AppEnv, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal("[Lambda Resolver] invalid config", zap.Error(err))
	}

	ctx := context.Background()
	st, _, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("[Lambda Resolver] failed to open store", zap.Error(err))
	}

	publisher, _ := app.NewPublisher(cfg, log)
	locker, _, err := app.NewLocker(ctx, cfg, log)
	if err != nil {
		log.Fatal("[Lambda Resolver] failed to connect to Redis", zap.Error(err))
	}

	engine, err := app.NewEngine(cfg, app.NewServices(st, cfg.Tables, log), publisher, log)
	if err != nil {
		log.Fatal("[Lambda Resolver] failed to build engine", zap.Error(err))
	}
	scheduler = app.NewScheduler(cfg, engine, locker, log)

	log.Info("[Lambda Resolver] initialized",
		zap.String("store", cfg.Store.Backend),
		zap.String("feed", cfg.Feed.Source),
	)
}

// handler never fails the invocation; a retried invocation would record a
// second snapshot for the same minute
func handler(ctx context.Context, event events.CloudWatchEvent) error {
	log.Info("[Lambda Resolver] scheduled invocation", zap.String("event_id", event.ID), zap.Time("time", event.Time))
	if !scheduler.Tick(ctx) {
		log.Info("[Lambda Resolver] cycle skipped")
	}
	return nil
}

func main() {
	lambda.Start(handler)
}
