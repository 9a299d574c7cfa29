package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/btc-guess/internal/app"
	"github.com/example/btc-guess/internal/config"
	"github.com/example/btc-guess/internal/infrastructure/kafka"
	"github.com/example/btc-guess/internal/logger"
	"github.com/example/btc-guess/internal/notification"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Notifier] failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.AppEnv, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("[Notifier] exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.Kafka.Enabled() {
		return errors.New("KAFKA_BROKERS is required for the notifier")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("[Notifier] ========================================")
	log.Info("[Notifier] BTC Guess - Resolution Notifier")
	log.Info("[Notifier] ========================================")
	log.Info("[Notifier] configuration",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group", cfg.Kafka.GroupID),
	)

	// The store is only read, to look up recipients
	st, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()

	svc := app.NewServices(st, cfg.Tables, log)
	handler := notification.NewHandler(notification.NewLogSender(log), svc.Users, log)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, log)
	defer func() { _ = consumer.Close() }()

	log.Info("[Notifier] listening", zap.String("topic", cfg.Kafka.Topic))
	if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("[Notifier] shutting down...")
	return nil
}
