// Package app builds the shared services every binary wires from config.
package app

import (
	"context"
	"fmt"

	"github.com/example/btc-guess/internal/config"
	"github.com/example/btc-guess/internal/domain/guess"
	"github.com/example/btc-guess/internal/domain/score"
	"github.com/example/btc-guess/internal/domain/snapshot"
	"github.com/example/btc-guess/internal/domain/user"
	"github.com/example/btc-guess/internal/infrastructure/kafka"
	"github.com/example/btc-guess/internal/infrastructure/redis"
	"github.com/example/btc-guess/internal/infrastructure/store"
	"github.com/example/btc-guess/internal/pricefeed"
	"github.com/example/btc-guess/internal/resolution"
	"go.uber.org/zap"
)

// Services holds the domain services over one store
type Services struct {
	Store     store.Store
	Snapshots *snapshot.Service
	Guesses   *guess.Service
	Users     *user.Service
	Scores    *score.Ledger
}

// NewServices wires the domain services to st
func NewServices(st store.Store, tables config.Tables, logger *zap.Logger) *Services {
	return &Services{
		Store:     st,
		Snapshots: snapshot.NewService(st, tables.PriceSnapshots).WithLogger(logger),
		Guesses:   guess.NewService(st, tables.Guesses).WithLogger(logger),
		Users:     user.NewService(st, tables.Users),
		Scores:    score.NewLedger(st, tables.Users),
	}
}

// OpenStore connects the configured backend. The returned close function
// is never nil.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		client, err := store.NewDynamoClient(ctx, cfg.Store.Region, cfg.Store.Endpoint)
		if err != nil {
			return nil, noop, err
		}
		logger.Info("using DynamoDB store",
			zap.String("region", cfg.Store.Region),
			zap.String("endpoint", cfg.Store.Endpoint),
		)
		return store.NewDynamoStore(client), noop, nil

	case config.BackendPostgres:
		db, err := store.ConnectPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		if err := store.EnsurePostgresTables(ctx, db, cfg.Tables.All()...); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		logger.Info("using PostgreSQL store")
		return store.NewPostgresStore(db), db.Close, nil

	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), noop, nil

	default:
		return nil, noop, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Store.Backend)
	}
}

// NewPublisher returns a Kafka publisher, or nil when no broker is configured
func NewPublisher(cfg *config.Config, logger *zap.Logger) (resolution.Publisher, func() error) {
	if !cfg.Kafka.Enabled() {
		logger.Info("kafka disabled, resolution events are not published")
		return nil, func() error { return nil }
	}
	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	logger.Info("publishing resolution events",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
	)
	return producer, producer.Close
}

// NewLocker returns the Redis lock, or nil when Redis is not configured
func NewLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (resolution.Locker, func() error, error) {
	noop := func() error { return nil }
	if !cfg.Redis.Enabled() {
		return nil, noop, nil
	}

	rdb, err := redis.Connect(ctx, redis.ClientConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, noop, err
	}
	logger.Info("distributed resolution lock enabled", zap.String("redis", cfg.Redis.Addr))
	return redis.NewLockManager(rdb), rdb.Close, nil
}

// NewEngine builds the resolution engine with the configured price feed
func NewEngine(cfg *config.Config, svc *Services, publisher resolution.Publisher, logger *zap.Logger) (*resolution.Engine, error) {
	feed, err := pricefeed.New(cfg.Feed.Source, cfg.Feed.BaseURL, pricefeed.NewHTTPClient())
	if err != nil {
		return nil, err
	}

	return resolution.NewEngine(resolution.Config{
		Feed:        feed,
		Snapshots:   svc.Snapshots,
		Guesses:     svc.Guesses,
		Scores:      svc.Scores,
		Publisher:   publisher,
		Logger:      logger,
		FeedTimeout: cfg.Resolution.FeedTimeout,
	}), nil
}

// NewScheduler wraps engine in a scheduler configured from cfg
func NewScheduler(cfg *config.Config, engine *resolution.Engine, locker resolution.Locker, logger *zap.Logger) *resolution.Scheduler {
	return resolution.NewScheduler(engine, resolution.SchedulerConfig{
		Interval:   cfg.Resolution.Interval,
		RunOnStart: cfg.Resolution.RunOnStart,
		Locker:     locker,
		LockKey:    cfg.Resolution.LockKey,
		LockTTL:    cfg.Resolution.LockTTL,
		Logger:     logger,
	})
}
