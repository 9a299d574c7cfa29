package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/example/btc-guess/internal/config"
	"github.com/example/btc-guess/internal/infrastructure/store"
	"github.com/example/btc-guess/internal/logger"
	"go.uber.org/zap"
)

const setupTimeout = 5 * time.Minute

// setup-tables creates the three collections on the configured backend.
// Running it again is harmless.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[Setup] failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.AppEnv, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("[Setup] failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	tables := cfg.Tables.All()

	switch cfg.Store.Backend {
	case config.BackendDynamoDB:
		client, err := store.NewDynamoClient(ctx, cfg.Store.Region, cfg.Store.Endpoint)
		if err != nil {
			return err
		}
		log.Info("[Setup] provisioning DynamoDB tables",
			zap.String("region", cfg.Store.Region),
			zap.String("endpoint", cfg.Store.Endpoint),
			zap.Strings("tables", tables),
		)
		created, err := store.EnsureDynamoTables(ctx, client, tables...)
		for _, table := range tables {
			if slices.Contains(created, table) {
				log.Info("[Setup] table created", zap.String("table", table))
			} else if err == nil {
				log.Info("[Setup] table already exists", zap.String("table", table))
			}
		}
		return err

	case config.BackendPostgres:
		db, err := store.ConnectPostgres(cfg.Store.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer db.Close()
		if err := store.EnsurePostgresTables(ctx, db, tables...); err != nil {
			return err
		}
		log.Info("[Setup] PostgreSQL tables ready", zap.Strings("tables", tables))
		return nil

	case config.BackendMemory:
		log.Info("[Setup] memory backend needs no tables")
		return nil

	default:
		return fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Store.Backend)
	}
}
