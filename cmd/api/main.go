package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/btc-guess/internal/api"
	"github.com/example/btc-guess/internal/app"
	"github.com/example/btc-guess/internal/auth"
	"github.com/example/btc-guess/internal/config"
	"github.com/example/btc-guess/internal/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "[API] failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(cfg.AppEnv, cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("[API] exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateAuth(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("[API] ========================================")
	log.Info("[API] BTC Guess Backend")
	log.Info("[API] ========================================")
	log.Info("[API] configuration",
		zap.String("env", cfg.AppEnv),
		zap.String("store", cfg.Store.Backend),
		zap.String("feed", cfg.Feed.Source),
		zap.Duration("interval", cfg.Resolution.Interval),
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

	svc := app.NewServices(st, cfg.Tables, log)
	engine, err := app.NewEngine(cfg, svc, publisher, log)
	if err != nil {
		return err
	}
	scheduler := app.NewScheduler(cfg, engine, locker, log)

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	router := api.NewRouter(
		api.NewHandlers(svc.Snapshots, svc.Guesses, log),
		api.NewAuthHandlers(svc.Users, jwtService, log),
		jwtService,
		log,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return scheduler.Run(gctx)
	})

	g.Go(func() error {
		log.Info("[API] server started", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("[API] shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("[API] server stopped")
	return nil
}
