package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nickzitzer/pulseplus-economy/internal/api"
	"github.com/nickzitzer/pulseplus-economy/internal/audit"
	"github.com/nickzitzer/pulseplus-economy/internal/cache"
	"github.com/nickzitzer/pulseplus-economy/internal/infra/logging"
	"github.com/nickzitzer/pulseplus-economy/internal/infra/pgutils"
	"github.com/nickzitzer/pulseplus-economy/internal/services/economy"
	"github.com/nickzitzer/pulseplus-economy/pkg/envconf"
	"github.com/nickzitzer/pulseplus-economy/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON("economy-api", cfg.LogLevel)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	dbConns, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Close db connections")

		return dbConns.Close()
	})

	invalidator, err := newInvalidator(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("init cache invalidator: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Economy.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Economy.Timezone, err)
	}

	economySrv := economy.New(dbConns, economy.Config{
		DailyTransferLimit: cfg.Economy.DailyTransferLimit,
		DailyRewardAmount:  cfg.Economy.DailyRewardAmount,
		Location:           loc,
		TxTimeout:          cfg.Economy.TxTimeout,
		Invalidator:        invalidator,
		Auditor:            audit.NewSlogRecorder(slog.Default()),
	})

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, economySrv)

	// Register HTTP server graceful shutdown
	shutdownqueue.Add(func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

// newInvalidator wires the redis-backed invalidator when REDIS_URL is set and
// falls back to a no-op otherwise.
func newInvalidator(ctx context.Context, redisURL string) (cache.Invalidator, error) {
	if redisURL == "" {
		slog.Info("Cache invalidation disabled, no REDIS_URL configured")

		return cache.Noop{}, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	err = rdb.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	shutdownqueue.Add(func(context.Context) error {
		slog.Info("Close redis client")

		return rdb.Close()
	})

	return cache.NewRedisInvalidator(rdb), nil
}
