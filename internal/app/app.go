// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/AccelByte/extend-payplay-rewards/internal/bootstrap"
	"github.com/AccelByte/extend-payplay-rewards/internal/config"
	"github.com/AccelByte/extend-payplay-rewards/internal/server"
	"github.com/AccelByte/extend-payplay-rewards/pkg/broadcast"
	"github.com/AccelByte/extend-payplay-rewards/pkg/handler"
	"github.com/AccelByte/extend-payplay-rewards/pkg/session"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const eventBuffer = 32

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	httpServer        *server.HTTPServer
	grpcServer        *server.GRPCServer
	metricsServer     *server.MetricsServer
	redisClient       *redis.Client
	stores            *bootstrap.Stores
	registry          *session.Registry
	events            *broadcast.Broadcaster
	payouts           *bootstrap.PayoutStack
	shutdownTelemetry func(context.Context) error

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New creates and initializes a new application instance.
//
// Components are initialized in dependency order:
// 1. Telemetry (so every later span has a provider)
// 2. Redis and the audit journal
// 3. Game admission (registry, payment gate)
// 4. Payout stack (settlement, engine, scheduler)
// 5. Servers (HTTP API, gRPC health, metrics)
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}

	// Step 1: Setup telemetry
	if cfg.OtelEnabled {
		shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, cfg.OtelZipkinEndpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		app.shutdownTelemetry = shutdownTelemetry
	}

	// Step 2: Initialize Redis and the audit journal
	if err := app.initRedis(ctx); err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	stores, err := bootstrap.InitStores(ctx, app.redisClient, cfg.AuditDBPath)
	if err != nil {
		return nil, err
	}
	app.stores = stores

	// Step 3: Game admission
	registry, gate := bootstrap.InitGame(app.redisClient, stores, bootstrap.GameConfig{
		EntryFee:        cfg.EntryFee,
		VerifierURL:     cfg.PaymentVerifierURL,
		VerifierTimeout: cfg.PaymentVerifierTimeout,
	})
	app.registry = registry

	// Step 4: Payout stack
	app.events = broadcast.New(eventBuffer)
	app.payouts = bootstrap.InitPayoutStack(stores, app.events, nil, bootstrap.PayoutConfig{
		Interval:      cfg.PayoutInterval,
		TreasuryID:    cfg.TreasuryID,
		UnitDecimals:  cfg.LedgerUnitDecimals,
		LedgerURL:     cfg.LedgerURL,
		LedgerTimeout: cfg.LedgerTimeout,
		MaxRetries:    cfg.SettlementMaxRetries,
		ExplorerURL:   cfg.LedgerExplorerURL,
	})

	// Step 5: Setup servers
	api := handler.NewAPI(gate, registry, stores.Stats, app.payouts.Scheduler, app.events, handler.Config{
		AdminToken: cfg.AdminToken,
	})
	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, api.Router())

	app.grpcServer = server.NewGRPCServer(cfg.GRPCPort, cfg.ServiceName, stores.Redis, stores.Journal)
	if err := app.grpcServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics")
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	logrus.Info("application initialized successfully")

	return app, nil
}

// initRedis initializes the Redis client, retrying the first ping with
// exponential backoff.
func (a *App) initRedis(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:         a.cfg.RedisHost + ":" + a.cfg.RedisPort,
		Password:     a.cfg.RedisPassword,
		DB:           0, // use default DB
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	if a.cfg.RedisRetryDelayMs > 0 {
		b.InitialInterval = time.Duration(a.cfg.RedisRetryDelayMs) * time.Millisecond
	}
	maxRetries := backoff.WithMaxRetries(b, uint64(max(a.cfg.RedisMaxRetries, 0)))

	err := backoff.Retry(
		func() error {
			_, err := client.Ping(ctx).Result()
			if err != nil {
				logrus.Warnf("Redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		backoff.WithContext(maxRetries, ctx),
	)

	if err != nil {
		_ = client.Close()
		return err
	}

	a.redisClient = client
	logrus.Info("Redis client initialized")
	return nil
}

// startSweeper drops sessions older than SESSION_MAX_AGE on every tick.
func (a *App) startSweeper() {
	a.sweepStop = make(chan struct{})
	a.sweepDone = make(chan struct{})

	go func() {
		defer close(a.sweepDone)
		ticker := time.NewTicker(a.cfg.SessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-a.sweepStop:
				return
			case <-ticker.C:
				if n := a.registry.Sweep(a.cfg.SessionMaxAge); n > 0 {
					logrus.Infof("swept %d abandoned sessions", n)
				}
			}
		}
	}()
}

func (a *App) stopSweeper() {
	if a.sweepStop == nil {
		return
	}
	close(a.sweepStop)
	<-a.sweepDone
	a.sweepStop = nil
}
