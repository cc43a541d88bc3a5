package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/ledger-gate/internal/api"
	"github.com/ayo6706/ledger-gate/internal/api/handler"
	"github.com/ayo6706/ledger-gate/internal/api/middleware"
	"github.com/ayo6706/ledger-gate/internal/config"
	"github.com/ayo6706/ledger-gate/internal/db"
	"github.com/ayo6706/ledger-gate/internal/idempotency"
	"github.com/ayo6706/ledger-gate/internal/observability"
	"github.com/ayo6706/ledger-gate/internal/repository"
	"github.com/ayo6706/ledger-gate/internal/seed"
	"github.com/ayo6706/ledger-gate/internal/service"
	"github.com/ayo6706/ledger-gate/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Run bootstraps the HTTP server, rollover and reconciliation workers,
// blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	data, err := seed.Load(cfg.SeedDir)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	logger.Info("seed loaded",
		zap.String("dir", cfg.SeedDir),
		zap.Int("accounts", len(data.Accounts)),
		zap.Int("limits", len(data.Limits)),
		zap.Int("transactions", len(data.Transactions)),
	)

	overlay, err := db.OpenOverlay(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open overlay: %w", err)
	}
	defer overlay.Close()

	store, err := repository.NewStore(overlay, data)
	if err != nil {
		return fmt.Errorf("init state store: %w", err)
	}
	store.WithLocation(cfg.Location)

	checks := []handler.ReadinessCheck{{Name: "overlay", Check: overlayCheck(overlay)}}

	var decisions service.DecisionStore
	switch cfg.DecisionStore {
	case config.DecisionStorePostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		pgStore := repository.NewPgDecisionStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure decision schema: %w", err)
		}
		decisions = pgStore
		checks = append(checks, handler.ReadinessCheck{Name: "postgres", Check: pool.Ping})
	default:
		decisions = repository.NewBoltDecisionStore(overlay)
	}
	logger.Info("decision ledger ready", zap.String("backend", cfg.DecisionStore))

	var idemStore *idempotency.Store
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		idemStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	} else {
		logger.Info("redis not configured, payments replay from the transfer record only")
	}

	ledger := service.NewDecisionLedgerService(decisions, store.Now)
	defaults := service.LimitPolicy{PerTxnLimit: cfg.DefaultPerTxnLimit, DailyLimit: cfg.DefaultDailyLimit}
	services := api.Services{
		Accounts:       service.NewAccountService(store),
		Limits:         service.NewLimitsService(store, defaults),
		Transfers:      service.NewTransferService(store, defaults, ledger),
		Ledger:         ledger,
		Reconciliation: service.NewReconciliationService(store, data.Accounts),
	}

	rollover := worker.NewRolloverWorker(store)
	rollover.WithPollInterval(cfg.RolloverInterval)
	stopRollover := rollover.Run(ctx)
	logger.Info("rollover worker started", zap.Duration("interval", cfg.RolloverInterval))

	reconciler := worker.NewReconciliationWorker(services.Reconciliation)
	reconciler.WithInterval(cfg.ReconciliationInterval)
	stopReconciler := reconciler.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	router := api.NewRouter(cfg, logger, services, idemStore, checks...)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.Bool("auth", cfg.AuthEnabled()))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopRollover()
	stopReconciler()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func overlayCheck(bdb *bbolt.DB) func(context.Context) error {
	return func(context.Context) error {
		return bdb.View(func(tx *bbolt.Tx) error {
			if tx.Bucket([]byte(db.BucketAccounts)) == nil {
				return fmt.Errorf("bucket %s missing", db.BucketAccounts)
			}
			return nil
		})
	}
}
