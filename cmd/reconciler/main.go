package main

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/observability"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName+"-reconciler")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("reconciler exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	if cfg.StoreDriver != config.DriverPostgres {
		return fmt.Errorf("reconciler needs STORE_DRIVER=%s, got %q", config.DriverPostgres, cfg.StoreDriver)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, poolOptions(cfg))
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	ledger, err := inventory.NewLedger(inventory.LedgerDeps{
		Store: &inventory.PostgresStore{DB: db},
		Policy: inventory.Policy{
			DisableUnmanagedFallback: !cfg.Stock.FallbackEnabled,
			UnmanagedStock:           cfg.Stock.FallbackQty,
		},
		Logger: logger.Named("ledger"),
	})
	if err != nil {
		return err
	}

	retry := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockReleaseFailed, 256, logger)
	retry.Start(context.Background())
	defer func() {
		retry.Close()
		retry.WaitClosed()
	}()

	service := cfg.ServiceName + "-reconciler"
	rec := &inventory.Reconciler{
		Ledger:      ledger,
		Dedup:       redisx.Dedup{R: rdb, Service: service},
		Retry:       retry,
		MaxAttempts: cfg.Reconciler.MaxAttempts,
		ServiceName: service,
		Logger:      logger.Named("reconciler"),
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Reconciler.Group, orders.TopicStockReleaseFailed, cfg.Reconciler.Workers, logger)

	logger.Info("reconciler consuming",
		zap.String("topic", orders.TopicStockReleaseFailed),
		zap.String("group", cfg.Reconciler.Group),
		zap.Int("workers", cfg.Reconciler.Workers))
	return cons.Start(ctx, rec.HandleReleaseFailed)
}

func poolOptions(cfg config.Config) postgres.PoolOptions {
	return postgres.PoolOptions{
		MaxConns:          int32(cfg.Postgres.MaxConns),
		MinConns:          int32(cfg.Postgres.MinConns),
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
	}
}
