package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/lifecycle"
	"github.com/ariefcatur/go-storefront-orders/internal/observability"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// storage is the backend selected by STORE_DRIVER.
type storage struct {
	orders   orders.Repository
	products interface {
		inventory.Store
		inventory.Upserter
	}
	unit  lifecycle.UnitOfWork
	close func()
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	if err := seedCatalog(ctx, cfg.SeedProducts, store.products, logger); err != nil {
		return err
	}

	ledger, err := inventory.NewLedger(inventory.LedgerDeps{
		Store: store.products,
		Policy: inventory.Policy{
			DisableUnmanagedFallback: !cfg.Stock.FallbackEnabled,
			UnmanagedStock:           cfg.Stock.FallbackQty,
		},
		Logger: logger.Named("ledger"),
	})
	if err != nil {
		return err
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// producer loops outlive ctx so buffered events are flushed on shutdown
	producers := map[string]*kafkax.Producer{}
	for _, topic := range []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged, orders.TopicStockReleaseFailed} {
		p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024, logger)
		p.Start(context.Background())
		producers[topic] = p
	}
	defer func() {
		for _, p := range producers {
			p.Close()
		}
		for _, p := range producers {
			p.WaitClosed()
		}
	}()

	ctl, err := lifecycle.NewController(lifecycle.ControllerDeps{
		Orders:     store.orders,
		Ledger:     ledger,
		UnitOfWork: store.unit,
		Events: &lifecycle.KafkaEvents{
			CreatedTopic:       producers[orders.TopicOrderCreated],
			StatusTopic:        producers[orders.TopicOrderStatusChanged],
			ReleaseFailedTopic: producers[orders.TopicStockReleaseFailed],
			Service:            cfg.ServiceName,
			TraceID:            middleware.GetReqID,
		},
		LockTimeout: cfg.LockTimeout,
		Logger:      logger.Named("lifecycle"),
	})
	if err != nil {
		return err
	}

	router := httpx.NewRouter(logger.Named("http"))
	(&httpx.OrdersHandler{
		Orders:      ctl,
		Cache:       redisx.StatusCache{R: rdb},
		Idempotency: redisx.Idempotency{R: rdb},
		Logger:      logger.Named("http"),
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		logger.Warn("using in-memory storage; state is lost on restart")
		return storage{
			orders:   orders.NewMemoryRepo(),
			products: inventory.NewMemoryStore(),
			close:    func() {},
		}, nil
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, poolOptions(cfg))
		if err != nil {
			return storage{}, fmt.Errorf("db connect: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return storage{}, err
		}
		return storage{
			orders:   &orders.PostgresRepo{DB: db},
			products: &inventory.PostgresStore{DB: db},
			unit:     &postgres.UnitOfWork{Pool: db},
			close:    db.Close,
		}, nil
	default:
		return storage{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

func seedCatalog(ctx context.Context, path string, store inventory.Upserter, logger *zap.Logger) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	products, err := inventory.DecodeCatalog(f, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := inventory.Seed(ctx, store, products); err != nil {
		return err
	}
	logger.Info("catalog seeded", zap.String("file", path), zap.Int("products", len(products)))
	return nil
}

func poolOptions(cfg config.Config) postgres.PoolOptions {
	return postgres.PoolOptions{
		MaxConns:          int32(cfg.Postgres.MaxConns),
		MinConns:          int32(cfg.Postgres.MinConns),
		HealthCheckPeriod: cfg.Postgres.HealthCheckPeriod,
	}
}
