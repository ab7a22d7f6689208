package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE_DRIVER", "KAFKA_BROKERS", "STOCK_FALLBACK_ENABLED", "STOCK_FALLBACK_QTY", "LOCK_TIMEOUT", "POSTGRES_MAX_CONNS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.Stock.FallbackEnabled)
	assert.Equal(t, 999, cfg.Stock.FallbackQty)
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.Equal(t, 5, cfg.Reconciler.MaxAttempts)
	assert.Equal(t, 16, cfg.Postgres.MaxConns)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("STOCK_FALLBACK_ENABLED", "false")
	t.Setenv("STOCK_FALLBACK_QTY", "50")
	t.Setenv("LOCK_TIMEOUT", "750ms")
	t.Setenv("RECONCILER_WORKERS", "not-a-number")
	t.Setenv("POSTGRES_MAX_CONNS", "32")

	cfg := Load()

	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.Stock.FallbackEnabled)
	assert.Equal(t, 50, cfg.Stock.FallbackQty)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, 4, cfg.Reconciler.Workers)
	assert.Equal(t, 32, cfg.Postgres.MaxConns)
	assert.Equal(t, 1, cfg.Postgres.MinConns)
}
