package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newLedger(t *testing.T, policy Policy, products ...Product) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(products...)
	l, err := NewLedger(LedgerDeps{
		Store:  store,
		Policy: policy,
		Clock:  func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) },
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return l, store
}

func tee(stock map[string]int) Product {
	return Product{ID: "tee", Colors: []Color{{Name: "Red"}}, Sizes: []string{"M"}, Stock: stock}
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	l, store := newLedger(t, Policy{}, tee(map[string]int{"M-Red": 5}))
	ctx := context.Background()
	line := Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 3}

	mv, err := l.Reserve(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, Movement{ProductID: "tee", Key: "M-Red", Delta: -3, Balance: 2}, mv)

	mv, err = l.Release(ctx, line)
	require.NoError(t, err)
	assert.Equal(t, 5, mv.Balance)

	p, err := store.Get(ctx, "tee")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock["M-Red"])
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), p.UpdatedAt)
}

func TestReserveShortfall(t *testing.T) {
	l, store := newLedger(t, Policy{}, tee(map[string]int{"M-Red": 2}))
	ctx := context.Background()

	_, err := l.Reserve(ctx, Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 3})

	var shortfall *InsufficientStockError
	require.ErrorAs(t, err, &shortfall)
	assert.Equal(t, 2, shortfall.Available)
	assert.Equal(t, 3, shortfall.Requested)
	p, _ := store.Get(ctx, "tee")
	assert.Equal(t, 2, p.Stock["M-Red"])
}

func TestConcurrentReservesNeverGoNegative(t *testing.T) {
	l, store := newLedger(t, Policy{}, tee(map[string]int{"M-Red": 10}))
	ctx := context.Background()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 1}); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	p, err := store.Get(ctx, "tee")
	require.NoError(t, err)
	assert.Equal(t, 0, p.Stock["M-Red"])
}

func TestUnmanagedProductFallback(t *testing.T) {
	ctx := context.Background()
	line := Line{ProductID: "tee", Size: "M", Qty: 2}

	t.Run("enabled seeds once", func(t *testing.T) {
		l, store := newLedger(t, Policy{UnmanagedStock: 10}, tee(nil))

		a := l.CheckAvailability(ctx, line)
		assert.True(t, a.Available)
		require.NotNil(t, a.AvailableStock)
		assert.Equal(t, 10, *a.AvailableStock)

		mv, err := l.Reserve(ctx, line)
		require.NoError(t, err)
		assert.Equal(t, "M-Red", mv.Key)
		assert.Equal(t, 8, mv.Balance)

		_, err = l.Reserve(ctx, line)
		require.NoError(t, err)
		p, _ := store.Get(ctx, "tee")
		assert.Equal(t, 6, p.Stock["M-Red"], "seeding happens only while the map is empty")
	})

	t.Run("default magnitude", func(t *testing.T) {
		l, _ := newLedger(t, Policy{}, tee(nil))
		a := l.CheckAvailability(ctx, line)
		require.NotNil(t, a.AvailableStock)
		assert.Equal(t, 999, *a.AvailableStock)
	})

	t.Run("disabled", func(t *testing.T) {
		l, _ := newLedger(t, Policy{DisableUnmanagedFallback: true}, tee(nil))

		a := l.CheckAvailability(ctx, line)
		assert.False(t, a.Available)

		_, err := l.Reserve(ctx, line)
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})
}

func TestUnmanagedSeedCoversEveryVariant(t *testing.T) {
	ctx := context.Background()
	shirt := Product{ID: "shirt", Colors: []Color{{Name: "Red"}, {Name: "Blue"}}, Sizes: []string{"S", "M"}, Stock: map[string]int{}}
	l, store := newLedger(t, Policy{}, shirt)

	_, err := l.Reserve(ctx, Line{ProductID: "shirt", Size: "M", Color: "Red", Qty: 1})
	require.NoError(t, err)
	mv, err := l.Reserve(ctx, Line{ProductID: "shirt", Size: "S", Color: "Blue", Qty: 1})
	require.NoError(t, err)
	assert.Equal(t, "S-Blue", mv.Key)
	assert.Equal(t, 998, mv.Balance)

	p, err := store.Get(ctx, "shirt")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"S-Red": 999, "S-Blue": 998, "M-Red": 998, "M-Blue": 999}, p.Stock)

	mv, err = l.Reserve(ctx, Line{ProductID: "shirt", Size: "XL", Color: "Red", Qty: 1})
	assert.ErrorIs(t, err, ErrInsufficientStock, "undeclared sizes are not tracked once the product is seeded")
	assert.Zero(t, mv)
}

func TestReleaseCreatesMissingKey(t *testing.T) {
	l, store := newLedger(t, Policy{}, tee(map[string]int{"L-Red": 1}))
	ctx := context.Background()

	mv, err := l.Release(ctx, Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 2})

	require.NoError(t, err)
	assert.Equal(t, "M", mv.Key)
	p, _ := store.Get(ctx, "tee")
	assert.Equal(t, 2, p.Stock["M"])
}

func TestMissingProductAndBadQuantity(t *testing.T) {
	l, store := newLedger(t, Policy{}, tee(map[string]int{"M-Red": 1}))
	ctx := context.Background()

	_, err := l.Reserve(ctx, Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	store.Delete(ctx, "tee")
	_, err = l.Reserve(ctx, Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)
	_, err = l.Release(ctx, Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 1})
	assert.ErrorIs(t, err, ErrProductNotFound)

	a := l.CheckAvailability(ctx, Line{ProductID: "tee", Size: "M", Qty: 1})
	assert.False(t, a.Available)
	assert.Equal(t, "product not found", a.Reason)
}

func TestUpsertRejectsNegativeStock(t *testing.T) {
	store := NewMemoryStore()
	err := store.Upsert(context.Background(), tee(map[string]int{"M-Red": -1}))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
