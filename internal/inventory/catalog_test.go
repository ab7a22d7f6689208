package inventory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAndSeedCatalog(t *testing.T) {
	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	products, err := DecodeCatalog(strings.NewReader(`[
		{"id":"tee","name":"Tee","colors":["Red"],"sizes":["M"],"stock":{"M-Red":3}},
		{"id":"mug","name":"Mug","colors":[],"sizes":[],"stock":{}}
	]`), now)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, now, products[0].CreatedAt)

	store := NewMemoryStore()
	require.NoError(t, Seed(context.Background(), store, products))

	p, err := store.Get(context.Background(), "tee")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock["M-Red"])
}

func TestSeedStopsOnInvalidProduct(t *testing.T) {
	err := Seed(context.Background(), NewMemoryStore(), []Product{{ID: "bad", Stock: map[string]int{"M": -2}}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = DecodeCatalog(strings.NewReader(`{"id":"x"}`), time.Now())
	assert.Error(t, err)
}
