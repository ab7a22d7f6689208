package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

type Upserter interface {
	Upsert(ctx context.Context, p Product) error
}

// DecodeCatalog reads a JSON array of products. Missing timestamps are set
// to now.
func DecodeCatalog(r io.Reader, now time.Time) ([]Product, error) {
	var products []Product
	if err := json.NewDecoder(r).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for i := range products {
		if products[i].CreatedAt.IsZero() {
			products[i].CreatedAt = now
		}
		if products[i].UpdatedAt.IsZero() {
			products[i].UpdatedAt = now
		}
	}
	return products, nil
}

// Seed upserts every product, stopping at the first rejected record.
func Seed(ctx context.Context, store Upserter, products []Product) error {
	for _, p := range products {
		if err := store.Upsert(ctx, p); err != nil {
			return fmt.Errorf("seed product %q: %w", p.ID, err)
		}
	}
	return nil
}
