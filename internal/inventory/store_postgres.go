package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// PostgresStore keeps products in Postgres. Mutate locks the product row
// (FOR UPDATE) inside a savepoint of the ambient unit of work, so a failed
// mutation leaves the caller's transaction usable.
type PostgresStore struct{ DB *pgxpool.Pool }

const productColumns = `id, name, colors, sizes, stock, created_at, updated_at`

func (s *PostgresStore) Get(ctx context.Context, productID string) (Product, error) {
	id, err := normaliseProductID(productID)
	if err != nil {
		return Product{}, err
	}
	row := postgres.Conn(ctx, s.DB).QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id)
	return scanProduct(row, id)
}

func (s *PostgresStore) Mutate(ctx context.Context, productID string, fn func(*Product) error) (Product, error) {
	id, err := normaliseProductID(productID)
	if err != nil {
		return Product{}, err
	}
	var out Product
	err = postgres.Savepoint(ctx, s.DB, func(tx pgx.Tx) error {
		p, err := scanProduct(tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, id), id)
		if err != nil {
			return err
		}
		if err := fn(&p); err != nil {
			return err
		}
		stock, err := json.Marshal(p.Stock)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock=$2, updated_at=$3 WHERE id=$1`, id, stock, p.UpdatedAt); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	return out, nil
}

// Upsert writes the catalog record of p, stock included.
func (s *PostgresStore) Upsert(ctx context.Context, p Product) error {
	id, err := normaliseProductID(p.ID)
	if err != nil {
		return err
	}
	p.ID = id
	if err := p.validate(); err != nil {
		return err
	}
	colors, err := json.Marshal(p.Colors)
	if err != nil {
		return err
	}
	sizes, err := json.Marshal(p.Sizes)
	if err != nil {
		return err
	}
	if p.Stock == nil {
		p.Stock = map[string]int{}
	}
	stock, err := json.Marshal(p.Stock)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = postgres.Conn(ctx, s.DB).Exec(ctx, `
		INSERT INTO products(id, name, colors, sizes, stock, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, colors=EXCLUDED.colors,
			sizes=EXCLUDED.sizes, stock=EXCLUDED.stock, updated_at=EXCLUDED.updated_at`,
		id, p.Name, colors, sizes, stock, now)
	return err
}

func scanProduct(row pgx.Row, id string) (Product, error) {
	var (
		p                    Product
		colors, sizes, stock []byte
	)
	err := row.Scan(&p.ID, &p.Name, &colors, &sizes, &stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	if err != nil {
		return Product{}, err
	}
	if err := json.Unmarshal(colors, &p.Colors); err != nil {
		return Product{}, fmt.Errorf("decode colors of %s: %w", id, err)
	}
	if err := json.Unmarshal(sizes, &p.Sizes); err != nil {
		return Product{}, fmt.Errorf("decode sizes of %s: %w", id, err)
	}
	if err := json.Unmarshal(stock, &p.Stock); err != nil {
		return Product{}, fmt.Errorf("decode stock of %s: %w", id, err)
	}
	if p.Stock == nil {
		p.Stock = map[string]int{}
	}
	return p, nil
}
