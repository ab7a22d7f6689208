package inventory

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"strings"
	"time"
)

const defaultUnmanagedStock = 999

// Store persists products. Mutate must give fn exclusive access to the
// product for the duration of the call and persist it only when fn returns
// nil.
type Store interface {
	Get(ctx context.Context, productID string) (Product, error)
	Mutate(ctx context.Context, productID string, fn func(*Product) error) (Product, error)
}

// Policy controls how products without any stock data are treated. The zero
// value keeps the legacy behaviour: such products are sellable and seeded
// with UnmanagedStock units on first reservation.
type Policy struct {
	DisableUnmanagedFallback bool
	UnmanagedStock           int
}

func (p Policy) fallbackStock() int {
	if p.UnmanagedStock <= 0 {
		return defaultUnmanagedStock
	}
	return p.UnmanagedStock
}

type LedgerDeps struct {
	Store  Store
	Policy Policy
	Clock  func() time.Time
	Logger *zap.Logger
}

// Ledger owns per-(size,color) stock counters. Each operation is atomic with
// respect to one product.
type Ledger struct {
	store  Store
	policy Policy
	clock  func() time.Time
	logger *zap.Logger
}

// Movement describes an applied stock change.
type Movement struct {
	ProductID string
	Key       string
	Delta     int
	Balance   int
}

func NewLedger(deps LedgerDeps) (*Ledger, error) {
	if deps.Store == nil {
		return nil, errors.New("ledger: store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:  deps.Store,
		policy: deps.Policy,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// ResolveColor returns the color a line item is booked under.
func (l *Ledger) ResolveColor(ctx context.Context, productID, color string) (string, error) {
	p, err := l.store.Get(ctx, productID)
	if err != nil {
		return "", err
	}
	return EffectiveColor(p, color), nil
}

// CheckAvailability never mutates and never fails; problems are reported
// through Reason.
func (l *Ledger) CheckAvailability(ctx context.Context, line Line) Availability {
	a, err := l.Available(ctx, line)
	switch {
	case err == nil:
		return a
	case errors.Is(err, ErrInvalidQuantity):
		return Availability{Reason: "quantity must be positive"}
	case errors.Is(err, ErrProductNotFound):
		return Availability{Reason: "product not found"}
	default:
		l.logger.Error("stock lookup failed", zap.String("product_id", line.ProductID), zap.Error(err))
		return Availability{Reason: "stock lookup failed"}
	}
}

// Available is CheckAvailability for callers that must tell a shortfall
// apart from a failed lookup.
func (l *Ledger) Available(ctx context.Context, line Line) (Availability, error) {
	if line.Qty <= 0 {
		return Availability{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, line.Qty)
	}
	p, err := l.store.Get(ctx, line.ProductID)
	if err != nil {
		return Availability{}, err
	}

	res := Resolve(p, line.Size, line.Color)
	if res.Unmanaged {
		if l.policy.DisableUnmanagedFallback {
			return Availability{AvailableStock: intPtr(0), Reason: "stock not tracked", Key: res.Key}, nil
		}
		stock := l.policy.fallbackStock()
		l.logger.Warn("unmanaged product, assuming fallback stock",
			zap.String("product_id", p.ID), zap.String("key", res.Key), zap.Int("fallback_stock", stock))
		return verdict(res.Key, stock, line.Qty), nil
	}
	return verdict(res.Key, p.Stock[res.Key], line.Qty), nil
}

func verdict(key string, stock, qty int) Availability {
	a := Availability{Available: stock >= qty, AvailableStock: intPtr(stock), Key: key}
	if !a.Available {
		a.Reason = "insufficient stock"
	}
	return a
}

// Reserve decrements the resolved key by line.Qty or fails with
// *InsufficientStockError. An unmanaged product first has every declared
// size-color key, and the requested one, seeded with the fallback stock,
// unless the policy disables it.
func (l *Ledger) Reserve(ctx context.Context, line Line) (Movement, error) {
	if line.Qty <= 0 {
		return Movement{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, line.Qty)
	}
	var mv Movement
	_, err := l.store.Mutate(ctx, line.ProductID, func(p *Product) error {
		res := Resolve(*p, line.Size, line.Color)
		if res.Unmanaged {
			if l.policy.DisableUnmanagedFallback {
				return &InsufficientStockError{ProductID: p.ID, Key: res.Key, Available: 0, Requested: line.Qty}
			}
			seed := l.policy.fallbackStock()
			keys := append(DeclaredKeys(*p), res.Key)
			l.logger.Warn("seeding unmanaged product stock",
				zap.String("product_id", p.ID), zap.Strings("keys", keys), zap.Int("seed", seed))
			for _, k := range keys {
				p.Stock[k] = seed
			}
		}
		current := p.Stock[res.Key]
		if current < line.Qty {
			return &InsufficientStockError{ProductID: p.ID, Key: res.Key, Available: current, Requested: line.Qty}
		}
		p.Stock[res.Key] = current - line.Qty
		p.UpdatedAt = l.clock()
		mv = Movement{ProductID: p.ID, Key: res.Key, Delta: -line.Qty, Balance: p.Stock[res.Key]}
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	return mv, nil
}

// Release increments the resolved key by line.Qty, creating it when absent.
// It does not deduplicate: callers release each reservation exactly once.
func (l *Ledger) Release(ctx context.Context, line Line) (Movement, error) {
	if line.Qty <= 0 {
		return Movement{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, line.Qty)
	}
	var mv Movement
	_, err := l.store.Mutate(ctx, line.ProductID, func(p *Product) error {
		res := Resolve(*p, line.Size, line.Color)
		p.Stock[res.Key] += line.Qty
		p.UpdatedAt = l.clock()
		mv = Movement{ProductID: p.ID, Key: res.Key, Delta: line.Qty, Balance: p.Stock[res.Key]}
		return nil
	})
	if err != nil {
		return Movement{}, err
	}
	return mv, nil
}

func normaliseProductID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty product id", ErrProductNotFound)
	}
	return id, nil
}

func intPtr(v int) *int { return &v }
