package orders

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Repository owns order records. It enforces existence and uniqueness only;
// lifecycle policy lives in the caller.
type Repository interface {
	Insert(ctx context.Context, o Order) error
	// FindByID loads an order. Inside a unit of work the row stays locked
	// until the transaction ends.
	FindByID(ctx context.Context, id string) (Order, error)
	Update(ctx context.Context, o Order) error
	ListByEmail(ctx context.Context, email string) ([]Order, error)
	// List returns every order, newest first.
	List(ctx context.Context) ([]Order, error)
}

// MemoryRepo is a process-local Repository used for development and tests.
type MemoryRepo struct {
	mu       sync.RWMutex
	byID     map[string]Order
	byNumber map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Order{}, byNumber: map[string]string{}}
}

func (r *MemoryRepo) Insert(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[o.ID]; ok {
		return fmt.Errorf("%w: order id %s exists", ErrConflict, o.ID)
	}
	if _, ok := r.byNumber[o.OrderNumber]; ok {
		return fmt.Errorf("%w: order number %s exists", ErrConflict, o.OrderNumber)
	}
	r.byID[o.ID] = o.Clone()
	r.byNumber[o.OrderNumber] = o.ID
	return nil
}

func (r *MemoryRepo) FindByID(_ context.Context, id string) (Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.byID[id]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}
	return o.Clone(), nil
}

func (r *MemoryRepo) Update(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[o.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, o.ID)
	}
	r.byID[o.ID] = o.Clone()
	return nil
}

func (r *MemoryRepo) ListByEmail(_ context.Context, email string) ([]Order, error) {
	needle := NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Order
	for _, o := range r.byID {
		if NormalizeEmail(o.Email) == needle {
			out = append(out, o.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryRepo) List(_ context.Context) ([]Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Order, 0, len(r.byID))
	for _, o := range r.byID {
		out = append(out, o.Clone())
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(list []Order) {
	slices.SortFunc(list, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}
