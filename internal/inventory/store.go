package inventory

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/keylock"
	"sync"
)

// MemoryStore keeps products in process. Mutations are serialized per
// product; reads never observe a half-applied mutation.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]Product
	locks    *keylock.Map
}

func NewMemoryStore(products ...Product) *MemoryStore {
	s := &MemoryStore{products: map[string]Product{}, locks: keylock.New()}
	for _, p := range products {
		s.products[p.ID] = p.Clone()
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, productID string) (Product, error) {
	id, err := normaliseProductID(productID)
	if err != nil {
		return Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Mutate(ctx context.Context, productID string, fn func(*Product) error) (Product, error) {
	id, err := normaliseProductID(productID)
	if err != nil {
		return Product{}, err
	}
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return Product{}, err
	}
	defer unlock()

	p, err := s.Get(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if err := fn(&p); err != nil {
		return Product{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	s.products[id] = p.Clone()
	return p, nil
}

// Upsert replaces the catalog record of p, stock included.
func (s *MemoryStore) Upsert(_ context.Context, p Product) error {
	id, err := normaliseProductID(p.ID)
	if err != nil {
		return err
	}
	p.ID = id
	if err := p.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id] = p.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, productID)
}
