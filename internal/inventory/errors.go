package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound indicates the product no longer exists in the catalog.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrInsufficientStock indicates the requested quantity exceeds availability.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
)

// InsufficientStockError reports the shortfall on one stock key.
type InsufficientStockError struct {
	ProductID string
	Key       string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: product %s key %q available %d requested %d",
		ErrInsufficientStock, e.ProductID, e.Key, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }
