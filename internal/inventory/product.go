package inventory

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Color is a declared product color. The catalog stores either a bare name
// or a {name, images} record; both decode into Color.
type Color struct {
	Name   string   `json:"name"`
	Images []string `json:"images,omitempty"`
}

func (c *Color) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*c = Color{Name: name}
		return nil
	}
	type record Color
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return fmt.Errorf("color: %w", err)
	}
	*c = Color(r)
	return nil
}

type Product struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Colors    []Color        `json:"colors"`
	Sizes     []string       `json:"sizes"`
	Stock     map[string]int `json:"stock"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (p Product) Clone() Product {
	c := p
	c.Colors = make([]Color, len(p.Colors))
	for i, col := range p.Colors {
		c.Colors[i] = Color{Name: col.Name, Images: slices.Clone(col.Images)}
	}
	c.Sizes = slices.Clone(p.Sizes)
	c.Stock = maps.Clone(p.Stock)
	if c.Stock == nil {
		c.Stock = map[string]int{}
	}
	return c
}

// validate rejects catalog records that would break the non-negative
// stock invariant.
func (p Product) validate() error {
	for k, v := range p.Stock {
		if v < 0 {
			return fmt.Errorf("%w: product %s key %q has negative stock %d", ErrInvalidQuantity, p.ID, k, v)
		}
	}
	return nil
}

// Line is one stock-affecting unit of an order: a quantity of a product in
// a given size and color.
type Line struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Qty       int    `json:"qty"`
}

// Availability is the answer to CheckStock. AvailableStock is omitted when
// the product could not be read; Key is the resolved stock key.
type Availability struct {
	Available      bool   `json:"available"`
	AvailableStock *int   `json:"availableStock,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Key            string `json:"-"`
}
