package inventory

import "strings"

// DefaultColor is both the placeholder callers send when no color was
// picked and the color used for products that declare none.
const DefaultColor = "default"

// Key builds the canonical stock key of a size/color pair.
func Key(size, color string) string {
	return size + "-" + color
}

// EffectiveColor substitutes the product's first declared color for a
// missing or placeholder color, and DefaultColor when none is declared.
func EffectiveColor(p Product, requested string) string {
	c := strings.TrimSpace(requested)
	if c != "" && c != DefaultColor {
		return c
	}
	if len(p.Colors) > 0 && p.Colors[0].Name != "" {
		return p.Colors[0].Name
	}
	return DefaultColor
}

// DeclaredKeys lists the size-color keys of every declared size and color.
// A product without colors contributes its sizes under DefaultColor.
func DeclaredKeys(p Product) []string {
	colors := make([]string, 0, len(p.Colors))
	for _, c := range p.Colors {
		if c.Name != "" {
			colors = append(colors, c.Name)
		}
	}
	if len(colors) == 0 {
		colors = []string{DefaultColor}
	}
	keys := make([]string, 0, len(p.Sizes)*len(colors))
	for _, size := range p.Sizes {
		for _, c := range colors {
			keys = append(keys, Key(size, c))
		}
	}
	return keys
}

// Resolution is where a line item lands in a product's stock map.
type Resolution struct {
	Key   string
	Color string
	// SizeOnly is set when the size-color key was absent and the size
	// alone is used instead.
	SizeOnly bool
	// Unmanaged is set when the product tracks no stock at all; Key is then
	// the size-color key a self-heal would seed.
	Unmanaged bool
}

// Resolve maps (size, color) to a stock key. Every ledger operation goes
// through it so a reservation and its release always hit the same counter.
func Resolve(p Product, size, color string) Resolution {
	eff := EffectiveColor(p, color)
	key := Key(size, eff)
	switch {
	case len(p.Stock) == 0:
		return Resolution{Key: key, Color: eff, Unmanaged: true}
	case hasKey(p.Stock, key):
		return Resolution{Key: key, Color: eff}
	default:
		return Resolution{Key: size, Color: eff, SizeOnly: true}
	}
}

func hasKey(m map[string]int, k string) bool {
	_, ok := m[k]
	return ok
}
