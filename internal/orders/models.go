package orders

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

type ActorKind string

const (
	ActorUser  ActorKind = "user"
	ActorAdmin ActorKind = "admin"
)

// Actor is the authenticated caller as established upstream. A guest is a
// user actor without an ID.
type Actor struct {
	Kind  ActorKind `json:"kind"`
	ID    string    `json:"id,omitempty"`
	Email string    `json:"email,omitempty"`
}

func (a Actor) IsAdmin() bool { return a.Kind == ActorAdmin }

// Owns reports whether a non-admin actor owns the order: by user id for
// registered orders, by normalised email for guest orders.
func (a Actor) Owns(o Order) bool {
	if o.UserID != nil && *o.UserID != "" {
		return a.ID != "" && a.ID == *o.UserID
	}
	return a.Email != "" && NormalizeEmail(a.Email) == NormalizeEmail(o.Email)
}

type Item struct {
	ProductID string `json:"productId" validate:"required"`
	Name      string `json:"name"`
	Price     int64  `json:"price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Image     string `json:"image,omitempty"`
}

type Address struct {
	FullName   string `json:"fullName" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone,omitempty"`
}

type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"orderNumber"`
	Status        Status          `json:"status"`
	Items         []Item          `json:"items"`
	Email         string          `json:"email"`
	UserID        *string         `json:"userId"`
	Address       Address         `json:"address"`
	Shipping      json.RawMessage `json:"shipping,omitempty"`
	Payment       json.RawMessage `json:"payment,omitempty"`
	AdminStatus   string          `json:"adminStatus,omitempty"`
	ShipperName   string          `json:"shipperName,omitempty"`
	StockReserved bool            `json:"stockReserved"`
	CancelReason  string          `json:"cancelReason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	CancelledAt   *time.Time      `json:"cancelledAt"`
	CancelledBy   *ActorKind      `json:"cancelledBy"`
}

// Clone returns a copy that shares no mutable state with o.
func (o Order) Clone() Order {
	c := o
	c.Items = slices.Clone(o.Items)
	c.Shipping = slices.Clone(o.Shipping)
	c.Payment = slices.Clone(o.Payment)
	if o.UserID != nil {
		v := *o.UserID
		c.UserID = &v
	}
	if o.CancelledAt != nil {
		v := *o.CancelledAt
		c.CancelledAt = &v
	}
	if o.CancelledBy != nil {
		v := *o.CancelledBy
		c.CancelledBy = &v
	}
	return c
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
