package lifecycle

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"strings"
	"time"
)

// StatusView is the public, unauthenticated projection of an order.
type StatusView struct {
	OrderID     string        `json:"order_id"`
	OrderNumber string        `json:"order_number"`
	Status      orders.Status `json:"status"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (c *Controller) GetOrder(ctx context.Context, orderID string, actor orders.Actor) (orders.Order, error) {
	o, err := c.orders.FindByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return orders.Order{}, err
	}
	if !actor.IsAdmin() && !actor.Owns(o) {
		return orders.Order{}, fmt.Errorf("%w: order %s", orders.ErrForbidden, o.ID)
	}
	return o, nil
}

// ReplayOrder loads an order without an ownership check. It serves repeated
// create requests whose Idempotency-Key already proved who created it.
func (c *Controller) ReplayOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return c.orders.FindByID(ctx, strings.TrimSpace(orderID))
}

// ListOrdersByEmail matches email case-insensitively. Customers may only
// list their own address.
func (c *Controller) ListOrdersByEmail(ctx context.Context, email string, actor orders.Actor) ([]orders.Order, error) {
	email = orders.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", orders.ErrInvalidInput)
	}
	if !actor.IsAdmin() && orders.NormalizeEmail(actor.Email) != email {
		return nil, fmt.Errorf("%w: orders of %s", orders.ErrForbidden, email)
	}
	return c.orders.ListByEmail(ctx, email)
}

// ListOrders returns every order, newest first.
func (c *Controller) ListOrders(ctx context.Context, actor orders.Actor) ([]orders.Order, error) {
	if err := requireAdmin(actor, "list all"); err != nil {
		return nil, err
	}
	return c.orders.List(ctx)
}

func (c *Controller) OrderStatus(ctx context.Context, orderID string) (StatusView, error) {
	o, err := c.orders.FindByID(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{OrderID: o.ID, OrderNumber: o.OrderNumber, Status: o.Status, UpdatedAt: o.UpdatedAt}, nil
}

// CheckStock never fails; problems are reported in the Reason field.
func (c *Controller) CheckStock(ctx context.Context, line inventory.Line) inventory.Availability {
	return c.ledger.CheckAvailability(ctx, line)
}
