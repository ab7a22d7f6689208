package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"go.uber.org/zap"
	"strings"
)

const orderNumberAttempts = 3

type CreateOrderCommand struct {
	Actor    orders.Actor
	Email    string         `validate:"required,email"`
	Items    []orders.Item  `validate:"required,min=1,dive"`
	Address  orders.Address `validate:"-"`
	Shipping json.RawMessage
	Payment  json.RawMessage
}

// CreateOrder persists a pending order after checking, without reserving,
// that every line can currently be served.
func (c *Controller) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (orders.Order, error) {
	cmd.Email = strings.TrimSpace(cmd.Email)
	if err := c.validate.Struct(cmd); err != nil {
		return orders.Order{}, fmt.Errorf("%w: %v", orders.ErrInvalidInput, err)
	}
	if err := c.validate.Struct(cmd.Address); err != nil {
		return orders.Order{}, fmt.Errorf("%w: %v", orders.ErrInvalidAddress, err)
	}

	items := make([]orders.Item, len(cmd.Items))
	for i, it := range cmd.Items {
		it.ProductID = strings.TrimSpace(it.ProductID)
		color, err := c.ledger.ResolveColor(ctx, it.ProductID, it.Color)
		if err != nil {
			return orders.Order{}, err
		}
		it.Color = color
		items[i] = it
	}

	if err := c.checkStock(ctx, items); err != nil {
		return orders.Order{}, err
	}

	now := c.now()
	o := orders.Order{
		ID:        c.newID(),
		Status:    orders.StatusPending,
		Items:     items,
		Email:     cmd.Email,
		Address:   cmd.Address,
		Shipping:  cmd.Shipping,
		Payment:   cmd.Payment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cmd.Actor.Kind == orders.ActorUser && cmd.Actor.ID != "" {
		uid := cmd.Actor.ID
		o.UserID = &uid
	}

	var err error
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		o.OrderNumber = c.nextOrderNumber(now)
		err = c.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
			return c.orders.Insert(txCtx, o)
		})
		if !errors.Is(err, orders.ErrConflict) {
			break
		}
		c.logger.Warn("order number collision, retrying", zap.String("order_number", o.OrderNumber))
	}
	if err != nil {
		return orders.Order{}, err
	}

	c.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.Int("items", len(o.Items)))

	if c.events != nil {
		if err := c.events.OrderCreated(ctx, o); err != nil {
			c.logger.Error("publish order created", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return o, nil
}

// checkStock sums the requested quantity per resolved stock key, so lines
// that fall back to the same size-only counter are judged together the way
// a later approval will reserve them.
func (c *Controller) checkStock(ctx context.Context, items []orders.Item) error {
	type counter struct {
		productID, key string
		stock, qty     int
	}
	idx := map[[2]string]int{}
	var counters []counter
	for _, line := range stockLines(items) {
		a, err := c.ledger.Available(ctx, line)
		if err != nil {
			return err
		}
		k := [2]string{line.ProductID, a.Key}
		if i, ok := idx[k]; ok {
			counters[i].qty += line.Qty
			continue
		}
		var stock int
		if a.AvailableStock != nil {
			stock = *a.AvailableStock
		}
		idx[k] = len(counters)
		counters = append(counters, counter{productID: line.ProductID, key: a.Key, stock: stock, qty: line.Qty})
	}
	for _, ct := range counters {
		if ct.qty > ct.stock {
			return &inventory.InsufficientStockError{
				ProductID: ct.productID, Key: ct.key, Available: ct.stock, Requested: ct.qty,
			}
		}
	}
	return nil
}
