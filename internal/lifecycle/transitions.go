package lifecycle

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"go.uber.org/zap"
	"strings"
)

type CancelOrderCommand struct {
	OrderID string
	Actor   orders.Actor
	Reason  string
}

// UpdateStatusCommand moves an order to Target. Nil annotations leave the
// stored values untouched.
type UpdateStatusCommand struct {
	OrderID     string
	Actor       orders.Actor
	Target      string
	AdminStatus *string
	ShipperName *string
}

// ApproveOrder reserves stock for every line and marks the order approved.
// Approving an approved order changes nothing.
func (c *Controller) ApproveOrder(ctx context.Context, orderID string, actor orders.Actor) (Result, error) {
	if err := requireAdmin(actor, "approve"); err != nil {
		return Result{}, err
	}
	o, ch, err := c.withOrder(ctx, orderID, func(ctx context.Context, o *orders.Order, ch *change) error {
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %s", orders.ErrAlreadyDelivered, o.ID)
		}
		if o.Status == orders.StatusApproved {
			return nil
		}
		if !o.StockReserved {
			if err := c.reserveAll(ctx, o, ch); err != nil {
				return err
			}
		}
		o.Status = orders.StatusApproved
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return c.finish(ctx, o, ch, actor), nil
}

// RefuseOrder marks the order refused, handing back stock held by an
// approval first.
func (c *Controller) RefuseOrder(ctx context.Context, orderID string, actor orders.Actor) (Result, error) {
	if err := requireAdmin(actor, "refuse"); err != nil {
		return Result{}, err
	}
	o, ch, err := c.withOrder(ctx, orderID, func(ctx context.Context, o *orders.Order, ch *change) error {
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %s", orders.ErrAlreadyDelivered, o.ID)
		}
		if o.Status == orders.StatusRefused {
			return nil
		}
		if o.Status == orders.StatusApproved && o.StockReserved {
			c.releaseAll(ctx, o, ch)
		}
		o.Status = orders.StatusRefused
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return c.finish(ctx, o, ch, actor), nil
}

// CancelOrder cancels on behalf of the owner while the order is pending, or
// of an admin at any non-terminal status.
func (c *Controller) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (orders.Order, error) {
	if cmd.Actor.Kind != orders.ActorAdmin && cmd.Actor.Kind != orders.ActorUser {
		return orders.Order{}, fmt.Errorf("%w: unknown actor kind %q", orders.ErrForbidden, cmd.Actor.Kind)
	}
	o, ch, err := c.withOrder(ctx, cmd.OrderID, func(ctx context.Context, o *orders.Order, ch *change) error {
		admin := cmd.Actor.IsAdmin()
		if !admin && !cmd.Actor.Owns(*o) {
			return fmt.Errorf("%w: order %s belongs to another customer", orders.ErrForbidden, o.ID)
		}
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order %s", orders.ErrAlreadyDelivered, o.ID)
		}
		if o.Status == orders.StatusCancelled {
			return nil
		}
		if !admin && o.Status != orders.StatusPending {
			return fmt.Errorf("%w: order %s is %s", orders.ErrForbidden, o.ID, o.Status)
		}
		if o.Status == orders.StatusApproved && o.StockReserved {
			c.releaseAll(ctx, o, ch)
		}
		c.markCancelled(o, cmd.Actor.Kind, cmd.Reason)
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}
	return c.finish(ctx, o, ch, cmd.Actor).Order, nil
}

// UpdateOrderStatus applies an admin status change checked against the
// transition table. A same-status request only updates the annotations.
func (c *Controller) UpdateOrderStatus(ctx context.Context, cmd UpdateStatusCommand) (Result, error) {
	if err := requireAdmin(cmd.Actor, "update status of"); err != nil {
		return Result{}, err
	}
	target, err := orders.ParseStatus(cmd.Target)
	if err != nil {
		return Result{}, err
	}
	o, ch, err := c.withOrder(ctx, cmd.OrderID, func(ctx context.Context, o *orders.Order, ch *change) error {
		t, err := orders.ValidateTransition(o.Status, target)
		if err != nil {
			return err
		}
		if cmd.AdminStatus != nil {
			o.AdminStatus = strings.TrimSpace(*cmd.AdminStatus)
		}
		if cmd.ShipperName != nil {
			o.ShipperName = strings.TrimSpace(*cmd.ShipperName)
		}
		if !t.Changed() {
			return nil
		}
		switch {
		case t.To == orders.StatusApproved && !o.StockReserved:
			if err := c.reserveAll(ctx, o, ch); err != nil {
				return err
			}
		case t.RequiresStockRelease && o.StockReserved:
			c.releaseAll(ctx, o, ch)
		}
		if t.To == orders.StatusCancelled {
			c.markCancelled(o, orders.ActorAdmin, "")
		}
		o.Status = t.To
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return c.finish(ctx, o, ch, cmd.Actor), nil
}

func (c *Controller) markCancelled(o *orders.Order, by orders.ActorKind, reason string) {
	now := c.now()
	o.Status = orders.StatusCancelled
	o.CancelledAt = &now
	o.CancelledBy = &by
	if reason = strings.TrimSpace(reason); reason != "" {
		o.CancelReason = reason
	}
}

// finish runs the post-commit work and builds the caller's result.
func (c *Controller) finish(ctx context.Context, o orders.Order, ch *change, actor orders.Actor) Result {
	changed := ch.prev != o.Status
	if changed {
		c.logger.Info("order status changed",
			zap.String("order_id", o.ID),
			zap.String("from", string(ch.prev)),
			zap.String("to", string(o.Status)),
			zap.String("actor", string(actor.Kind)),
			zap.Bool("stock_reserved", o.StockReserved))
	}
	c.afterCommit(ctx, o, ch, actor)
	return Result{Order: o, StatusChanged: changed}
}

func requireAdmin(actor orders.Actor, action string) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only admins may %s orders", orders.ErrForbidden, action)
	}
	return nil
}
