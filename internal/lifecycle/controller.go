// Package lifecycle drives orders through their statuses and keeps the
// product ledger consistent with which orders hold stock.
package lifecycle

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/keylock"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"slices"
	"strings"
	"time"
)

const defaultLockTimeout = 10 * time.Second

// StockLedger is the subset of *inventory.Ledger the controller needs.
type StockLedger interface {
	ResolveColor(ctx context.Context, productID, color string) (string, error)
	Available(ctx context.Context, line inventory.Line) (inventory.Availability, error)
	CheckAvailability(ctx context.Context, line inventory.Line) inventory.Availability
	Reserve(ctx context.Context, line inventory.Line) (inventory.Movement, error)
	Release(ctx context.Context, line inventory.Line) (inventory.Movement, error)
}

// UnitOfWork groups the reads and writes of one use case.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(context.Context) error) error
}

// Events receives committed facts. It is called after the transaction has
// committed and the order lock is released.
type Events interface {
	OrderCreated(ctx context.Context, o orders.Order) error
	StatusChanged(ctx context.Context, c StatusChange) error
	ReleaseFailed(ctx context.Context, f ReleaseFailure) error
}

type StatusChange struct {
	Order    orders.Order
	Previous orders.Status
	Actor    orders.ActorKind
}

// ReleaseFailure is a line whose stock could not be handed back while the
// order status change went through anyway.
type ReleaseFailure struct {
	OrderID string
	Line    inventory.Line
	Err     error
}

type ControllerDeps struct {
	Orders      orders.Repository
	Ledger      StockLedger
	UnitOfWork  UnitOfWork
	Events      Events
	Locks       *keylock.Map
	LockTimeout time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      *zap.Logger
}

// Controller is the only writer of order status.
type Controller struct {
	orders      orders.Repository
	ledger      StockLedger
	unitOfWork  UnitOfWork
	atomic      bool
	events      Events
	locks       *keylock.Map
	lockTimeout time.Duration
	clock       func() time.Time
	newID       func() string
	validate    *validator.Validate
	logger      *zap.Logger
}

// Result is returned by status-changing operations. StatusChanged is false
// when the order already had the requested status.
type Result struct {
	Order         orders.Order `json:"order"`
	StatusChanged bool         `json:"statusChanged"`
}

func NewController(deps ControllerDeps) (*Controller, error) {
	if deps.Orders == nil {
		return nil, errors.New("controller: order repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("controller: ledger is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	locks := deps.Locks
	if locks == nil {
		locks = keylock.New()
	}
	lockTimeout := deps.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Controller{
		orders:      deps.Orders,
		ledger:      deps.Ledger,
		unitOfWork:  unit,
		atomic:      isAtomic(unit),
		events:      deps.Events,
		locks:       locks,
		lockTimeout: lockTimeout,
		clock:       func() time.Time { return clock().UTC() },
		newID:       idGen,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}, nil
}

// change accumulates the stock side effects of one use case so they can be
// undone if persisting the order fails, and reported after commit.
type change struct {
	prev     orders.Status
	reserved []inventory.Line
	released []inventory.Line
	failures []ReleaseFailure
}

// withOrder serializes fn with every other mutation of orderID, runs it in
// one unit of work and persists the order. The order lock is released
// before withOrder returns.
func (c *Controller) withOrder(ctx context.Context, orderID string, fn func(context.Context, *orders.Order, *change) error) (orders.Order, *change, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return orders.Order{}, nil, fmt.Errorf("%w: order id is required", orders.ErrInvalidInput)
	}

	unlock, err := c.lockOrder(ctx, orderID)
	if err != nil {
		return orders.Order{}, nil, err
	}
	defer unlock()

	var (
		out orders.Order
		ch  *change
	)
	err = c.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		o, err := c.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		ch = &change{prev: o.Status}
		if err := fn(txCtx, &o, ch); err != nil {
			return err
		}
		if ch.prev == orders.StatusCancelled && o.Status != orders.StatusCancelled {
			o.CancelledAt, o.CancelledBy, o.CancelReason = nil, nil, ""
		}
		o.UpdatedAt = c.now()
		if err := c.orders.Update(txCtx, o); err != nil {
			if !c.atomic {
				c.undo(txCtx, o.ID, ch)
			}
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, nil, err
	}
	return out, ch, nil
}

func (c *Controller) lockOrder(ctx context.Context, orderID string) (func(), error) {
	lctx, cancel := context.WithTimeout(ctx, c.lockTimeout)
	defer cancel()
	unlock, err := c.locks.Lock(lctx, "order:"+orderID)
	if err != nil {
		return nil, fmt.Errorf("order %s is busy: %w", orderID, err)
	}
	return unlock, nil
}

// reserveAll takes stock for every line of o or for none: a failure hands
// back what this call already reserved before returning.
func (c *Controller) reserveAll(ctx context.Context, o *orders.Order, ch *change) error {
	for _, line := range stockLines(o.Items) {
		if _, err := c.ledger.Reserve(ctx, line); err != nil {
			c.rollback(ctx, o.ID, ch.reserved)
			ch.reserved = nil
			return err
		}
		ch.reserved = append(ch.reserved, line)
	}
	o.StockReserved = true
	return nil
}

// releaseAll hands back the stock held by o. Failures do not stop the status
// change; they are logged and reported for reconciliation after commit.
func (c *Controller) releaseAll(ctx context.Context, o *orders.Order, ch *change) {
	for _, line := range stockLines(o.Items) {
		if _, err := c.ledger.Release(ctx, line); err != nil {
			c.logger.Error("stock release failed",
				zap.String("order_id", o.ID),
				zap.String("product_id", line.ProductID),
				zap.String("size", line.Size),
				zap.String("color", line.Color),
				zap.Int("qty", line.Qty),
				zap.Error(err))
			ch.failures = append(ch.failures, ReleaseFailure{OrderID: o.ID, Line: line, Err: err})
			continue
		}
		ch.released = append(ch.released, line)
	}
	o.StockReserved = false
}

func (c *Controller) rollback(ctx context.Context, orderID string, reserved []inventory.Line) {
	for i := len(reserved) - 1; i >= 0; i-- {
		line := reserved[i]
		if _, err := c.ledger.Release(ctx, line); err != nil {
			c.logger.Error("reservation rollback failed",
				zap.String("order_id", orderID),
				zap.String("product_id", line.ProductID),
				zap.Int("qty", line.Qty),
				zap.Error(err))
			continue
		}
		c.logger.Warn("reservation rolled back",
			zap.String("order_id", orderID),
			zap.String("product_id", line.ProductID),
			zap.Int("qty", line.Qty))
	}
}

// undo reverts the stock effects of a use case whose order write failed.
func (c *Controller) undo(ctx context.Context, orderID string, ch *change) {
	c.rollback(ctx, orderID, ch.reserved)
	for _, line := range ch.released {
		if _, err := c.ledger.Reserve(ctx, line); err != nil {
			c.logger.Error("re-reserve after failed order write",
				zap.String("order_id", orderID),
				zap.String("product_id", line.ProductID),
				zap.Error(err))
		}
	}
	ch.reserved, ch.released, ch.failures = nil, nil, nil
}

// afterCommit publishes what the use case changed. Runs without locks.
func (c *Controller) afterCommit(ctx context.Context, o orders.Order, ch *change, actor orders.Actor) {
	if c.events == nil {
		return
	}
	for _, f := range ch.failures {
		if err := c.events.ReleaseFailed(ctx, f); err != nil {
			c.logger.Error("publish release failure", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	if ch.prev == o.Status {
		return
	}
	if err := c.events.StatusChanged(ctx, StatusChange{Order: o, Previous: ch.prev, Actor: actor.Kind}); err != nil {
		c.logger.Error("publish status change", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (c *Controller) now() time.Time {
	return c.clock()
}

// nextOrderNumber is human facing: ORD-<date>-<8 chars of ulid entropy>.
func (c *Controller) nextOrderNumber(now time.Time) string {
	id := ulid.Make().String()
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), id[len(id)-8:])
}

// stockLines merges items booked under the same product, size and color and
// orders them by product so concurrent use cases lock rows in one order.
func stockLines(items []orders.Item) []inventory.Line {
	type k struct{ product, size, color string }
	idx := map[k]int{}
	var lines []inventory.Line
	for _, it := range items {
		key := k{it.ProductID, it.Size, it.Color}
		if i, ok := idx[key]; ok {
			lines[i].Qty += it.Quantity
			continue
		}
		idx[key] = len(lines)
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Size: it.Size, Color: it.Color, Qty: it.Quantity})
	}
	slices.SortStableFunc(lines, func(a, b inventory.Line) int {
		return cmp.Or(
			strings.Compare(a.ProductID, b.ProductID),
			strings.Compare(a.Size, b.Size),
			strings.Compare(a.Color, b.Color),
		)
	})
	return lines
}

// isAtomic is true for units of work that roll back every write of a failed
// use case themselves, leaving nothing to compensate.
func isAtomic(u UnitOfWork) bool {
	a, ok := u.(interface{ Atomic() bool })
	return ok && a.Atomic()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
