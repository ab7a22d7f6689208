package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"strconv"
)

const defaultMaxAttempts = 5

// Dedup remembers processed event ids.
type Dedup interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type releaser interface {
	Release(ctx context.Context, line Line) (Movement, error)
}

// Reconciler replays stock releases that failed while an order left the
// approved status, so the discrepancy is retried instead of lost.
type Reconciler struct {
	Ledger      releaser
	Dedup       Dedup
	Retry       Publisher // republishes to the release-failed topic
	MaxAttempts int
	ServiceName string
	Logger      *zap.Logger
}

// HandleReleaseFailed is installed as the consumer handler. It returns an
// error only for transient failures, which the consumer retries in place.
func (r *Reconciler) HandleReleaseFailed(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		r.logger().Error("drop undecodable envelope", zap.Error(err), zap.Int64("offset", m.Offset))
		return nil
	}
	if env.EventType != orders.EventStockReleaseFailed {
		return nil
	}

	if seen, err := r.Dedup.Seen(ctx, env.EventID); err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	} else if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.StockReleaseFailedPayload](env.Payload)
	if err != nil {
		r.logger().Error("drop undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	log := r.logger().With(
		zap.String("event_id", env.EventID),
		zap.String("order_id", p.OrderID),
		zap.String("product_id", p.ProductID),
		zap.Int("qty", p.Qty),
		zap.Int("attempt", p.Attempt),
	)

	mv, err := r.Ledger.Release(ctx, Line{ProductID: p.ProductID, Size: p.Size, Color: p.Color, Qty: p.Qty})
	switch {
	case err == nil:
		log.Info("stock release reconciled", zap.String("key", mv.Key), zap.Int("balance", mv.Balance))
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrInvalidQuantity):
		log.Error("stock release cannot be reconciled", zap.Error(err))
	case p.Attempt+1 < r.maxAttempts():
		p.Attempt++
		p.Reason = err.Error()
		if perr := r.republish(env, p); perr != nil {
			return perr
		}
		log.Warn("stock release retry scheduled", zap.Error(err))
	default:
		log.Error("stock release retries exhausted", zap.Error(err))
	}
	return r.Dedup.Mark(ctx, env.EventID)
}

func (r *Reconciler) republish(prev orders.Envelope, p orders.StockReleaseFailedPayload) error {
	ev, err := orders.NewEnvelope(orders.EventStockReleaseFailed, r.ServiceName, p.OrderID, prev.TraceID, p)
	if err != nil {
		return err
	}
	r.Retry.Publish(orders.PartitionKey(p.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockReleaseFailed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		kafkago.Header{Key: "x-attempt", Value: []byte(strconv.Itoa(p.Attempt))},
	)
	return nil
}

func (r *Reconciler) maxAttempts() int {
	if r.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return r.MaxAttempts
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
