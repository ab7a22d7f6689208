package lifecycle

import (
	"context"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// KafkaEvents turns committed controller facts into envelope v1 messages,
// one topic per event type, keyed by order id.
type KafkaEvents struct {
	CreatedTopic       Publisher
	StatusTopic        Publisher
	ReleaseFailedTopic Publisher
	Service            string
	// TraceID extracts a request id from ctx; optional.
	TraceID func(context.Context) string
}

func (k *KafkaEvents) OrderCreated(ctx context.Context, o orders.Order) error {
	p := orders.OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Email:       o.Email,
		Items:       o.Items,
	}
	if o.UserID != nil {
		p.UserID = *o.UserID
	}
	return k.publish(ctx, k.CreatedTopic, orders.EventOrderCreated, o.ID, p)
}

func (k *KafkaEvents) StatusChanged(ctx context.Context, c StatusChange) error {
	return k.publish(ctx, k.StatusTopic, orders.EventOrderStatusChanged, c.Order.ID, orders.OrderStatusChangedPayload{
		OrderID:        c.Order.ID,
		OrderNumber:    c.Order.OrderNumber,
		Email:          c.Order.Email,
		PreviousStatus: c.Previous,
		CurrentStatus:  c.Order.Status,
		Actor:          c.Actor,
		AdminStatus:    c.Order.AdminStatus,
		ShipperName:    c.Order.ShipperName,
	})
}

func (k *KafkaEvents) ReleaseFailed(ctx context.Context, f ReleaseFailure) error {
	reason := ""
	if f.Err != nil {
		reason = f.Err.Error()
	}
	return k.publish(ctx, k.ReleaseFailedTopic, orders.EventStockReleaseFailed, f.OrderID, orders.StockReleaseFailedPayload{
		OrderID:   f.OrderID,
		ProductID: f.Line.ProductID,
		Size:      f.Line.Size,
		Color:     f.Line.Color,
		Qty:       f.Line.Qty,
		Reason:    reason,
	})
}

func (k *KafkaEvents) publish(ctx context.Context, to Publisher, eventType, orderID string, payload any) error {
	if to == nil {
		return nil
	}
	var trace string
	if k.TraceID != nil {
		trace = k.TraceID(ctx)
	}
	ev, err := orders.NewEnvelope(eventType, k.Service, orderID, trace, payload)
	if err != nil {
		return err
	}
	to.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
	return nil
}
