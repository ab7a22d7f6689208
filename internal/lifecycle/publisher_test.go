package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type topicRecorder struct {
	keys   [][]byte
	values [][]byte
	types  []string
}

func (p *topicRecorder) Publish(key, value []byte, headers ...kafkago.Header) {
	p.keys = append(p.keys, key)
	p.values = append(p.values, value)
	for _, h := range headers {
		if h.Key == "x-event-type" {
			p.types = append(p.types, string(h.Value))
		}
	}
}

func TestKafkaEventsRouteByTopic(t *testing.T) {
	created, status, failed := &topicRecorder{}, &topicRecorder{}, &topicRecorder{}
	var ev Events = &KafkaEvents{
		CreatedTopic:       created,
		StatusTopic:        status,
		ReleaseFailedTopic: failed,
		Service:            "orders-api",
		TraceID:            func(context.Context) string { return "req-9" },
	}
	ctx := context.Background()
	o := orders.Order{ID: "o1", OrderNumber: "ORD-1", Email: "ana@example.com", Status: orders.StatusApproved}

	require.NoError(t, ev.OrderCreated(ctx, o))
	require.NoError(t, ev.StatusChanged(ctx, StatusChange{Order: o, Previous: orders.StatusPending, Actor: orders.ActorAdmin}))
	require.NoError(t, ev.ReleaseFailed(ctx, ReleaseFailure{
		OrderID: "o1",
		Line:    inventory.Line{ProductID: "shirt", Size: "M", Color: "Red", Qty: 2},
		Err:     errors.New("store unavailable"),
	}))

	assert.Equal(t, []string{orders.EventOrderCreated}, created.types)
	assert.Equal(t, []string{orders.EventOrderStatusChanged}, status.types)
	assert.Equal(t, []string{orders.EventStockReleaseFailed}, failed.types)

	var env orders.Envelope
	require.NoError(t, json.Unmarshal(status.values[0], &env))
	assert.Equal(t, "req-9", env.TraceID)
	assert.Equal(t, "o1", env.CorrelationID)
	var p orders.OrderStatusChangedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, orders.StatusPending, p.PreviousStatus)
	assert.Equal(t, orders.StatusApproved, p.CurrentStatus)

	require.NoError(t, json.Unmarshal(failed.values[0], &env))
	var f orders.StockReleaseFailedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &f))
	assert.Equal(t, "store unavailable", f.Reason)
	assert.Equal(t, 2, f.Qty)
}

func TestKafkaEventsSkipsUnsetTopic(t *testing.T) {
	ev := &KafkaEvents{Service: "orders-api"}
	assert.NoError(t, ev.OrderCreated(context.Background(), orders.Order{ID: "o1"}))
}
