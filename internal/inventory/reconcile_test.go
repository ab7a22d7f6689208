package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memDedup map[string]bool

func (d memDedup) Seen(_ context.Context, id string) (bool, error) { return d[id], nil }

func (d memDedup) Mark(_ context.Context, id string) error {
	d[id] = true
	return nil
}

type captured struct {
	key     []byte
	value   []byte
	headers []kafkago.Header
}

type capturePublisher struct{ msgs []captured }

func (p *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.msgs = append(p.msgs, captured{key: key, value: value, headers: headers})
}

type scriptedReleaser struct {
	err   error
	calls []Line
}

func (s *scriptedReleaser) Release(_ context.Context, line Line) (Movement, error) {
	s.calls = append(s.calls, line)
	if s.err != nil {
		return Movement{}, s.err
	}
	return Movement{ProductID: line.ProductID, Key: Key(line.Size, line.Color), Delta: line.Qty, Balance: line.Qty}, nil
}

func releaseFailedMessage(t *testing.T, attempt int) (kafkago.Message, string) {
	t.Helper()
	env, err := orders.NewEnvelope(orders.EventStockReleaseFailed, "orders-api", "o1", "req-1",
		orders.StockReleaseFailedPayload{OrderID: "o1", ProductID: "tee", Size: "M", Color: "Red", Qty: 2, Attempt: attempt})
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Key: []byte("o1"), Value: b}, env.EventID
}

func newReconciler(t *testing.T, rel releaser) (*Reconciler, memDedup, *capturePublisher) {
	dedup := memDedup{}
	pub := &capturePublisher{}
	return &Reconciler{
		Ledger:      rel,
		Dedup:       dedup,
		Retry:       pub,
		MaxAttempts: 3,
		ServiceName: "reconciler",
		Logger:      zaptest.NewLogger(t),
	}, dedup, pub
}

func TestReconcilerReleasesOnce(t *testing.T) {
	rel := &scriptedReleaser{}
	r, dedup, pub := newReconciler(t, rel)
	msg, id := releaseFailedMessage(t, 0)

	require.NoError(t, r.HandleReleaseFailed(context.Background(), msg))
	require.NoError(t, r.HandleReleaseFailed(context.Background(), msg))

	require.Len(t, rel.calls, 1)
	assert.Equal(t, Line{ProductID: "tee", Size: "M", Color: "Red", Qty: 2}, rel.calls[0])
	assert.True(t, dedup[id])
	assert.Empty(t, pub.msgs)
}

func TestReconcilerSchedulesRetry(t *testing.T) {
	rel := &scriptedReleaser{err: errors.New("connection reset")}
	r, _, pub := newReconciler(t, rel)
	msg, _ := releaseFailedMessage(t, 0)

	require.NoError(t, r.HandleReleaseFailed(context.Background(), msg))

	require.Len(t, pub.msgs, 1)
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].value, &env))
	assert.Equal(t, orders.EventStockReleaseFailed, env.EventType)
	assert.Equal(t, "req-1", env.TraceID)
	var p orders.StockReleaseFailedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, 1, p.Attempt)
	assert.Equal(t, "connection reset", p.Reason)

	var attempt string
	for _, h := range pub.msgs[0].headers {
		if h.Key == "x-attempt" {
			attempt = string(h.Value)
		}
	}
	assert.Equal(t, strconv.Itoa(1), attempt)
}

func TestReconcilerGivesUp(t *testing.T) {
	t.Run("retries exhausted", func(t *testing.T) {
		r, dedup, pub := newReconciler(t, &scriptedReleaser{err: errors.New("timeout")})
		msg, id := releaseFailedMessage(t, 2)

		require.NoError(t, r.HandleReleaseFailed(context.Background(), msg))
		assert.Empty(t, pub.msgs)
		assert.True(t, dedup[id])
	})
	t.Run("product gone", func(t *testing.T) {
		r, _, pub := newReconciler(t, &scriptedReleaser{err: ErrProductNotFound})
		msg, _ := releaseFailedMessage(t, 0)

		require.NoError(t, r.HandleReleaseFailed(context.Background(), msg))
		assert.Empty(t, pub.msgs)
	})
}

type brokenDedup struct{}

func (brokenDedup) Seen(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (brokenDedup) Mark(context.Context, string) error { return nil }

func TestReconcilerReportsTransientFailures(t *testing.T) {
	rel := &scriptedReleaser{}
	r, _, _ := newReconciler(t, rel)
	r.Dedup = brokenDedup{}
	msg, _ := releaseFailedMessage(t, 0)

	err := r.HandleReleaseFailed(context.Background(), msg)

	assert.Error(t, err)
	assert.Empty(t, rel.calls, "nothing is released before the dedup check answers")
}

func TestReconcilerIgnoresForeignEvents(t *testing.T) {
	rel := &scriptedReleaser{}
	r, _, _ := newReconciler(t, rel)

	require.NoError(t, r.HandleReleaseFailed(context.Background(), kafkago.Message{Value: []byte("not json")}))
	env, err := orders.NewEnvelope(orders.EventOrderCreated, "orders-api", "o1", "", map[string]string{})
	require.NoError(t, err)
	b, _ := json.Marshal(env)
	require.NoError(t, r.HandleReleaseFailed(context.Background(), kafkago.Message{Value: b}))

	assert.Empty(t, rel.calls)
}
