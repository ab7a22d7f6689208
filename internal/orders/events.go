package orders

import (
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventStockReleaseFailed = "StockReleaseFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload in a version 1 envelope keyed by orderID.
func NewEnvelope(eventType, producer, orderID, traceID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

type OrderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Email       string `json:"email"`
	UserID      string `json:"user_id,omitempty"`
	Items       []Item `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	Email          string    `json:"email"`
	PreviousStatus Status    `json:"previous_status"`
	CurrentStatus  Status    `json:"current_status"`
	Actor          ActorKind `json:"actor,omitempty"`
	AdminStatus    string    `json:"admin_status,omitempty"`
	ShipperName    string    `json:"shipper_name,omitempty"`
}

// StockReleaseFailedPayload describes one line whose stock could not be
// handed back. The reconciler retries it until MaxAttempts.
type StockReleaseFailedPayload struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Qty       int    `json:"qty"`
	Reason    string `json:"reason"`
	Attempt   int    `json:"attempt"`
}
