package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventOrderItemsChanged  = "OrderItemsChanged"
	EventPaymentRecorded    = "PaymentRecorded"
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

// Publisher delivers envelopes after the transition that produced them has
// committed.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
}

func NewEnvelope(eventType, producer, orderID string, payload any) (Envelope, error) {
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
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

type OrderPlacedPayload struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	Items       []ItemQty       `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

type OrderStatusChangedPayload struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ChangedAt time.Time `json:"changed_at"`
}

type OrderItemsChangedPayload struct {
	OrderID     string          `json:"order_id"`
	ItemID      string          `json:"item_id"`
	ProductID   string          `json:"product_id"`
	OldQty      int             `json:"old_qty"`
	NewQty      int             `json:"new_qty"` // 0 = removed
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type PaymentRecordedPayload struct {
	OrderID   string          `json:"order_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	DueAmount decimal.Decimal `json:"due_amount"`
}

// StatusOf extracts the order status an envelope leaves behind, if any.
func StatusOf(ev Envelope) (string, Status, bool) {
	switch ev.EventType {
	case EventOrderPlaced:
		var p OrderPlacedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", false
		}
		return p.OrderID, StatusPending, true
	case EventOrderStatusChanged:
		var p OrderStatusChangedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return "", "", false
		}
		return p.OrderID, p.To, true
	}
	return "", "", false
}

// Fanout hands every envelope to each publisher in turn and reports all
// failures together.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev Envelope) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
