// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/safar/franchise-orders/internal/models"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderPlaced        = "order.placed"
	TypeOrderStatusChanged = "order.status_changed"
)

const envelopeVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	RequestID     string          `json:"request_id,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlacedPayload struct {
	OrderID    int64           `json:"order_id"`
	OutletID   int64           `json:"outlet_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []ItemLine      `json:"items"`
}

type OrderStatusChangedPayload struct {
	OrderID int64              `json:"order_id"`
	Status  models.OrderStatus `json:"status"`
}

// Publisher accepts events for delivery. Publish never blocks on the broker.
type Publisher interface {
	Publish(ctx context.Context, ev Envelope) error
	Close() error
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Envelope) error { return nil }
func (NopPublisher) Close() error                            { return nil }

func newEnvelope(eventType, producer string, orderID int64, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       raw,
	}, nil
}

func OrderPlaced(producer string, order *models.Order) (Envelope, error) {
	items := make([]ItemLine, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, ItemLine{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price})
	}
	return newEnvelope(TypeOrderPlaced, producer, order.ID, OrderPlacedPayload{
		OrderID:    order.ID,
		OutletID:   order.OutletID,
		TotalPrice: order.TotalPrice,
		Items:      items,
	})
}

func OrderStatusChanged(producer string, orderID int64, status models.OrderStatus) (Envelope, error) {
	return newEnvelope(TypeOrderStatusChanged, producer, orderID, OrderStatusChangedPayload{
		OrderID: orderID,
		Status:  status,
	})
}

// DecodePayload unmarshals an envelope payload into T.
func DecodePayload[T any](ev Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(ev.Payload, &t); err != nil {
		return t, fmt.Errorf("decode %s payload: %w", ev.EventType, err)
	}
	return t, nil
}

type requestIDKey struct{}

// WithRequestID lets the HTTP layer stamp events with the originating request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
