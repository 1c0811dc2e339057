package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventOrderCreated      EventType = "ORDER_CREATED"
	EventProductReserved   EventType = "PRODUCT_RESERVED"
	EventProductOutOfStock EventType = "PRODUCT_OUT_OF_STOCK"
	EventProductError      EventType = "PRODUCT_ERROR"
	EventPaymentSuccessful EventType = "PAYMENT_SUCCESSFUL"
	EventPaymentFailed     EventType = "PAYMENT_FAILED"
)

// Event is the envelope shared by every message on the bus. The order id is
// the correlation key for the whole saga.
type Event struct {
	Type       EventType `json:"eventType"`
	OrderID    string    `json:"orderId"`
	OccurredAt time.Time `json:"timestamp"`
}

type OrderCreated struct {
	Event
	UserID     string             `json:"userId"`
	TotalCents int64              `json:"totalCents"`
	Items      []OrderCreatedItem `json:"items"`
}

type OrderCreatedItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type ProductEvent struct {
	Event
	ProductID string `json:"productId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type PaymentEvent struct {
	Event
	AmountCents int64  `json:"amountCents,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func NewOrderCreated(o Order) OrderCreated {
	items := make([]OrderCreatedItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderCreatedItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return OrderCreated{
		Event:      Event{Type: EventOrderCreated, OrderID: o.ID, OccurredAt: time.Now().UTC()},
		UserID:     o.UserID,
		TotalCents: o.TotalCents,
		Items:      items,
	}
}

// DecodeEnvelope parses just the shared envelope so the consumer can route
// on the event type before decoding the full payload.
func DecodeEnvelope(b []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(b, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event envelope: missing eventType")
	}
	return ev, nil
}
