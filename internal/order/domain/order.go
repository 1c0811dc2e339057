package domain

import "time"

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusPendingPayment OrderStatus = "pending_payment"
	StatusProcessing     OrderStatus = "processing"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
	StatusRefunded       OrderStatus = "refunded"
)

// transitions is the full status machine. Terminal states have no entry.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:        {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment: {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusCompleted, StatusRefunded},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPendingPayment, StatusProcessing, StatusCompleted, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Cancellable reports whether a cancel request is allowed in this status.
// Cancelling from processing requires compensation (stock restore + refund);
// from pending it is a plain status flip.
func (s OrderStatus) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

type Order struct {
	ID              string
	UserID          string
	Status          OrderStatus
	ShippingAddress string
	TotalCents      int64
	Items           []OrderItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem freezes the price at the time the item was added to the cart.
// Items are immutable after the order is created.
type OrderItem struct {
	ProductID  string
	Quantity   int
	PriceCents int64
}

// NewOrder computes the total from the items once; it is never recomputed
// from live product prices afterwards.
func NewOrder(id, userID, shippingAddress string, items []OrderItem) Order {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.PriceCents
	}
	now := time.Now().UTC()
	return Order{
		ID:              id,
		UserID:          userID,
		Status:          StatusPending,
		ShippingAddress: shippingAddress,
		TotalCents:      total,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
