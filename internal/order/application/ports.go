package application

import (
	"context"
	"time"

	"github.com/shopmicro/orderflow/internal/order/domain"
)

type CartClient interface {
	// FetchCart returns domain.ErrEmptyCart for a cart with zero items and
	// domain.ErrNotFound when the user has no cart at all.
	FetchCart(ctx context.Context, userID string) (domain.CartSnapshot, error)
	// ClearCart is idempotent: clearing an already-empty cart succeeds.
	ClearCart(ctx context.Context, userID string) error
}

type InventoryClient interface {
	// CheckStock returns the currently available quantity. The result is
	// advisory only; AdjustStock is the stock authority.
	CheckStock(ctx context.Context, productID string) (int, error)
	// AdjustStock applies a signed delta as a conditional update at the
	// inventory service. A decrement that would go negative fails with
	// domain.ErrInsufficientStock.
	AdjustStock(ctx context.Context, productID string, delta int) error
}

type PaymentSession struct {
	PaymentID  string
	PaymentURL string
}

type PaymentClient interface {
	CreateSession(ctx context.Context, orderID string, amountCents int64) (PaymentSession, error)
	Refund(ctx context.Context, orderID string, amountCents int64) error
}

type OrderRepository interface {
	// Create persists the order header and all line items atomically.
	Create(ctx context.Context, o domain.Order) error
	GetByID(ctx context.Context, id string) (domain.Order, error)
	// ListByUser returns a page ordered by creation time descending plus
	// the total count for the user.
	ListByUser(ctx context.Context, userID string, offset, limit int) ([]domain.Order, int, error)
	// UpdateStatus enforces the status machine and returns
	// domain.ErrInvalidTransition on a violation.
	UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (domain.Order, error)
	// UpdateStatusWithEvent additionally writes an outbox row in the same
	// transaction as the status change.
	UpdateStatusWithEvent(ctx context.Context, id string, to domain.OrderStatus, eventType string, payload []byte, headers map[string]string, traceparent string) (domain.Order, error)
}

type CompensationKind string

const (
	CompensationStockRestore CompensationKind = "stock_restore"
	CompensationRefund       CompensationKind = "refund"
)

// Compensation is a durable record of an inverse action that could not be
// applied synchronously. The compensator retries it out-of-band; it is never
// silently dropped.
type Compensation struct {
	ID            int64
	OrderID       string
	Kind          CompensationKind
	ProductID     string
	QuantityDelta int
	AmountCents   int64
	RetryCount    int
	LastError     *string
	CreatedAt     time.Time
}

type CompensationLog interface {
	Add(ctx context.Context, c Compensation) error
	LockBatch(ctx context.Context, limit int, lease time.Duration) ([]Compensation, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

type IdempotencyStore interface {
	// Reserve claims key for orderID; when the key was claimed before it
	// returns the original order id and false.
	Reserve(ctx context.Context, key, orderID string) (string, bool, error)
}
