package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopmicro/orderflow/internal/order/domain"
	"github.com/shopmicro/orderflow/pkg/tracing"
)

// Saga coordinates order creation across the cart, inventory and payment
// services. It is stateless between invocations: all state lives in the
// order store and the remote services, so independent orders run fully in
// parallel.
type Saga struct {
	log       *slog.Logger
	orders    OrderRepository
	comps     CompensationLog
	cart      CartClient
	inventory InventoryClient
	payments  PaymentClient
	keys      IdempotencyStore
	tracer    trace.Tracer
}

func NewSaga(log *slog.Logger, orders OrderRepository, comps CompensationLog, cart CartClient, inventory InventoryClient, payments PaymentClient, keys IdempotencyStore) *Saga {
	return &Saga{
		log:       log,
		orders:    orders,
		comps:     comps,
		cart:      cart,
		inventory: inventory,
		payments:  payments,
		keys:      keys,
		tracer:    otel.Tracer("order-saga"),
	}
}

type CreateOrderInput struct {
	UserID          string
	CartID          int64
	ShippingAddress string
	IdempotencyKey  string
}

type CreateOrderResult struct {
	Order      domain.Order
	PaymentID  string
	PaymentURL string
	// PaymentPending is set when session creation failed; the order stays
	// in pending_payment awaiting an out-of-band retry.
	PaymentPending bool
	CartCleared    bool
	// Replayed is set when the idempotency key matched an earlier request
	// and the previously created order is returned.
	Replayed bool
}

// CreateOrder runs the whole saga: cart snapshot, per-item stock check,
// local persist, sequential stock decrements, cart clear, payment request.
// Stock decrements are applied in cart order and compensated in strict
// reverse order when a later one fails. The order-store transaction never
// spans a remote call.
func (s *Saga) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "Saga.CreateOrder")
	defer span.End()

	if in.UserID == "" {
		return CreateOrderResult{}, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if in.ShippingAddress == "" {
		return CreateOrderResult{}, &domain.ValidationError{Field: "shippingAddress", Reason: "is required"}
	}

	orderID := uuid.NewString()
	if in.IdempotencyKey != "" {
		existingID, fresh, err := s.keys.Reserve(ctx, in.IdempotencyKey, orderID)
		if err != nil {
			return CreateOrderResult{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !fresh {
			o, err := s.orders.GetByID(ctx, existingID)
			if err != nil {
				return CreateOrderResult{}, fmt.Errorf("replay order %s: %w", existingID, err)
			}
			s.log.Info("create order replayed", "order_id", existingID, "key", in.IdempotencyKey)
			return CreateOrderResult{Order: o, Replayed: true}, nil
		}
	}
	span.SetAttributes(attribute.String("order_id", orderID))

	snapshot, err := s.cart.FetchCart(ctx, in.UserID)
	if err != nil {
		return CreateOrderResult{}, err
	}

	// Pre-create check: verifies each product exists and the inventory
	// service is reachable before any row is written. A shortage observed
	// here is advisory only; the conditional decrement below is the
	// authority (check-then-act window, see DESIGN.md).
	for _, item := range snapshot.Items {
		available, err := s.inventory.CheckStock(ctx, item.ProductID)
		if err != nil {
			return CreateOrderResult{}, err
		}
		if available < item.Quantity {
			s.log.Warn("stock shortage observed at check", "order_id", orderID, "product_id", item.ProductID, "available", available, "requested", item.Quantity)
		}
	}

	order := domain.NewOrder(orderID, in.UserID, in.ShippingAddress, snapshot.OrderItems())
	if err := s.orders.Create(ctx, order); err != nil {
		return CreateOrderResult{}, fmt.Errorf("persist order: %w", err)
	}

	if abort := s.reserveStock(ctx, order); abort != nil {
		return CreateOrderResult{Order: s.cancelAfterFailure(ctx, orderID, order)}, abort
	}

	result := CreateOrderResult{CartCleared: true}
	if err := s.cart.ClearCart(ctx, in.UserID); err != nil {
		// Cart clear is not safety-critical; the order proceeds.
		s.log.Error("cart clear failed", "order_id", orderID, "err", &domain.IntegrationError{Step: "clear_cart", Err: err})
		result.CartCleared = false
	}

	created := domain.NewOrderCreated(order)
	payload, err := json.Marshal(created)
	if err != nil {
		return CreateOrderResult{}, fmt.Errorf("marshal order created event: %w", err)
	}
	updated, err := s.orders.UpdateStatusWithEvent(ctx, orderID, domain.StatusPendingPayment,
		string(domain.EventOrderCreated), payload,
		map[string]string{"source": "order-service"}, tracing.Traceparent(ctx))
	if err != nil {
		// The decrements are already committed at the inventory service.
		// Reverse them before surfacing, exactly as for a reserve failure.
		compensated := s.restoreItems(ctx, orderID, order.Items)
		result.Order = s.cancelAfterFailure(ctx, orderID, order)
		return result, &domain.SagaAbortError{
			Step:        "finalize_order",
			Compensated: compensated,
			Err:         err,
		}
	}
	result.Order = updated

	session, err := s.payments.CreateSession(ctx, orderID, order.TotalCents)
	if err != nil {
		// The order row and stock are committed; payment failure leaves
		// the order in pending_payment.
		s.log.Warn("payment session creation failed", "order_id", orderID, "err", err)
		result.PaymentPending = true
		return result, nil
	}
	result.PaymentID = session.PaymentID
	result.PaymentURL = session.PaymentURL
	return result, nil
}

// reserveStock decrements stock per line item sequentially. On failure it
// reverses the already-applied decrements in reverse order and returns a
// SagaAbortError describing the failing step.
func (s *Saga) reserveStock(ctx context.Context, order domain.Order) *domain.SagaAbortError {
	applied := make([]domain.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		err := s.inventory.AdjustStock(ctx, item.ProductID, -item.Quantity)
		if err == nil {
			applied = append(applied, item)
			continue
		}
		if errors.Is(err, domain.ErrInsufficientStock) {
			err = &domain.StockShortageError{ProductID: item.ProductID}
		}
		compensated := s.restoreItems(ctx, order.ID, applied)
		return &domain.SagaAbortError{
			Step:        "reserve_stock",
			ProductID:   item.ProductID,
			Compensated: compensated,
			Err:         err,
		}
	}
	return nil
}

// cancelAfterFailure flips the aborted order to cancelled. When the write
// fails the store is re-read so the caller reports the status the store
// actually holds, not a stale local snapshot.
func (s *Saga) cancelAfterFailure(ctx context.Context, orderID string, fallback domain.Order) domain.Order {
	cancelled, err := s.orders.UpdateStatus(ctx, orderID, domain.StatusCancelled)
	if err == nil {
		return cancelled
	}
	s.log.Error("cancel after saga failure failed", "order_id", orderID, "err", err)
	current, gerr := s.orders.GetByID(ctx, orderID)
	if gerr != nil {
		return fallback
	}
	return current
}

// restoreItems reverses decrements in strict reverse order. A reversal that
// fails is written to the compensation log for the background worker.
func (s *Saga) restoreItems(ctx context.Context, orderID string, applied []domain.OrderItem) bool {
	all := true
	for i := len(applied) - 1; i >= 0; i-- {
		item := applied[i]
		if err := s.inventory.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			all = false
			s.log.Error("stock restore failed, queueing compensation", "order_id", orderID, "product_id", item.ProductID, "err", err)
			if logErr := s.comps.Add(ctx, Compensation{
				OrderID:       orderID,
				Kind:          CompensationStockRestore,
				ProductID:     item.ProductID,
				QuantityDelta: item.Quantity,
			}); logErr != nil {
				s.log.Error("compensation log write failed", "order_id", orderID, "product_id", item.ProductID, "err", logErr)
			}
		}
	}
	return all
}
