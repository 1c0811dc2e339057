package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopmicro/orderflow/internal/order/domain"
)

// DefaultPageLimit and MaxPageLimit bound user-orders pagination.
const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
)

// Service covers the order operations outside the creation saga: reads,
// explicit status updates and cancellation.
type Service struct {
	log       *slog.Logger
	orders    OrderRepository
	comps     CompensationLog
	inventory InventoryClient
	payments  PaymentClient
	limitCap  int
}

func NewService(log *slog.Logger, orders OrderRepository, comps CompensationLog, inventory InventoryClient, payments PaymentClient) *Service {
	return &Service{
		log:       log,
		orders:    orders,
		comps:     comps,
		inventory: inventory,
		payments:  payments,
		limitCap:  MaxPageLimit,
	}
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, &domain.ValidationError{Field: "id", Reason: "is required"}
	}
	return s.orders.GetByID(ctx, id)
}

type OrderPage struct {
	Orders     []domain.Order
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

func (s *Service) ListUserOrders(ctx context.Context, userID string, page, limit int) (OrderPage, error) {
	if userID == "" {
		return OrderPage{}, &domain.ValidationError{Field: "userId", Reason: "is required"}
	}
	if page < 1 {
		return OrderPage{}, &domain.ValidationError{Field: "page", Reason: "must be a positive integer"}
	}
	if limit < 1 {
		return OrderPage{}, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"}
	}
	if limit > s.limitCap {
		limit = s.limitCap
	}

	orders, total, err := s.orders.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return OrderPage{}, err
	}
	totalPages := total / limit
	if total%limit != 0 {
		totalPages++
	}
	return OrderPage{Orders: orders, Page: page, Limit: limit, Total: total, TotalPages: totalPages}, nil
}

// UpdateStatus applies a caller-requested transition; the status machine is
// enforced by the store.
func (s *Service) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (domain.Order, error) {
	if !to.Valid() {
		return domain.Order{}, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	return s.orders.UpdateStatus(ctx, id, to)
}

// Cancel handles the two permitted cancellation paths. From pending the
// order is flipped without any remote call: stock was not decremented yet.
// From processing payment has completed, so every line item gets one inverse
// stock adjustment and a single refund request is issued before the order
// becomes refunded. Every other status is rejected with no side effects.
func (s *Service) Cancel(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}

	switch order.Status {
	case domain.StatusPending:
		return s.orders.UpdateStatus(ctx, id, domain.StatusCancelled)

	case domain.StatusProcessing:
		for _, item := range order.Items {
			if err := s.inventory.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
				s.log.Error("stock restore on cancel failed, queueing compensation", "order_id", id, "product_id", item.ProductID, "err", err)
				if logErr := s.comps.Add(ctx, Compensation{
					OrderID:       id,
					Kind:          CompensationStockRestore,
					ProductID:     item.ProductID,
					QuantityDelta: item.Quantity,
				}); logErr != nil {
					s.log.Error("compensation log write failed", "order_id", id, "err", logErr)
				}
			}
		}
		if err := s.payments.Refund(ctx, id, order.TotalCents); err != nil {
			s.log.Error("refund request failed, queueing compensation", "order_id", id, "err", err)
			if logErr := s.comps.Add(ctx, Compensation{
				OrderID:     id,
				Kind:        CompensationRefund,
				AmountCents: order.TotalCents,
			}); logErr != nil {
				s.log.Error("compensation log write failed", "order_id", id, "err", logErr)
			}
		}
		return s.orders.UpdateStatus(ctx, id, domain.StatusRefunded)

	default:
		return domain.Order{}, fmt.Errorf("cancel order %s in status %s: %w", id, order.Status, domain.ErrInvalidTransition)
	}
}
