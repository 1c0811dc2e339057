package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopmicro/orderflow/internal/order/domain"
)

// EventProcessor applies asynchronous product and payment events to order
// state via a per-type dispatch table. Every handler is idempotent against
// duplicate delivery: a transition that was already applied is skipped.
type EventProcessor struct {
	log       *slog.Logger
	orders    OrderRepository
	comps     CompensationLog
	inventory InventoryClient
	handlers  map[domain.EventType]func(ctx context.Context, ev domain.Event) error
}

func NewEventProcessor(log *slog.Logger, orders OrderRepository, comps CompensationLog, inventory InventoryClient) *EventProcessor {
	p := &EventProcessor{
		log:       log,
		orders:    orders,
		comps:     comps,
		inventory: inventory,
	}
	p.handlers = map[domain.EventType]func(ctx context.Context, ev domain.Event) error{
		domain.EventProductReserved:   p.onProductReserved,
		domain.EventProductOutOfStock: p.onProductOutOfStock,
		domain.EventProductError:      p.onProductError,
		domain.EventPaymentSuccessful: p.onPaymentSuccessful,
		domain.EventPaymentFailed:     p.onPaymentFailed,
	}
	return p
}

func (p *EventProcessor) Process(ctx context.Context, payload []byte) error {
	ev, err := domain.DecodeEnvelope(payload)
	if err != nil {
		// Malformed payloads are dropped, not retried.
		p.log.Error("event decode failed", "err", err)
		return nil
	}
	h, ok := p.handlers[ev.Type]
	if !ok {
		p.log.Debug("event type ignored", "type", ev.Type, "order_id", ev.OrderID)
		return nil
	}
	return h(ctx, ev)
}

func (p *EventProcessor) onProductReserved(ctx context.Context, ev domain.Event) error {
	_, err := p.applyTransition(ctx, ev, domain.StatusPendingPayment)
	return err
}

func (p *EventProcessor) onProductOutOfStock(ctx context.Context, ev domain.Event) error {
	_, err := p.applyTransition(ctx, ev, domain.StatusCancelled)
	return err
}

func (p *EventProcessor) onProductError(ctx context.Context, ev domain.Event) error {
	p.log.Error("product service reported an error", "order_id", ev.OrderID)
	return nil
}

func (p *EventProcessor) onPaymentSuccessful(ctx context.Context, ev domain.Event) error {
	_, err := p.applyTransition(ctx, ev, domain.StatusProcessing)
	return err
}

// onPaymentFailed cancels the order and restores the stock that was
// decremented for it. Stock is restored only when this delivery actually
// applied the transition, so a duplicate cannot restore twice.
func (p *EventProcessor) onPaymentFailed(ctx context.Context, ev domain.Event) error {
	applied, err := p.applyTransition(ctx, ev, domain.StatusCancelled)
	if err != nil || !applied {
		return err
	}

	order, err := p.orders.GetByID(ctx, ev.OrderID)
	if err != nil {
		return err
	}
	for _, item := range order.Items {
		if err := p.inventory.AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
			p.log.Error("stock restore after payment failure failed, queueing compensation", "order_id", ev.OrderID, "product_id", item.ProductID, "err", err)
			if logErr := p.comps.Add(ctx, Compensation{
				OrderID:       ev.OrderID,
				Kind:          CompensationStockRestore,
				ProductID:     item.ProductID,
				QuantityDelta: item.Quantity,
			}); logErr != nil {
				p.log.Error("compensation log write failed", "order_id", ev.OrderID, "err", logErr)
			}
		}
	}
	return nil
}

// applyTransition moves the order to the target status. Duplicate or stale
// deliveries (order already at or past the target) are skipped without error
// so the consumer can commit the offset.
func (p *EventProcessor) applyTransition(ctx context.Context, ev domain.Event, to domain.OrderStatus) (bool, error) {
	_, err := p.orders.UpdateStatus(ctx, ev.OrderID, to)
	if err == nil {
		p.log.Info("order status updated by event", "order_id", ev.OrderID, "event", ev.Type, "status", to)
		return true, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		p.log.Warn("event for unknown order", "order_id", ev.OrderID, "event", ev.Type)
		return false, nil
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		p.log.Info("event transition skipped", "order_id", ev.OrderID, "event", ev.Type, "target", to)
		return false, nil
	}
	return false, err
}
