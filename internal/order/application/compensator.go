package application

import (
	"context"
	"log/slog"
	"time"
)

// Compensator drains the durable compensation log, re-issuing inverse stock
// adjustments and refund requests that failed inline. It follows the same
// lock-batch/lease shape as the outbox relay.
type Compensator struct {
	log       *slog.Logger
	comps     CompensationLog
	inventory InventoryClient
	payments  PaymentClient
	batchSize int
	interval  time.Duration
	lease     time.Duration
}

func NewCompensator(log *slog.Logger, comps CompensationLog, inventory InventoryClient, payments PaymentClient) *Compensator {
	return &Compensator{
		log:       log,
		comps:     comps,
		inventory: inventory,
		payments:  payments,
		batchSize: 50,
		interval:  5 * time.Second,
		lease:     30 * time.Second,
	}
}

func (c *Compensator) Run(ctx context.Context) error {
	t := time.NewTicker(c.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("compensator stopping")
			return nil
		case <-t.C:
			if err := c.drain(ctx); err != nil {
				c.log.Error("compensator drain error", "err", err)
			}
		}
	}
}

func (c *Compensator) drain(ctx context.Context) error {
	batch, err := c.comps.LockBatch(ctx, c.batchSize, c.lease)
	if err != nil {
		return err
	}
	for _, comp := range batch {
		if err := c.apply(ctx, comp); err != nil {
			c.log.Error("compensation retry failed", "compensation_id", comp.ID, "order_id", comp.OrderID, "err", err)
			if markErr := c.comps.MarkFailed(ctx, comp.ID, err.Error()); markErr != nil {
				c.log.Error("compensation mark failed error", "compensation_id", comp.ID, "err", markErr)
			}
			continue
		}
		if err := c.comps.MarkDone(ctx, comp.ID); err != nil {
			c.log.Error("compensation mark done error", "compensation_id", comp.ID, "err", err)
			continue
		}
		c.log.Info("compensation applied", "compensation_id", comp.ID, "order_id", comp.OrderID, "kind", comp.Kind)
	}
	return nil
}

func (c *Compensator) apply(ctx context.Context, comp Compensation) error {
	switch comp.Kind {
	case CompensationRefund:
		return c.payments.Refund(ctx, comp.OrderID, comp.AmountCents)
	default:
		return c.inventory.AdjustStock(ctx, comp.ProductID, comp.QuantityDelta)
	}
}
