package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopmicro/orderflow/internal/order/application"
)

// abandonAfterRetries bounds how often a compensation is retried before it
// is parked for manual intervention.
const abandonAfterRetries = 10

// CompensationLog persists inverse actions that failed inline so the
// compensator can retry them after a crash or an upstream outage.
type CompensationLog struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewCompensationLog(log *slog.Logger, pool *pgxpool.Pool) *CompensationLog {
	return &CompensationLog{log: log, pool: pool}
}

func (c *CompensationLog) Add(ctx context.Context, comp application.Compensation) error {
	_, err := c.pool.Exec(ctx, `INSERT INTO compensations (order_id, kind, product_id, quantity_delta, amount_cents, status)
		VALUES ($1,$2,$3,$4,$5,'pending')`,
		comp.OrderID, comp.Kind, comp.ProductID, comp.QuantityDelta, comp.AmountCents)
	return err
}

func (c *CompensationLog) LockBatch(ctx context.Context, limit int, lease time.Duration) ([]application.Compensation, error) {
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id, order_id, kind, product_id, quantity_delta, amount_cents, retry_count, last_error, created_at
		FROM compensations
		WHERE status = 'pending'
		   OR (status = 'in_progress' AND lease_until < now())
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []application.Compensation
	for rows.Next() {
		var comp application.Compensation
		if err := rows.Scan(&comp.ID, &comp.OrderID, &comp.Kind, &comp.ProductID, &comp.QuantityDelta, &comp.AmountCents, &comp.RetryCount, &comp.LastError, &comp.CreatedAt); err != nil {
			return nil, err
		}
		batch = append(batch, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, 0, len(batch))
	for _, comp := range batch {
		ids = append(ids, comp.ID)
	}
	_, err = tx.Exec(ctx, `UPDATE compensations SET status='in_progress', lease_until=now() + make_interval(secs => $1) WHERE id = ANY($2)`,
		lease.Seconds(), ids)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return batch, nil
}

func (c *CompensationLog) MarkDone(ctx context.Context, id int64) error {
	_, err := c.pool.Exec(ctx, `UPDATE compensations SET status='done', updated_at=now() WHERE id=$1`, id)
	return err
}

func (c *CompensationLog) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := c.pool.Exec(ctx, `
		UPDATE compensations
		SET status = CASE WHEN retry_count + 1 >= $2 THEN 'abandoned' ELSE 'pending' END,
		    retry_count = retry_count + 1,
		    last_error = $3,
		    updated_at = now()
		WHERE id = $1`, id, abandonAfterRetries, errMsg)
	return err
}
