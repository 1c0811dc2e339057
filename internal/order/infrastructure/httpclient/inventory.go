package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopmicro/orderflow/internal/order/domain"
)

type InventoryClient struct {
	base
}

func NewInventoryClient(log *slog.Logger, baseURL string) *InventoryClient {
	return &InventoryClient{base: newBase(log, "product-service", baseURL)}
}

type productResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

func (c *InventoryClient) CheckStock(ctx context.Context, productID string) (int, error) {
	var resp productResponse
	err := c.doJSON(ctx, http.MethodGet, "/products/"+productID, nil, &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return 0, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
		return 0, err
	}
	return resp.Stock, nil
}

type adjustStockRequest struct {
	Delta int `json:"delta"`
}

// AdjustStock relies on the product service applying the delta as an atomic
// conditional update; a decrement that would go negative comes back 409 and
// is authoritative regardless of any earlier check.
func (c *InventoryClient) AdjustStock(ctx context.Context, productID string, delta int) error {
	err := c.doJSON(ctx, http.MethodPatch, "/products/"+productID+"/stock", adjustStockRequest{Delta: delta}, nil)
	if err == nil {
		return nil
	}
	var se *statusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusConflict:
			return fmt.Errorf("product %s: %w", productID, domain.ErrInsufficientStock)
		case http.StatusNotFound:
			return fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
		}
	}
	return err
}
