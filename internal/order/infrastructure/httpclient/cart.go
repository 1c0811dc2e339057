package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopmicro/orderflow/internal/order/domain"
)

type CartClient struct {
	base
}

func NewCartClient(log *slog.Logger, baseURL string) *CartClient {
	return &CartClient{base: newBase(log, "cart-service", baseURL)}
}

type cartResponse struct {
	UserID string `json:"user_id"`
	Items  []struct {
		ProductID  string `json:"product_id"`
		Quantity   int    `json:"quantity"`
		PriceCents int64  `json:"price_cents"`
	} `json:"cart_items"`
}

func (c *CartClient) FetchCart(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	var resp cartResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/cart/user/cart/"+userID, nil, &resp)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return domain.CartSnapshot{}, fmt.Errorf("cart for user %s: %w", userID, domain.ErrNotFound)
		}
		return domain.CartSnapshot{}, err
	}

	snapshot := domain.CartSnapshot{UserID: userID}
	for _, it := range resp.Items {
		snapshot.Items = append(snapshot.Items, domain.CartItem{
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			PriceAtAddCents: it.PriceCents,
		})
	}
	if snapshot.Empty() {
		return domain.CartSnapshot{}, fmt.Errorf("cart for user %s: %w", userID, domain.ErrEmptyCart)
	}
	return snapshot, nil
}

func (c *CartClient) ClearCart(ctx context.Context, userID string) error {
	err := c.doJSON(ctx, http.MethodDelete, "/api/cart/user/cart/"+userID+"/clear", nil, nil)
	var se *statusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		// Clearing a missing or already-empty cart is a success.
		return nil
	}
	return err
}
