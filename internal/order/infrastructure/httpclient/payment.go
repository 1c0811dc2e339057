package httpclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopmicro/orderflow/internal/order/application"
)

type PaymentClient struct {
	base
}

func NewPaymentClient(log *slog.Logger, baseURL string) *PaymentClient {
	return &PaymentClient{base: newBase(log, "payment-service", baseURL)}
}

type paymentRequest struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
}

type paymentResponse struct {
	PaymentID  string `json:"payment_id"`
	PaymentURL string `json:"payment_url"`
}

func (c *PaymentClient) CreateSession(ctx context.Context, orderID string, amountCents int64) (application.PaymentSession, error) {
	var resp paymentResponse
	err := c.doJSON(ctx, http.MethodPost, "/payments", paymentRequest{OrderID: orderID, AmountCents: amountCents}, &resp)
	if err != nil {
		return application.PaymentSession{}, fmt.Errorf("payment session for order %s: %w", orderID, err)
	}
	return application.PaymentSession{PaymentID: resp.PaymentID, PaymentURL: resp.PaymentURL}, nil
}

func (c *PaymentClient) Refund(ctx context.Context, orderID string, amountCents int64) error {
	err := c.doJSON(ctx, http.MethodPost, "/refunds", paymentRequest{OrderID: orderID, AmountCents: amountCents}, nil)
	if err != nil {
		return fmt.Errorf("refund for order %s: %w", orderID, err)
	}
	return nil
}
