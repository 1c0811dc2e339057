package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopmicro/orderflow/internal/order/domain"
	"github.com/shopmicro/orderflow/pkg/retry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() retry.Policy {
	return retry.Policy{Attempts: 3, Base: time.Millisecond}
}

func TestFetchCart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/cart/user/cart/u-1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id": "u-1",
			"cart_items": []map[string]any{
				{"product_id": "p-a", "quantity": 2, "price_cents": 1000},
				{"product_id": "p-b", "quantity": 1, "price_cents": 500},
			},
		})
	}))
	defer srv.Close()

	c := NewCartClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	snapshot, err := c.FetchCart(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", snapshot.UserID)
	require.Len(t, snapshot.Items, 2)
	assert.Equal(t, domain.CartItem{ProductID: "p-a", Quantity: 2, PriceAtAddCents: 1000}, snapshot.Items[0])
}

func TestFetchCartEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"user_id": "u-1", "cart_items": []any{}})
	}))
	defer srv.Close()

	c := NewCartClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	_, err := c.FetchCart(context.Background(), "u-1")
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestFetchCartNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewCartClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	_, err := c.FetchCart(context.Background(), "u-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClearCartMissingCartIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewCartClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	assert.NoError(t, c.ClearCart(context.Background(), "u-1"))
}

func TestCheckStock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/p-a", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "p-a", "stock": 7})
	}))
	defer srv.Close()

	c := NewInventoryClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	stock, err := c.CheckStock(context.Background(), "p-a")
	require.NoError(t, err)
	assert.Equal(t, 7, stock)
}

func TestAdjustStockConflictIsInsufficientStock(t *testing.T) {
	var sawDelta int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		var req struct {
			Delta int `json:"delta"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		sawDelta = req.Delta
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewInventoryClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	err := c.AdjustStock(context.Background(), "p-a", -2)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, -2, sawDelta)
}

func TestAdjustStockUnknownProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewInventoryClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	err := c.AdjustStock(context.Background(), "p-x", -1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRetryRecoversFromTransientServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "p-a", "stock": 4})
	}))
	defer srv.Close()

	c := NewInventoryClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	stock, err := c.CheckStock(context.Background(), "p-a")
	require.NoError(t, err)
	assert.Equal(t, 4, stock)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPersistentServerErrorIsUpstreamUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewInventoryClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	_, err := c.CheckStock(context.Background(), "p-a")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Equal(t, int32(3), calls.Load())
}

func TestBusinessRejectionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewInventoryClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	err := c.AdjustStock(context.Background(), "p-a", -1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCircuitBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewInventoryClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	// Two exhausted calls feed the breaker six consecutive failures.
	_, err := c.CheckStock(context.Background(), "p-a")
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	_, err = c.CheckStock(context.Background(), "p-a")
	require.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	srv.Close()
	_, err = c.CheckStock(context.Background(), "p-a")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments", r.URL.Path)
		var req struct {
			OrderID     string `json:"order_id"`
			AmountCents int64  `json:"amount_cents"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "o-1", req.OrderID)
		assert.Equal(t, int64(2500), req.AmountCents)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"payment_id":  "pay-1",
			"payment_url": "https://pay.example/pay-1",
		})
	}))
	defer srv.Close()

	c := NewPaymentClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	session, err := c.CreateSession(context.Background(), "o-1", 2500)
	require.NoError(t, err)
	assert.Equal(t, "pay-1", session.PaymentID)
	assert.Equal(t, "https://pay.example/pay-1", session.PaymentURL)
}

func TestRefund(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewPaymentClient(testLogger(), srv.URL)
	c.policy = fastPolicy()

	require.NoError(t, c.Refund(context.Background(), "o-1", 2500))
	assert.Equal(t, "/refunds", path)
}
