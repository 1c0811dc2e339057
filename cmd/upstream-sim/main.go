// upstream-sim serves in-memory stand-ins for the cart, product and payment
// services so the order service can be run locally without the real
// collaborators. Stock adjustments are atomic conditional updates, matching
// the contract the saga depends on.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/shopmicro/orderflow/pkg/logging"
)

type cartItem struct {
	ProductID  string `json:"product_id"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

type product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceCents int64  `json:"price_cents"`
	Stock      int    `json:"stock"`
}

type sim struct {
	mu       sync.Mutex
	carts    map[string][]cartItem
	products map[string]*product
	refunds  map[string]int64
}

func newSim() *sim {
	return &sim{
		carts: map[string][]cartItem{
			"u-1": {
				{ProductID: "p-espresso", Quantity: 2, PriceCents: 1250},
				{ProductID: "p-grinder", Quantity: 1, PriceCents: 8900},
			},
		},
		products: map[string]*product{
			"p-espresso": {ID: "p-espresso", Name: "Espresso Beans 1kg", PriceCents: 1250, Stock: 40},
			"p-grinder":  {ID: "p-grinder", Name: "Burr Grinder", PriceCents: 8900, Stock: 5},
			"p-soldout":  {ID: "p-soldout", Name: "Limited Drip Kettle", PriceCents: 5400, Stock: 0},
		},
		refunds: make(map[string]int64),
	}
}

func (s *sim) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := chi.URLParam(r, "userId")
	items, ok := s.carts[userID]
	if !ok {
		http.Error(w, `{"error":"cart not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "cart_items": items})
}

func (s *sim) clearCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID := chi.URLParam(r, "userId")
	if _, ok := s.carts[userID]; !ok {
		http.Error(w, `{"error":"cart not found"}`, http.StatusNotFound)
		return
	}
	s.carts[userID] = nil
	w.WriteHeader(http.StatusOK)
}

func (s *sim) getProduct(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[chi.URLParam(r, "id")]
	if !ok {
		http.Error(w, `{"error":"product not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// adjustStock applies the delta only when the result stays non-negative; a
// decrement below zero is rejected with 409, never partially applied.
func (s *sim) adjustStock(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[chi.URLParam(r, "id")]
	if !ok {
		http.Error(w, `{"error":"product not found"}`, http.StatusNotFound)
		return
	}
	var req struct {
		Delta int `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	if p.Stock+req.Delta < 0 {
		http.Error(w, `{"error":"insufficient stock"}`, http.StatusConflict)
		return
	}
	p.Stock += req.Delta
	writeJSON(w, http.StatusOK, p)
}

func (s *sim) createPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID     string `json:"order_id"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	id := uuid.NewString()
	writeJSON(w, http.StatusCreated, map[string]string{
		"payment_id":  id,
		"payment_url": "http://localhost:3006/checkout/" + id,
	})
}

func (s *sim) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID     string `json:"order_id"`
		AmountCents int64  `json:"amount_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.refunds[req.OrderID] += req.AmountCents
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	_ = godotenv.Load()
	log := logging.New()

	addr := os.Getenv("SIM_ADDR")
	if addr == "" {
		addr = ":3100"
	}

	s := newSim()
	r := chi.NewRouter()
	r.Get("/api/cart/user/cart/{userId}", s.getCart)
	r.Delete("/api/cart/user/cart/{userId}/clear", s.clearCart)
	r.Get("/products/{id}", s.getProduct)
	r.Patch("/products/{id}/stock", s.adjustStock)
	r.Post("/payments", s.createPayment)
	r.Post("/refunds", s.refund)

	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 5 * time.Second}
	log.Info("upstream-sim listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Error("upstream-sim stopped", "err", err)
		os.Exit(1)
	}
}
