package http

import (
	"time"

	"github.com/shopmicro/orderflow/internal/order/domain"
)

type orderView struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Status          string          `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	TotalCents      int64           `json:"totalCents"`
	Items           []orderItemView `json:"items"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

type orderItemView struct {
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"priceCents"`
}

func toOrderView(o domain.Order) orderView {
	items := make([]orderItemView, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemView{ProductID: it.ProductID, Quantity: it.Quantity, PriceCents: it.PriceCents})
	}
	return orderView{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		TotalCents:      o.TotalCents,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

type createOrderResponse struct {
	Order          orderView `json:"order"`
	PaymentID      string    `json:"paymentId,omitempty"`
	PaymentURL     string    `json:"paymentUrl,omitempty"`
	PaymentPending bool      `json:"paymentPending,omitempty"`
}

type paginatedOrders struct {
	Data       []orderView `json:"data"`
	Pagination pagination  `json:"pagination"`
}

type pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type errorBody struct {
	Error       string            `json:"error"`
	Step        string            `json:"step,omitempty"`
	ProductID   string            `json:"productId,omitempty"`
	Compensated *bool             `json:"compensated,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}
