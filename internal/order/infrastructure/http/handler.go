package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopmicro/orderflow/internal/order/application"
	"github.com/shopmicro/orderflow/internal/order/domain"
)

// SagaRunner and OrderService are the two application entry points the API
// exposes; they are interfaces here so handler tests can stub them.
type SagaRunner interface {
	CreateOrder(ctx context.Context, in application.CreateOrderInput) (application.CreateOrderResult, error)
}

type OrderService interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListUserOrders(ctx context.Context, userID string, page, limit int) (application.OrderPage, error)
	UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (domain.Order, error)
	Cancel(ctx context.Context, id string) (domain.Order, error)
}

type Handler struct {
	log      *slog.Logger
	saga     SagaRunner
	service  OrderService
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, saga SagaRunner, service OrderService) *Handler {
	return &Handler{
		log:      log,
		saga:     saga,
		service:  service,
		validate: validator.New(),
		tracer:   otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/user/{userId}", h.listUserOrders)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	return r
}

type createOrderRequest struct {
	UserID          string `json:"userId" validate:"required"`
	CartID          int64  `json:"cartId" validate:"required"`
	ShippingAddress string `json:"shippingAddress" validate:"required"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing required fields", Details: validationDetails(err)})
		return
	}

	result, err := h.saga.CreateOrder(ctx, application.CreateOrderInput{
		UserID:          req.UserID,
		CartID:          req.CartID,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, createOrderResponse{
		Order:          toOrderView(result.Order),
		PaymentID:      result.PaymentID,
		PaymentURL:     result.PaymentURL,
		PaymentPending: result.PaymentPending,
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	order, err := h.service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order))
}

func (h *Handler) listUserOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListUserOrders")
	defer span.End()

	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "page must be a positive integer"})
		return
	}
	limit, err := queryInt(r, "limit", application.DefaultPageLimit)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a positive integer"})
		return
	}

	result, err := h.service.ListUserOrders(ctx, chi.URLParam(r, "userId"), page, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	views := make([]orderView, 0, len(result.Orders))
	for _, o := range result.Orders {
		views = append(views, toOrderView(o))
	}
	writeJSON(w, http.StatusOK, paginatedOrders{
		Data: views,
		Pagination: pagination{
			Page:       result.Page,
			Limit:      result.Limit,
			Total:      result.Total,
			TotalPages: result.TotalPages,
		},
	})
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrderStatus")
	defer span.End()

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing required fields", Details: validationDetails(err)})
		return
	}

	order, err := h.service.UpdateStatus(ctx, chi.URLParam(r, "id"), domain.OrderStatus(req.Status))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order))
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	order, err := h.service.Cancel(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(order))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error()})
		return
	}
	var abort *domain.SagaAbortError
	if errors.As(err, &abort) {
		writeJSON(w, http.StatusConflict, errorBody{
			Error:       abort.Error(),
			Step:        abort.Step,
			ProductID:   abort.ProductID,
			Compensated: &abort.Compensated,
		})
		return
	}
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	default:
		h.log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("not a positive integer")
	}
	return n, nil
}

func validationDetails(err error) map[string]string {
	details := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return details
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
