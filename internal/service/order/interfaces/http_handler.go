package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"atelier/internal/pkg/logger"
	authdomain "atelier/internal/service/auth/domain"
	inventory "atelier/internal/service/inventory/domain"
	"atelier/internal/service/order/application"
	"atelier/internal/service/order/domain"
)

const serviceName = "order-service"

// OrderHandler exposes the checkout and cancel endpoints.
type OrderHandler struct {
	service *application.OrderService
}

func NewOrderHandler(service *application.OrderService) *OrderHandler {
	return &OrderHandler{service: service}
}

// RegisterRoutes registers all order routes on the mux.
func (h *OrderHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /orders/checkout", h.checkout)
	mux.HandleFunc("POST /orders/cancel", h.cancel)
}

type checkoutPayload struct {
	IdempotencyKey string                     `json:"idempotencyKey"`
	Items          []application.CheckoutLine `json:"items"`
}

type cancelPayload struct {
	OrderID string `json:"orderId"`
}

type orderResponse struct {
	OrderID        string `json:"orderId"`
	Status         string `json:"status"`
	TotalAmount    int64  `json:"totalAmount"`
	DiscountAmount int64  `json:"discountAmount"`
	FinalAmount    int64  `json:"finalAmount"`
}

func (h *OrderHandler) checkout(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "http.Checkout")
	defer span.End()

	var payload checkoutPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.service.Checkout(ctx, &application.CheckoutRequest{
		AccessToken:    bearerToken(r),
		IdempotencyKey: payload.IdempotencyKey,
		Items:          payload.Items,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOrder(w, order)
}

func (h *OrderHandler) cancel(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "http.Cancel")
	defer span.End()

	var payload cancelPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.OrderID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	order, err := h.service.Cancel(ctx, bearerToken(r), payload.OrderID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeOrder(w, order)
}

// writeError maps the error taxonomy onto HTTP status codes 1:1.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.Ctx(ctx).Warn().Err(err).Msg("request failed")
	switch {
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, inventory.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, authdomain.ErrExpiredToken),
		errors.Is(err, authdomain.ErrInvalidSignature),
		errors.Is(err, authdomain.ErrRevoked):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, domain.ErrNotOwner):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, inventory.ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, inventory.ErrInsufficientStock):
		// business-expected, not a bug; client decides whether to retry
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		// transient infrastructure error after retry budget exhausted
		http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	}
}

func writeOrder(w http.ResponseWriter, order *domain.Order) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(orderResponse{
		OrderID:        order.ID,
		Status:         string(order.State),
		TotalAmount:    order.TotalAmount,
		DiscountAmount: order.DiscountAmount,
		FinalAmount:    order.FinalAmount,
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
