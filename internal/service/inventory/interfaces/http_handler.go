package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"atelier/internal/pkg/logger"
	"atelier/internal/service/inventory/domain"
)

// CatalogHandler exposes the back-office stock endpoints.
type CatalogHandler struct {
	catalog domain.Catalog
}

func NewCatalogHandler(catalog domain.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /items", h.createItem)
	mux.HandleFunc("POST /items/adjust", h.adjustStock)
	mux.HandleFunc("GET /items", h.getItem)
}

type createItemPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UnitPrice  int64  `json:"unitPrice"`
	TotalStock int    `json:"totalStock"`
}

type adjustStockPayload struct {
	ItemID string `json:"itemId"`
	Delta  int    `json:"delta"`
}

type itemResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	UnitPrice  int64  `json:"unitPrice"`
	Available  int    `json:"available"`
	Reserved   int    `json:"reserved"`
	TotalStock int    `json:"totalStock"`
}

func (h *CatalogHandler) createItem(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var payload createItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	item := &domain.Item{
		ID:         payload.ID,
		Name:       payload.Name,
		UnitPrice:  payload.UnitPrice,
		TotalStock: payload.TotalStock,
	}
	if err := h.catalog.CreateItem(ctx, item); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *CatalogHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	var payload adjustStockPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.ItemID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	item, err := h.catalog.AdjustStock(ctx, payload.ItemID, payload.Delta)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeItem(w, item)
}

func (h *CatalogHandler) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	item, err := h.catalog.GetItem(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeItem(w, item)
}

func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger.Ctx(ctx).Warn().Err(err).Msg("catalog request failed")
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrItemNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrItemExists),
		errors.Is(err, domain.ErrInsufficientStock):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
	}
}

func writeItem(w http.ResponseWriter, item *domain.Item) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(itemResponse{
		ID:         item.ID,
		Name:       item.Name,
		UnitPrice:  item.UnitPrice,
		Available:  item.Available,
		Reserved:   item.Reserved,
		TotalStock: item.TotalStock,
	})
}
