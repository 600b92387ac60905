package stock

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shopledger/shopledger/internal/observability"
	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	metrics   *observability.Metrics
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), metrics: metrics}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/validate", h.handleValidate)
	r.Post("/adjustments", h.handleBulkAdjust)
	r.Get("/prices", h.handlePrices)
}

// MountProductRoutes registers the per-product ledger routes, mounted under
// the products tree alongside the catalog handler.
func (h *Handler) MountProductRoutes(r chi.Router) {
	r.Get("/{productID}/transactions", h.handleTransactions)
}

type validateRequest struct {
	Items []validateItemRequest `json:"items" validate:"required,min=1,dive"`
}

type validateItemRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]ValidationItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ValidationItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	result, err := h.service.ValidateStock(r.Context(), items)
	if err != nil {
		h.logger.Error("stock validation", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	if !result.Valid && h.metrics != nil {
		h.metrics.ValidationsFailed.Inc()
	}
	httpx.JSON(w, http.StatusOK, result)
}

type bulkAdjustRequest struct {
	Adjustments []adjustmentRequest `json:"adjustments" validate:"required,min=1,dive"`
}

type adjustmentRequest struct {
	ProductID string  `json:"productId" validate:"required"`
	NewStock  float64 `json:"newStock" validate:"gte=0"`
	Reason    string  `json:"reason,omitempty" validate:"max=500"`
}

type bulkAdjustResponse struct {
	Success bool               `json:"success"`
	Results []AdjustmentResult `json:"results"`
}

func (h *Handler) handleBulkAdjust(w http.ResponseWriter, r *http.Request) {
	var req bulkAdjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	adjustments := make([]Adjustment, 0, len(req.Adjustments))
	for _, adj := range req.Adjustments {
		adjustments = append(adjustments, Adjustment{ProductID: adj.ProductID, NewStock: adj.NewStock, Reason: adj.Reason})
	}
	results, err := h.service.BulkAdjust(r.Context(), adjustments)
	if err != nil {
		h.logger.Error("bulk adjust", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	success := true
	for _, res := range results {
		if !res.Success {
			success = false
			break
		}
	}
	httpx.JSON(w, http.StatusOK, bulkAdjustResponse{Success: success, Results: results})
}

func (h *Handler) handlePrices(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ids"))
	if raw == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ids query parameter required")
		return
	}
	ids := splitIDs(raw)
	if len(ids) == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "ids query parameter required")
		return
	}
	snapshots, err := h.service.FetchPrices(r.Context(), ids)
	if err != nil {
		h.logger.Error("fetch prices", slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, snapshots)
}

func (h *Handler) handleTransactions(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	txs, err := h.service.Transactions(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("list transactions", slog.String("product_id", productID), slog.Any("error", err))
		respondStockError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txs)
}

// splitIDs splits a comma-separated id list, trimming whitespace and
// dropping empty elements.
func splitIDs(raw string) []string {
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// respondStockError translates the package sentinels into RFC7807 responses.
func respondStockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrMissingProductID):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "operation timed out")
	case errors.Is(err, ErrStoreUnavailable):
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "backing store is unavailable")
	default:
		httpx.RespondError(w, err)
	}
}
