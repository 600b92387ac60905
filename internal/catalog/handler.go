package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/shopledger/shopledger/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the catalog module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	viewGroup singleflight.Group
}

// NewHandler constructs the catalog handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/consolidated", h.handleConsolidated)
	r.Post("/consolidated/delete", h.handleGroupDelete)
	r.Get("/{productID}", h.handleGet)
	r.Post("/{productID}/soft-delete", h.handleSoftDelete)
	r.Post("/{productID}/restore", h.handleRestore)
	r.Delete("/{productID}", h.handleHardDelete)
	r.Delete("/{productID}/force", h.handleForceDelete)
}

// handleConsolidated serves the aggregated view. Concurrent cache misses are
// collapsed into a single rebuild.
func (h *Handler) handleConsolidated(w http.ResponseWriter, r *http.Request) {
	resultChan := h.viewGroup.DoChan("consolidated", func() (interface{}, error) {
		return h.service.ConsolidatedView(context.WithoutCancel(r.Context()))
	})
	select {
	case <-r.Context().Done():
		httpx.RespondError(w, r.Context().Err())
	case res := <-resultChan:
		if res.Err != nil {
			h.logger.Error("consolidated view", slog.Any("error", res.Err))
			httpx.RespondError(w, res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, res.Val)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.Get(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get product", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

type lifecycleResponse struct {
	Success   bool   `json:"success"`
	ProductID string `json:"productId"`
	Message   string `json:"message,omitempty"`
}

func (h *Handler) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if err := h.service.SoftDelete(r.Context(), id); err != nil {
		h.respondLifecycleError(w, "soft delete", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Success: true, ProductID: id, Message: "product soft-deleted"})
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if err := h.service.Restore(r.Context(), id); err != nil {
		h.respondLifecycleError(w, "restore", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Success: true, ProductID: id, Message: "product restored; stock remains zero"})
}

func (h *Handler) handleHardDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if err := h.service.HardDelete(r.Context(), id); err != nil {
		h.respondLifecycleError(w, "hard delete", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Success: true, ProductID: id, Message: "product permanently deleted"})
}

func (h *Handler) handleForceDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	if err := h.service.ForceDelete(r.Context(), id); err != nil {
		h.respondLifecycleError(w, "force delete", id, err)
		return
	}
	httpx.JSON(w, http.StatusOK, lifecycleResponse{Success: true, ProductID: id, Message: "product and transaction history removed"})
}

type groupDeleteRequest struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,dive,required"`
}

func (h *Handler) handleGroupDelete(w http.ResponseWriter, r *http.Request) {
	var req groupDeleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	results := h.service.SoftDeleteGroup(r.Context(), req.ProductIDs)
	success := true
	for _, res := range results {
		if !res.Success {
			success = false
			break
		}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": success, "results": results})
}

func (h *Handler) respondLifecycleError(w http.ResponseWriter, op, id string, err error) {
	var refConflict *ReferenceConflictError
	switch {
	case errors.As(err, &refConflict):
		httpx.Problem(w, http.StatusConflict, "Reference Conflict", refConflict.Error())
	case errors.Is(err, ErrAlreadyDeleted), errors.Is(err, ErrNotDeleted):
		httpx.Problem(w, http.StatusConflict, "Invalid Lifecycle Transition", err.Error())
	case errors.Is(err, ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error(op, slog.String("product_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
