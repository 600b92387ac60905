package billing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/shopledger/shopledger/internal/observability"
	"github.com/shopledger/shopledger/internal/platform/httpx"
	"github.com/shopledger/shopledger/internal/stock"
)

// Handler wires HTTP endpoints for the billing module.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	metrics   *observability.Metrics
}

// NewHandler constructs the billing handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), metrics: metrics}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/{billID}", h.handleGet)
	r.Post("/{billID}/cancel", h.handleCancel)
}

type createBillRequest struct {
	CustomerID     string            `json:"customerId,omitempty"`
	CustomerName   string            `json:"customerName" validate:"max=200"`
	CustomerPhone  string            `json:"customerPhone" validate:"max=32"`
	Items          []billItemRequest `json:"items" validate:"required,min=1,dive"`
	ServiceCharge  float64           `json:"serviceCharge" validate:"gte=0"`
	DeliveryCharge float64           `json:"deliveryCharge" validate:"gte=0"`
	Discount       float64           `json:"discount" validate:"gte=0"`
	PaymentMethod  string            `json:"paymentMethod" validate:"max=32"`
	Notes          string            `json:"notes" validate:"max=1000"`
}

type billItemRequest struct {
	ProductID   string  `json:"productId,omitempty"`
	ProductName string  `json:"productName" validate:"required,max=300"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
	Unit        string  `json:"unit,omitempty" validate:"max=32"`
	IsCustom    bool    `json:"isCustom,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	items := make([]stock.BillItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, stock.BillItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			TotalPrice:  item.Quantity * item.UnitPrice,
			Unit:        item.Unit,
			IsCustom:    item.IsCustom,
		})
	}

	bill, err := h.service.CreateBill(r.Context(), CreateBillInput{
		CustomerID:     req.CustomerID,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		Items:          items,
		ServiceCharge:  req.ServiceCharge,
		DeliveryCharge: req.DeliveryCharge,
		Discount:       req.Discount,
		PaymentMethod:  req.PaymentMethod,
		Notes:          req.Notes,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondCreateError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.BillsCreated.Inc()
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) respondCreateError(w http.ResponseWriter, err error) {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		if h.metrics != nil {
			h.metrics.ValidationsFailed.Inc()
		}
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"success":    false,
			"stage":      "validation",
			"validation": valErr.Result,
		})
		return
	}
	if IsDuplicate(err) {
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", "bill with this idempotency key was already processed")
		return
	}
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		h.logger.Error("create bill", slog.String("stage", stageErr.Stage), slog.Any("error", stageErr.Err))
		if errors.Is(err, ErrEmptyBill) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	} else {
		h.logger.Error("create bill", slog.Any("error", err))
	}
	if errors.Is(err, stock.ErrStoreUnavailable) {
		httpx.Problem(w, http.StatusServiceUnavailable, "Store Unavailable", "backing store is unavailable")
		return
	}
	httpx.RespondError(w, err)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	bill, err := h.service.Get(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		if errors.Is(err, ErrBillNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get bill", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	bill, err := h.service.Cancel(r.Context(), chi.URLParam(r, "billID"))
	if err != nil {
		switch {
		case errors.Is(err, ErrBillNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrNotCancellable):
			httpx.Problem(w, http.StatusConflict, "Invalid Transition", err.Error())
		default:
			h.logger.Error("cancel bill", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, bill)
}
