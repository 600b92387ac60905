package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// RepositoryPort persists bills.
type RepositoryPort interface {
	Create(ctx context.Context, bill Bill) error
	Get(ctx context.Context, id string) (Bill, error)
	TransitionStatus(ctx context.Context, id string, from, to BillStatus) (bool, error)
}

// StockGateway is the slice of the stock service billing depends on.
type StockGateway interface {
	ValidateStock(ctx context.Context, items []stock.ValidationItem) (stock.ValidationResult, error)
	FetchPrices(ctx context.Context, productIDs []string) (map[string]stock.PriceSnapshot, error)
}

// Enqueuer submits the deferred ledger write.
type Enqueuer interface {
	EnqueueStockApply(ctx context.Context, billID string, items []stock.ChangeItem, direction stock.Direction) error
}

// IdempotencyPort guards against duplicate bill submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

const idempotencyModule = "billing"

// Service implements bill creation and cancellation.
type Service struct {
	repo        RepositoryPort
	stocks      StockGateway
	enqueuer    Enqueuer
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService builds Service. idempotency may be nil; duplicate protection is
// then left to the caller.
func NewService(repo RepositoryPort, stocks StockGateway, enqueuer Enqueuer, idempotency IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, stocks: stocks, enqueuer: enqueuer, idempotency: idempotency, logger: logger}
}

// CreateBillInput is the normalized request for CreateBill.
type CreateBillInput struct {
	CustomerID     string
	CustomerName   string
	CustomerPhone  string
	Items          []stock.BillItem
	ServiceCharge  float64
	DeliveryCharge float64
	Discount       float64
	PaymentMethod  string
	Notes          string
	IdempotencyKey string
}

// CreateBill runs the full pipeline: dedupe, price resolution, synchronous
// stock validation, durable persist, then the asynchronous ledger write. The
// bill is written before any stock moves; the worker closes the gap.
func (s *Service) CreateBill(ctx context.Context, input CreateBillInput) (Bill, error) {
	items := stock.DedupeItems(input.Items)
	if len(items) == 0 {
		return Bill{}, &StageError{Stage: "normalize", Err: ErrEmptyBill}
	}

	if err := s.resolvePrices(ctx, items); err != nil {
		return Bill{}, &StageError{Stage: "price-resolution", Err: err}
	}

	if err := s.validate(ctx, items); err != nil {
		return Bill{}, &StageError{Stage: "validation", Err: err}
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModule); err != nil {
			return Bill{}, &StageError{Stage: "idempotency", Err: err}
		}
	}

	now := time.Now().UTC()
	bill := Bill{
		ID:             uuid.NewString(),
		BillNumber:     billNumber(now),
		CustomerID:     input.CustomerID,
		CustomerName:   input.CustomerName,
		CustomerPhone:  input.CustomerPhone,
		Items:          items,
		ServiceCharge:  input.ServiceCharge,
		DeliveryCharge: input.DeliveryCharge,
		Discount:       input.Discount,
		PaymentMethod:  input.PaymentMethod,
		Notes:          input.Notes,
		Status:         BillStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, item := range items {
		bill.Subtotal += item.TotalPrice
	}
	bill.Total = bill.Subtotal + bill.ServiceCharge + bill.DeliveryCharge - bill.Discount

	if err := s.repo.Create(ctx, bill); err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, input.IdempotencyKey); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		return Bill{}, &StageError{Stage: "persist", Err: err}
	}

	if err := s.enqueuer.EnqueueStockApply(ctx, bill.ID, changeItems(items), stock.DirectionReduce); err != nil {
		// The bill is durable; without the task its stock never moves, so
		// this must surface rather than be swallowed.
		return bill, &StageError{Stage: "enqueue", Err: err}
	}

	s.logger.Info("bill created",
		slog.String("bill_id", bill.ID),
		slog.Int("items", len(items)),
		slog.Float64("total", bill.Total))
	return bill, nil
}

// Get returns one bill.
func (s *Service) Get(ctx context.Context, id string) (Bill, error) {
	if id == "" {
		return Bill{}, ErrBillNotFound
	}
	return s.repo.Get(ctx, id)
}

// Complete claims a pending bill as completed once its ledger write lands.
// Called by the worker; a bill cancelled while the task sat in the queue is
// left alone and the claim reports false.
func (s *Service) Complete(ctx context.Context, id string) (bool, error) {
	return s.repo.TransitionStatus(ctx, id, BillStatusPending, BillStatusCompleted)
}

// Reopen reverts a completed bill to pending after a failed ledger write.
func (s *Service) Reopen(ctx context.Context, id string) (bool, error) {
	return s.repo.TransitionStatus(ctx, id, BillStatusCompleted, BillStatusPending)
}

// Cancel reverses a bill. A completed bill gets its stock restored through
// the ledger; a pending one is simply flagged since its apply never ran. The
// status flip is guarded so a concurrent transition cannot be overwritten.
func (s *Service) Cancel(ctx context.Context, id string) (Bill, error) {
	bill, err := s.repo.Get(ctx, id)
	if err != nil {
		return Bill{}, err
	}
	switch bill.Status {
	case BillStatusCancelled:
		return Bill{}, fmt.Errorf("%w: already cancelled", ErrNotCancellable)
	case BillStatusCompleted:
		if err := s.enqueuer.EnqueueStockApply(ctx, bill.ID, changeItems(bill.Items), stock.DirectionRestore); err != nil {
			return Bill{}, fmt.Errorf("enqueue stock restore: %w", err)
		}
	}
	ok, err := s.repo.TransitionStatus(ctx, id, bill.Status, BillStatusCancelled)
	if err != nil {
		return Bill{}, err
	}
	if !ok {
		return Bill{}, fmt.Errorf("%w: bill state changed concurrently", ErrNotCancellable)
	}
	bill.Status = BillStatusCancelled
	return bill, nil
}

// resolvePrices fills unit prices from the current snapshot for standard
// lines submitted without one. Custom lines keep whatever the clerk typed.
func (s *Service) resolvePrices(ctx context.Context, items []stock.BillItem) error {
	var ids []string
	for _, item := range items {
		if item.ProductID != "" && item.UnitPrice == 0 {
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	prices, err := s.stocks.FetchPrices(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch price snapshots: %w", err)
	}
	for i := range items {
		if items[i].ProductID == "" || items[i].UnitPrice != 0 {
			continue
		}
		if snap, ok := prices[items[i].ProductID]; ok {
			items[i].UnitPrice = snap.SellingPrice
			items[i].TotalPrice = items[i].Quantity * snap.SellingPrice
		}
	}
	return nil
}

func (s *Service) validate(ctx context.Context, items []stock.BillItem) error {
	toValidate := make([]stock.ValidationItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		toValidate = append(toValidate, stock.ValidationItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	result, err := s.stocks.ValidateStock(ctx, toValidate)
	if err != nil {
		return err
	}
	if !result.Valid {
		return &ValidationError{Result: result}
	}
	return nil
}

func changeItems(items []stock.BillItem) []stock.ChangeItem {
	changes := make([]stock.ChangeItem, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			continue
		}
		price := item.UnitPrice
		changes = append(changes, stock.ChangeItem{ProductID: item.ProductID, Quantity: item.Quantity, UnitPrice: &price})
	}
	return changes
}

func billNumber(at time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("B-%s-%s", at.Format("20060102"), strings.ToUpper(suffix))
}

// IsDuplicate reports whether an error came from idempotency protection.
func IsDuplicate(err error) bool {
	return errors.Is(err, shared.ErrIdempotencyConflict)
}
