package stock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ApplyStockChange mutates stock for each item by a signed delta and appends
// one transaction record per mutation. A reduce batch is validated first and
// aborted wholesale on failure; that gate is the only all-or-nothing step.
// Past it, items are independent best-effort units: a failed item is
// reported in its result and later items still proceed. There is no retry
// on this path.
func (s *Service) ApplyStockChange(ctx context.Context, items []ChangeItem, referenceID string, direction Direction) (BatchResult, error) {
	if direction != DirectionReduce && direction != DirectionRestore {
		return BatchResult{Success: false}, fmt.Errorf("stock: unknown direction %q", direction)
	}

	if direction == DirectionReduce {
		toValidate := make([]ValidationItem, 0, len(items))
		for _, item := range items {
			if item.ProductID == "" {
				continue
			}
			toValidate = append(toValidate, ValidationItem{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		verdict, err := s.ValidateStock(ctx, toValidate)
		if err != nil {
			return BatchResult{Success: false, Errors: verdict.Errors}, err
		}
		if !verdict.Valid {
			return BatchResult{Success: false, Errors: verdict.Errors},
				fmt.Errorf("%w: %d item(s) failed validation", ErrInsufficientStock, len(verdict.Errors))
		}
	}

	prices, err := s.resolvePrices(ctx, items)
	if err != nil {
		return BatchResult{Success: false, Errors: []string{"price resolution unavailable"}},
			fmt.Errorf("%w: resolve prices: %v", ErrStoreUnavailable, err)
	}

	sign := -1.0
	txType := TransactionTypeSale
	if direction == DirectionRestore {
		sign = 1.0
		txType = TransactionTypeReturn
	}

	result := BatchResult{Success: true}
	for _, item := range items {
		if item.ProductID == "" {
			// Custom lines carry no stock; skip with a warning, not a failure.
			s.logger.Warn("skipping ledger item without product id",
				slog.String("reference_id", referenceID))
			continue
		}
		res := s.applyItem(ctx, item, prices[item.ProductID], referenceID, sign, txType)
		if !res.Success {
			result.Success = false
			result.Errors = append(result.Errors, res.Error)
		}
		result.Items = append(result.Items, res)
	}
	return result, nil
}

// applyItem performs one item's increment plus transaction append under its
// own bounded timeout.
func (s *Service) applyItem(ctx context.Context, item ChangeItem, fallbackPrice float64, referenceID string, sign float64, txType TransactionType) ItemResult {
	ictx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	price := fallbackPrice
	if item.UnitPrice != nil {
		price = *item.UnitPrice
	}
	delta := item.Quantity * sign

	newStock, err := s.store.AdjustStock(ictx, item.ProductID, delta)
	if err != nil {
		return ItemResult{ProductID: item.ProductID, Error: itemError("adjust stock", item.ProductID, err)}
	}

	tx := StockTransaction{
		ID:              uuid.NewString(),
		Type:            txType,
		ProductID:       item.ProductID,
		Quantity:        item.Quantity,
		UnitPrice:       price,
		TotalAmount:     item.Quantity * price,
		BillID:          referenceID,
		Status:          TransactionStatusCompleted,
		TransactionDate: time.Now().UTC(),
	}
	txID, err := s.store.InsertTransaction(ictx, tx)
	if err != nil {
		// The increment has landed but the audit append failed; surface it so
		// the caller can reconcile instead of silently losing the trail.
		return ItemResult{ProductID: item.ProductID, NewStock: newStock,
			Error: itemError("append transaction", item.ProductID, err)}
	}

	s.publish(ctx, StockChangedEvent{
		ProductID:     item.ProductID,
		Type:          txType,
		Delta:         delta,
		NewStock:      newStock,
		TransactionID: txID,
		ReferenceID:   referenceID,
		OccurredAt:    tx.TransactionDate,
	})

	return ItemResult{ProductID: item.ProductID, Success: true, NewStock: newStock, TransactionID: txID}
}

// resolvePrices batch-fetches selling prices for items without an explicit
// unit price. Missing products resolve to zero; the mutation step will fail
// those items with not-found anyway.
func (s *Service) resolvePrices(ctx context.Context, items []ChangeItem) (map[string]float64, error) {
	var ids []string
	for _, item := range items {
		if item.ProductID != "" && item.UnitPrice == nil {
			ids = append(ids, item.ProductID)
		}
	}
	prices := make(map[string]float64, len(ids))
	if len(ids) == 0 {
		return prices, nil
	}
	levels, err := s.store.GetStockLevels(ctx, ids)
	if err != nil {
		return nil, err
	}
	for id, level := range levels {
		prices[id] = level.SellingPrice
	}
	return prices, nil
}

// BulkAdjust sets absolute stock levels and writes one adjustment
// transaction per item, reporting old/new/diff. Items fail independently.
func (s *Service) BulkAdjust(ctx context.Context, adjustments []Adjustment) ([]AdjustmentResult, error) {
	results := make([]AdjustmentResult, 0, len(adjustments))
	for _, adj := range adjustments {
		if adj.ProductID == "" {
			results = append(results, AdjustmentResult{Error: ErrMissingProductID.Error()})
			continue
		}
		results = append(results, s.adjustOne(ctx, adj))
	}
	return results, nil
}

func (s *Service) adjustOne(ctx context.Context, adj Adjustment) AdjustmentResult {
	ictx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	oldStock, err := s.store.SetStock(ictx, adj.ProductID, adj.NewStock)
	if err != nil {
		return AdjustmentResult{ProductID: adj.ProductID, Error: itemError("set stock", adj.ProductID, err)}
	}
	diff := adj.NewStock - oldStock

	notes := adj.Reason
	if notes == "" {
		notes = "Bulk stock adjustment"
	}
	now := time.Now().UTC()
	txID, err := s.store.InsertTransaction(ictx, StockTransaction{
		ID:              uuid.NewString(),
		Type:            TransactionTypeAdjustment,
		ProductID:       adj.ProductID,
		Quantity:        abs(diff),
		UnitPrice:       0,
		TotalAmount:     0,
		Notes:           notes,
		Status:          TransactionStatusCompleted,
		TransactionDate: now,
	})
	if err != nil {
		return AdjustmentResult{ProductID: adj.ProductID, OldStock: oldStock, NewStock: adj.NewStock, Diff: diff,
			Error: itemError("append transaction", adj.ProductID, err)}
	}

	s.publish(ctx, StockChangedEvent{
		ProductID:     adj.ProductID,
		Type:          TransactionTypeAdjustment,
		Delta:         diff,
		NewStock:      adj.NewStock,
		TransactionID: txID,
		OccurredAt:    now,
	})

	return AdjustmentResult{ProductID: adj.ProductID, Success: true, OldStock: oldStock, NewStock: adj.NewStock, Diff: diff, TransactionID: txID}
}

func itemError(op, productID string, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("%s: timeout for product %s", op, productID)
	case errors.Is(err, ErrProductNotFound):
		return fmt.Sprintf("Product %s not found", productID)
	default:
		return fmt.Sprintf("%s failed for product %s: %v", op, productID, err)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
