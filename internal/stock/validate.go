package stock

import (
	"context"
	"fmt"
	"strconv"
)

// ValidateStock checks whether every requested quantity can be satisfied by
// current stock. It performs one batch read and no writes. A missing product
// id fails its own item without aborting the rest; a store failure yields a
// single generic error so callers treat the batch as not satisfiable.
func (s *Service) ValidateStock(ctx context.Context, items []ValidationItem) (ValidationResult, error) {
	if len(items) == 0 {
		return ValidationResult{Valid: true}, nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.ProductID == "" {
			// Custom lines must be filtered out by the caller.
			return ValidationResult{Valid: false, Errors: []string{"validation item without product id"}}, ErrMissingProductID
		}
		ids = append(ids, item.ProductID)
	}

	levels, err := s.store.GetStockLevels(ctx, ids)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{"stock validation unavailable"},
		}, fmt.Errorf("%w: fetch stock levels: %v", ErrStoreUnavailable, err)
	}

	result := ValidationResult{Valid: true}
	for _, item := range items {
		level, ok := levels[item.ProductID]
		if !ok {
			iv := ItemValidation{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: 0,
				Valid:     false,
				Error:     fmt.Sprintf("Product %s not found", item.ProductID),
			}
			result.Items = append(result.Items, iv)
			result.Errors = append(result.Errors, iv.Error)
			result.Valid = false
			continue
		}
		iv := ItemValidation{
			ProductID:   item.ProductID,
			ProductName: level.Name,
			Requested:   item.Quantity,
			Available:   level.CurrentStock,
			Valid:       level.CurrentStock >= item.Quantity,
		}
		if !iv.Valid {
			iv.Error = fmt.Sprintf("%s: Insufficient stock (Available: %s, Requested: %s)",
				level.Name, formatQty(level.CurrentStock), formatQty(item.Quantity))
			result.Errors = append(result.Errors, iv.Error)
			result.Valid = false
		}
		result.Items = append(result.Items, iv)
	}
	return result, nil
}

// formatQty renders quantities without a trailing decimal point for whole
// numbers, matching the user-facing shortfall messages.
func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
