package stock

import (
	"strings"

	"golang.org/x/text/cases"
)

var keyFolder = cases.Fold()

// dedupeKey groups lines by product id, falling back to a synthetic key for
// free-text custom lines so identically named custom items collapse too.
func dedupeKey(item BillItem) string {
	if item.ProductID != "" {
		return item.ProductID
	}
	return "custom-" + keyFolder.String(strings.TrimSpace(item.ProductName))
}

// DedupeItems merges lines referencing the same product (or the same custom
// item name) into one, summing quantities. The merged line keeps the
// first-seen unit price (PriceResolutionFirstOccurrence) and recomputes
// TotalPrice as summed quantity times that price. Output preserves the
// insertion order of first occurrences. Pure function, idempotent.
func DedupeItems(items []BillItem) []BillItem {
	if len(items) == 0 {
		return nil
	}
	merged := make([]BillItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		key := dedupeKey(item)
		at, seen := index[key]
		if !seen {
			first := item
			first.TotalPrice = first.Quantity * first.UnitPrice
			index[key] = len(merged)
			merged = append(merged, first)
			continue
		}
		merged[at].Quantity += item.Quantity
		merged[at].TotalPrice = merged[at].Quantity * merged[at].UnitPrice
	}
	return merged
}
