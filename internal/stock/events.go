package stock

import "time"

// StockChangedEvent is published after a successful stock mutation so
// projection layers (consolidated views, caches) can refresh without
// reaching into store state.
type StockChangedEvent struct {
	ProductID     string          `json:"productId"`
	Type          TransactionType `json:"type"`
	Delta         float64         `json:"delta"`
	NewStock      float64         `json:"newStock"`
	TransactionID string          `json:"transactionId"`
	ReferenceID   string          `json:"referenceId,omitempty"`
	OccurredAt    time.Time       `json:"occurredAt"`
}
