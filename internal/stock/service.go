package stock

import (
	"context"
	"log/slog"
	"time"
)

// Store abstracts the document-store primitives the ledger relies on: batch
// reads with field projection, atomic numeric increments and append-only
// transaction creation.
type Store interface {
	// GetStockLevels batch-fetches the validation projection for the id set
	// in one round trip. Missing ids are absent from the map.
	GetStockLevels(ctx context.Context, ids []string) (map[string]StockLevel, error)
	// GetPriceSnapshots batch-fetches the price projection for the id set.
	GetPriceSnapshots(ctx context.Context, ids []string) (map[string]PriceSnapshot, error)
	// AdjustStock applies a signed delta to current stock as a store-side
	// atomic increment and returns the resulting level. Implementations must
	// never read-modify-write; concurrent reducers would lose updates.
	AdjustStock(ctx context.Context, productID string, delta float64) (float64, error)
	// SetStock writes an absolute stock level and returns the previous one.
	SetStock(ctx context.Context, productID string, newStock float64) (float64, error)
	// InsertTransaction appends one immutable transaction record.
	InsertTransaction(ctx context.Context, tx StockTransaction) (string, error)
	// ListTransactions returns a product's transaction history, newest first.
	ListTransactions(ctx context.Context, productID string, limit int) ([]StockTransaction, error)
}

// Publisher receives domain events after successful mutations.
type Publisher interface {
	PublishStockChanged(ctx context.Context, evt StockChangedEvent) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// ItemTimeout bounds each item's store round trips inside a batch.
	ItemTimeout time.Duration
}

// Service coordinates validation, deduplication and ledger writes.
type Service struct {
	store       Store
	publisher   Publisher
	logger      *slog.Logger
	itemTimeout time.Duration
}

// NewService builds Service.
func NewService(store Store, publisher Publisher, logger *slog.Logger, cfg ServiceConfig) *Service {
	timeout := cfg.ItemTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, publisher: publisher, logger: logger, itemTimeout: timeout}
}

// Transactions lists a product's ledger history.
func (s *Service) Transactions(ctx context.Context, productID string, limit int) ([]StockTransaction, error) {
	if productID == "" {
		return nil, ErrMissingProductID
	}
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListTransactions(ctx, productID, limit)
}

func (s *Service) publish(ctx context.Context, evt StockChangedEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStockChanged(ctx, evt); err != nil {
		s.logger.Warn("publish stock changed",
			slog.String("product_id", evt.ProductID),
			slog.Any("error", err))
	}
}
