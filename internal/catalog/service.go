package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ListProducts(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	CountPendingBills(ctx context.Context, id string) (int, error)
	CountPendingTransactions(ctx context.Context, id string) (int, error)
	DeleteProduct(ctx context.Context, id string) error
	DeleteProductWithTransactions(ctx context.Context, id string) (int64, error)
}

// Publisher receives lifecycle events after commits.
type Publisher interface {
	PublishProductLifecycle(ctx context.Context, evt ProductLifecycleEvent) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// HardDeleteMaxAttempts bounds retries around the physical delete call.
	HardDeleteMaxAttempts int
	// HardDeleteBackoff is the base delay between those retries.
	HardDeleteBackoff time.Duration
}

// Service implements the product lifecycle state machine
// (ACTIVE -> SOFT_DELETED -> ACTIVE, ACTIVE -> HARD_DELETED) and serves the
// consolidated product view.
type Service struct {
	repo        RepositoryPort
	cache       *ConsolidationCache
	publisher   Publisher
	audit       AuditPort
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
	sleep       func(time.Duration)
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *ConsolidationCache, publisher Publisher, audit AuditPort, logger *slog.Logger, cfg ServiceConfig) *Service {
	attempts := cfg.HardDeleteMaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := cfg.HardDeleteBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		publisher:   publisher,
		audit:       audit,
		logger:      logger,
		maxAttempts: attempts,
		backoff:     backoff,
		sleep:       time.Sleep,
	}
}

// ConsolidatedView returns the aggregated product view, served from the
// versioned cache when available.
func (s *Service) ConsolidatedView(ctx context.Context) ([]ConsolidatedProduct, error) {
	key, err := s.cache.BuildKey(ctx, "list")
	if err != nil {
		return nil, err
	}
	return s.cache.FetchView(ctx, key, func(ctx context.Context) ([]ConsolidatedProduct, error) {
		products, err := s.repo.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		return BuildConsolidatedView(products), nil
	})
}

// RefreshConsolidated invalidates the cached view and rebuilds it.
func (s *Service) RefreshConsolidated(ctx context.Context) error {
	if err := s.cache.Bump(ctx); err != nil {
		return err
	}
	_, err := s.ConsolidatedView(ctx)
	return err
}

// SoftDelete zeroes stock and hides the product without losing history. The
// abandonment transaction is written before the flag flips so a crash in
// between never hides the fact that stock existed.
func (s *Service) SoftDelete(ctx context.Context, id string) error {
	if id == "" {
		return ErrProductNotFound
	}
	var stockAtDeletion float64
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		product, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if product.Deleted {
			return ErrAlreadyDeleted
		}
		stockAtDeletion = product.CurrentStock
		if product.CurrentStock > 0 {
			if err := tx.InsertAuditTransaction(ctx, abandonmentTransaction(product, "SOFT DELETE", now)); err != nil {
				return err
			}
		}
		return tx.MarkDeleted(ctx, id, now)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, "catalog:soft-delete", id, map[string]any{"stock_at_deletion": stockAtDeletion})
	s.publish(ctx, ProductLifecycleEvent{ProductID: id, Kind: LifecycleSoftDeleted, StockAtDeletion: stockAtDeletion, OccurredAt: now})
	return nil
}

// Restore un-hides a soft-deleted product. Stock is not replenished; a
// zero-effect adjustment keeps the audit trail contiguous.
func (s *Service) Restore(ctx context.Context, id string) error {
	if id == "" {
		return ErrProductNotFound
	}
	now := time.Now().UTC()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		product, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !product.Deleted {
			return ErrNotDeleted
		}
		if err := tx.ClearDeleted(ctx, id); err != nil {
			return err
		}
		restore := abandonmentTransaction(product, "RESTORE", now)
		restore.Quantity = 0
		return tx.InsertAuditTransaction(ctx, restore)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, "catalog:restore", id, nil)
	s.publish(ctx, ProductLifecycleEvent{ProductID: id, Kind: LifecycleRestored, OccurredAt: now})
	return nil
}

// HardDelete permanently removes a product. Reference conflicts are
// reported immediately and never retried; only the final physical delete is
// retried, with bounded backoff, to absorb transient store conflicts.
func (s *Service) HardDelete(ctx context.Context, id string) error {
	if id == "" {
		return ErrProductNotFound
	}
	pendingBills, err := s.repo.CountPendingBills(ctx, id)
	if err != nil {
		return fmt.Errorf("check pending bills: %w", err)
	}
	pendingTxs, err := s.repo.CountPendingTransactions(ctx, id)
	if err != nil {
		return fmt.Errorf("check pending transactions: %w", err)
	}
	if pendingBills > 0 || pendingTxs > 0 {
		return &ReferenceConflictError{PendingBills: pendingBills, PendingTransactions: pendingTxs}
	}

	product, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if product.CurrentStock > 0 {
		// Same ordering rule as soft delete: document the abandoned stock
		// before the row disappears.
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
			return tx.InsertAuditTransaction(ctx, abandonmentTransaction(product, "HARD DELETE", now))
		})
		if err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		lastErr = s.repo.DeleteProduct(ctx, id)
		if lastErr == nil {
			break
		}
		if !errors.Is(lastErr, ErrTransientConflict) {
			return lastErr
		}
		s.logger.Warn("hard delete conflict, retrying",
			slog.String("product_id", id),
			slog.Int("attempt", attempt))
		if attempt < s.maxAttempts {
			s.sleep(s.backoff * time.Duration(attempt))
		}
	}
	if lastErr != nil {
		return lastErr
	}

	s.recordAudit(ctx, "catalog:hard-delete", id, map[string]any{"stock_at_deletion": product.CurrentStock})
	s.publish(ctx, ProductLifecycleEvent{ProductID: id, Kind: LifecycleHardDeleted, StockAtDeletion: product.CurrentStock, OccurredAt: now})
	return nil
}

// ForceDelete destroys a product together with its whole transaction
// history, bypassing reference checks. It is the one sanctioned exception to
// the append-only ledger and exists for operator cleanup only.
func (s *Service) ForceDelete(ctx context.Context, id string) error {
	if id == "" {
		return ErrProductNotFound
	}
	removed, err := s.repo.DeleteProductWithTransactions(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Warn("force delete destroyed audit history",
		slog.String("product_id", id),
		slog.Int64("transactions_removed", removed))
	s.recordAudit(ctx, "catalog:force-delete", id, map[string]any{"transactions_removed": removed})
	s.publish(ctx, ProductLifecycleEvent{ProductID: id, Kind: LifecycleForceDeleted, OccurredAt: time.Now().UTC()})
	return nil
}

// GroupResult reports one member outcome of a consolidated-group delete.
type GroupResult struct {
	ProductID string `json:"productId"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// SoftDeleteGroup soft-deletes every member of a consolidated group. Members
// fail independently; the caller receives one outcome per id.
func (s *Service) SoftDeleteGroup(ctx context.Context, ids []string) []GroupResult {
	results := make([]GroupResult, 0, len(ids))
	for _, id := range ids {
		if err := s.SoftDelete(ctx, id); err != nil {
			results = append(results, GroupResult{ProductID: id, Error: err.Error()})
			continue
		}
		results = append(results, GroupResult{ProductID: id, Success: true})
	}
	return results
}

// Get returns a single product.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	return s.repo.Get(ctx, id)
}

func abandonmentTransaction(product Product, tag string, at time.Time) stock.StockTransaction {
	return stock.StockTransaction{
		ID:              uuid.NewString(),
		Type:            stock.TransactionTypeAdjustment,
		ProductID:       product.ID,
		Quantity:        product.CurrentStock,
		UnitPrice:       0,
		TotalAmount:     0,
		Notes:           fmt.Sprintf("%s: %s", tag, product.Name),
		Status:          stock.TransactionStatusCompleted,
		TransactionDate: at,
	}
}

func (s *Service) recordAudit(ctx context.Context, action, productID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   "product",
		EntityID: productID,
		Meta:     meta,
		At:       time.Now().UTC(),
	}); err != nil {
		s.logger.Warn("record audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) publish(ctx context.Context, evt ProductLifecycleEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishProductLifecycle(ctx, evt); err != nil {
		s.logger.Warn("publish lifecycle event",
			slog.String("product_id", evt.ProductID),
			slog.Any("error", err))
	}
}
