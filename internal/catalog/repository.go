package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/stock"
)

// Repository persists catalog data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore exposes the transactional operations the lifecycle manager runs.
type TxStore interface {
	GetProductForUpdate(ctx context.Context, id string) (Product, error)
	InsertAuditTransaction(ctx context.Context, tx stock.StockTransaction) error
	MarkDeleted(ctx context.Context, id string, at time.Time) error
	ClearDeleted(ctx context.Context, id string) error
}

type txStore struct {
	tx pgx.Tx
}

const productColumns = `id, name, COALESCE(brand_id::text, ''), COALESCE(category_id::text, ''), specifications,
current_stock, minimum_stock, reorder_level, purchase_price, selling_price, unit, is_active, deleted, deleted_at, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.BrandID, &p.CategoryID, &p.Specifications,
		&p.CurrentStock, &p.MinimumStock, &p.ReorderLevel, &p.PurchasePrice, &p.SellingPrice,
		&p.Unit, &p.IsActive, &p.Deleted, &p.DeletedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

// ListProducts returns the full product set, deleted rows included; the
// consolidation builder filters them.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	if r == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id string) (Product, error) {
	return scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("catalog repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

func (s *txStore) GetProductForUpdate(ctx context.Context, id string) (Product, error) {
	return scanProduct(s.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
}

func (s *txStore) InsertAuditTransaction(ctx context.Context, tx stock.StockTransaction) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO stock_transactions
(id, tx_type, product_id, quantity, unit_price, total_amount, bill_id, notes, status, transaction_date)
VALUES ($1,$2,$3,$4,$5,$6,NULL,$7,$8,$9)`,
		tx.ID, string(tx.Type), tx.ProductID, tx.Quantity, tx.UnitPrice, tx.TotalAmount,
		tx.Notes, tx.Status, tx.TransactionDate)
	return err
}

func (s *txStore) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	tag, err := s.tx.Exec(ctx, `UPDATE products
SET deleted = TRUE, deleted_at = $2, current_stock = 0, updated_at = NOW()
WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *txStore) ClearDeleted(ctx context.Context, id string) error {
	tag, err := s.tx.Exec(ctx, `UPDATE products
SET deleted = FALSE, deleted_at = NULL, updated_at = NOW()
WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// CountPendingBills counts non-final bills still referencing the product.
func (r *Repository) CountPendingBills(ctx context.Context, id string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT b.id)
FROM bills b
JOIN bill_items i ON i.bill_id = b.id
WHERE i.product_id = $1 AND b.status = 'pending'`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("catalog: count pending bills: %w", err)
	}
	return count, nil
}

// CountPendingTransactions counts ledger rows that never completed.
func (r *Repository) CountPendingTransactions(ctx context.Context, id string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM stock_transactions
WHERE product_id = $1 AND status <> 'completed'`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("catalog: count pending transactions: %w", err)
	}
	return count, nil
}

// DeleteProduct removes the physical row. Transient store conflicts are
// mapped to ErrTransientConflict so the lifecycle manager can retry the
// commit point with backoff.
func (r *Repository) DeleteProduct(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		if isTransient(err) {
			return fmt.Errorf("%w: %v", ErrTransientConflict, err)
		}
		return fmt.Errorf("catalog: delete product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

// DeleteProductWithTransactions destroys the product and its entire
// transaction history in one transaction. Force-delete only.
func (r *Repository) DeleteProductWithTransactions(ctx context.Context, id string) (int64, error) {
	var removed int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM stock_transactions WHERE product_id = $1`, id)
		if err != nil {
			return err
		}
		removed = tag.RowsAffected()
		productTag, err := tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if productTag.RowsAffected() == 0 {
			return ErrProductNotFound
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// isTransient reports serialization, deadlock and lock-timeout failures.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
