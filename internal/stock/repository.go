package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock data in PostgreSQL. It is the concrete Store:
// batch fetches use a single query per call and stock deltas are applied as
// store-side increments so concurrent reducers cannot lose updates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetStockLevels(ctx context.Context, ids []string) (map[string]StockLevel, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, current_stock, minimum_stock, selling_price
FROM products
WHERE id = ANY($1) AND deleted = FALSE`, ids)
	if err != nil {
		return nil, fmt.Errorf("stock: get stock levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[string]StockLevel, len(ids))
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ProductID, &level.Name, &level.CurrentStock, &level.MinimumStock, &level.SellingPrice); err != nil {
			return nil, err
		}
		levels[level.ProductID] = level
	}
	return levels, rows.Err()
}

func (r *Repository) GetPriceSnapshots(ctx context.Context, ids []string) (map[string]PriceSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, purchase_price, selling_price, unit, updated_at
FROM products
WHERE id = ANY($1) AND deleted = FALSE`, ids)
	if err != nil {
		return nil, fmt.Errorf("stock: get price snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[string]PriceSnapshot, len(ids))
	for rows.Next() {
		var id string
		var snap PriceSnapshot
		if err := rows.Scan(&id, &snap.PurchasePrice, &snap.SellingPrice, &snap.Unit, &snap.UpdatedAt); err != nil {
			return nil, err
		}
		snapshots[id] = snap
	}
	return snapshots, rows.Err()
}

// AdjustStock delegates the increment to the store; the RETURNING clause
// doubles as the post-mutation re-read.
func (r *Repository) AdjustStock(ctx context.Context, productID string, delta float64) (float64, error) {
	var newStock float64
	err := r.pool.QueryRow(ctx, `UPDATE products
SET current_stock = current_stock + $2, updated_at = NOW()
WHERE id = $1 AND deleted = FALSE
RETURNING current_stock`, productID, delta).Scan(&newStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("stock: adjust stock: %w", err)
	}
	return newStock, nil
}

// SetStock writes an absolute level; the RETURNING subquery reads the row
// from the pre-update snapshot, yielding the previous stock atomically.
func (r *Repository) SetStock(ctx context.Context, productID string, newStock float64) (float64, error) {
	var oldStock float64
	err := r.pool.QueryRow(ctx, `UPDATE products
SET current_stock = $2, updated_at = NOW()
WHERE id = $1 AND deleted = FALSE
RETURNING (SELECT current_stock FROM products WHERE id = $1)`, productID, newStock).Scan(&oldStock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrProductNotFound
		}
		return 0, fmt.Errorf("stock: set stock: %w", err)
	}
	return oldStock, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, tx StockTransaction) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `INSERT INTO stock_transactions
(id, tx_type, product_id, quantity, unit_price, total_amount, bill_id, notes, status, transaction_date)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`,
		tx.ID, string(tx.Type), tx.ProductID, tx.Quantity, tx.UnitPrice, tx.TotalAmount,
		nullStr(tx.BillID), tx.Notes, tx.Status, tx.TransactionDate).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("stock: insert transaction: %w", err)
	}
	return id, nil
}

func (r *Repository) ListTransactions(ctx context.Context, productID string, limit int) ([]StockTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tx_type, product_id, quantity, unit_price, total_amount, COALESCE(bill_id::text, ''), notes, status, transaction_date
FROM stock_transactions
WHERE product_id = $1
ORDER BY transaction_date DESC, id DESC
LIMIT $2`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("stock: list transactions: %w", err)
	}
	defer rows.Close()

	var txs []StockTransaction
	for rows.Next() {
		var tx StockTransaction
		var txType string
		if err := rows.Scan(&tx.ID, &txType, &tx.ProductID, &tx.Quantity, &tx.UnitPrice, &tx.TotalAmount, &tx.BillID, &tx.Notes, &tx.Status, &tx.TransactionDate); err != nil {
			return nil, err
		}
		tx.Type = TransactionType(txType)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func nullStr(value string) any {
	if value == "" {
		return nil
	}
	return value
}
