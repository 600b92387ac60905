package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/stock"
)

// Repository persists bills in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create writes the bill header and its line items in one transaction.
func (r *Repository) Create(ctx context.Context, bill Bill) error {
	if r == nil {
		return errors.New("billing repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO bills
(id, bill_number, customer_id, customer_name, customer_phone, service_charge, delivery_charge, discount, subtotal, total, payment_method, notes, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			bill.ID, bill.BillNumber, nullStr(bill.CustomerID), bill.CustomerName, bill.CustomerPhone,
			bill.ServiceCharge, bill.DeliveryCharge, bill.Discount, bill.Subtotal, bill.Total,
			bill.PaymentMethod, bill.Notes, string(bill.Status), bill.CreatedAt, bill.UpdatedAt)
		if err != nil {
			return fmt.Errorf("billing: insert bill: %w", err)
		}
		for pos, item := range bill.Items {
			_, err := tx.Exec(ctx, `INSERT INTO bill_items
(bill_id, position, product_id, product_name, quantity, unit_price, total_price, unit, is_custom)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				bill.ID, pos, nullStr(item.ProductID), item.ProductName,
				item.Quantity, item.UnitPrice, item.TotalPrice, item.Unit, item.IsCustom)
			if err != nil {
				return fmt.Errorf("billing: insert bill item: %w", err)
			}
		}
		return nil
	})
}

// Get loads a bill with its items.
func (r *Repository) Get(ctx context.Context, id string) (Bill, error) {
	var bill Bill
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, bill_number, COALESCE(customer_id::text, ''), customer_name, customer_phone,
service_charge, delivery_charge, discount, subtotal, total, payment_method, notes, status, created_at, updated_at
FROM bills WHERE id = $1`, id).Scan(
		&bill.ID, &bill.BillNumber, &bill.CustomerID, &bill.CustomerName, &bill.CustomerPhone,
		&bill.ServiceCharge, &bill.DeliveryCharge, &bill.Discount, &bill.Subtotal, &bill.Total,
		&bill.PaymentMethod, &bill.Notes, &status, &bill.CreatedAt, &bill.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, fmt.Errorf("billing: get bill: %w", err)
	}
	bill.Status = BillStatus(status)

	rows, err := r.pool.Query(ctx, `SELECT COALESCE(product_id::text, ''), product_name, quantity, unit_price, total_price, unit, is_custom
FROM bill_items WHERE bill_id = $1 ORDER BY position`, id)
	if err != nil {
		return Bill{}, fmt.Errorf("billing: list bill items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item stock.BillItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &item.Unit, &item.IsCustom); err != nil {
			return Bill{}, err
		}
		bill.Items = append(bill.Items, item)
	}
	return bill, rows.Err()
}

// TransitionStatus moves the bill from one status to another, reporting
// whether the transition happened. A bill in any other state is left
// untouched so concurrent transitions cannot overwrite each other.
func (r *Repository) TransitionStatus(ctx context.Context, id string, from, to BillStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE bills SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("billing: transition status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bills WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("billing: transition status: %w", err)
	}
	if !exists {
		return false, ErrBillNotFound
	}
	return false, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
