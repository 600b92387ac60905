// Package catalog owns the product records behind the stock ledger: the
// consolidated read-only view over equivalent products and the soft-delete /
// restore / hard-delete lifecycle.
package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Product is one physical inventory row. CurrentStock is only ever mutated
// through the stock ledger or the lifecycle manager.
type Product struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	BrandID        string         `json:"brandId,omitempty"`
	CategoryID     string         `json:"categoryId,omitempty"`
	Specifications map[string]any `json:"specifications,omitempty"`
	CurrentStock   float64        `json:"currentStock"`
	MinimumStock   float64        `json:"minimumStock"`
	ReorderLevel   float64        `json:"reorderLevel"`
	PurchasePrice  float64        `json:"purchasePrice"`
	SellingPrice   float64        `json:"sellingPrice"`
	Unit           string         `json:"unit,omitempty"`
	IsActive       bool           `json:"isActive"`
	Deleted        bool           `json:"deleted,omitempty"`
	DeletedAt      *time.Time     `json:"deletedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// ConsolidatedProduct is a derived display row aggregating products that
// share brand, category and specification set. It is never written to.
type ConsolidatedProduct struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	BrandID        string         `json:"brandId,omitempty"`
	CategoryID     string         `json:"categoryId,omitempty"`
	Specifications map[string]any `json:"specifications,omitempty"`
	Unit           string         `json:"unit,omitempty"`
	PurchasePrice  float64        `json:"purchasePrice"`
	SellingPrice   float64        `json:"sellingPrice"`
	CurrentStock   float64        `json:"currentStock"`
	TotalEntries   int            `json:"totalEntries"`
	OriginalIDs    []string       `json:"originalIds"`
	LastUpdated    time.Time      `json:"lastUpdated"`
}

// ErrProductNotFound indicates the product id does not exist.
var ErrProductNotFound = errors.New("catalog: product not found")

// ErrAlreadyDeleted indicates a soft delete on an already deleted product.
var ErrAlreadyDeleted = errors.New("catalog: product already deleted")

// ErrNotDeleted indicates a restore on a product that is not deleted.
var ErrNotDeleted = errors.New("catalog: product is not deleted")

// ErrTransientConflict marks store errors worth retrying at the hard-delete
// commit point, and nowhere else.
var ErrTransientConflict = errors.New("catalog: transient store conflict")

// ReferenceConflictError blocks hard deletion while other records still
// reference the product. It is never retried; the counts make the error
// actionable.
type ReferenceConflictError struct {
	PendingBills        int
	PendingTransactions int
}

func (e *ReferenceConflictError) Error() string {
	return fmt.Sprintf("catalog: cannot delete product: %d pending bills, %d pending transactions",
		e.PendingBills, e.PendingTransactions)
}
