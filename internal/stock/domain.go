// Package stock implements the stock ledger and reconciliation core: batch
// validation of requested quantities, atomic stock mutation with an
// append-only transaction trail, line-item deduplication and price snapshots.
package stock

import (
	"errors"
	"time"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypePurchase represents inbound stock from a supplier.
	TransactionTypePurchase TransactionType = "purchase"
	// TransactionTypeSale represents an outbound sale movement.
	TransactionTypeSale TransactionType = "sale"
	// TransactionTypeAdjustment represents a manual correction.
	TransactionTypeAdjustment TransactionType = "adjustment"
	// TransactionTypeReturn represents stock restored by a reversal.
	TransactionTypeReturn TransactionType = "return"
	// TransactionTypeDamage represents written-off stock.
	TransactionTypeDamage TransactionType = "damage"
)

// TransactionStatusCompleted is the only status a persisted transaction
// carries; the ledger has no partial states.
const TransactionStatusCompleted = "completed"

// StockTransaction is an immutable audit record. Rows are created by the
// ledger writer and the product lifecycle manager and never mutated.
type StockTransaction struct {
	ID              string
	Type            TransactionType
	ProductID       string
	Quantity        float64
	UnitPrice       float64
	TotalAmount     float64
	BillID          string
	Notes           string
	Status          string
	TransactionDate time.Time
}

// BillItem is a transient bill line consumed by the dedup/validate/apply
// pipeline. ProductID is empty for free-text custom lines.
type BillItem struct {
	ProductID   string  `json:"productId,omitempty"`
	ProductName string  `json:"productName"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	TotalPrice  float64 `json:"totalPrice"`
	Unit        string  `json:"unit,omitempty"`
	IsCustom    bool    `json:"isCustom,omitempty"`
}

// ValidationItem is a single requested quantity to check.
type ValidationItem struct {
	ProductID string
	Quantity  float64
}

// ItemValidation carries the per-item verdict.
type ItemValidation struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName,omitempty"`
	Requested   float64 `json:"requested"`
	Available   float64 `json:"available"`
	Valid       bool    `json:"valid"`
	Error       string  `json:"error,omitempty"`
}

// ValidationResult aggregates per-item verdicts. Valid is the logical AND
// across items; Errors lists per-item failure strings in input order.
type ValidationResult struct {
	Valid  bool             `json:"valid"`
	Items  []ItemValidation `json:"items"`
	Errors []string         `json:"errors,omitempty"`
}

// Direction selects the sign of a ledger batch.
type Direction string

const (
	// DirectionReduce decrements stock (a sale).
	DirectionReduce Direction = "reduce"
	// DirectionRestore increments stock (a reversal).
	DirectionRestore Direction = "restore"
)

// ChangeItem is one ledger mutation request. UnitPrice overrides the
// product's current selling price when set.
type ChangeItem struct {
	ProductID string
	Quantity  float64
	UnitPrice *float64
}

// ItemResult reports the outcome of one ledger item. Items fail
// independently; a failed item never rolls back earlier successes.
type ItemResult struct {
	ProductID     string  `json:"productId"`
	Success       bool    `json:"success"`
	NewStock      float64 `json:"newStock,omitempty"`
	TransactionID string  `json:"transactionId,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// BatchResult aggregates a ledger batch. Success means every processed item
// succeeded; skipped items (missing product id) do not count.
type BatchResult struct {
	Success bool         `json:"success"`
	Items   []ItemResult `json:"items"`
	Errors  []string     `json:"errors,omitempty"`
}

// StockLevel is the validation projection of a product.
type StockLevel struct {
	ProductID    string
	Name         string
	CurrentStock float64
	MinimumStock float64
	SellingPrice float64
}

// PriceSnapshot is the price projection of a product.
type PriceSnapshot struct {
	PurchasePrice float64   `json:"purchasePrice"`
	SellingPrice  float64   `json:"sellingPrice"`
	Unit          string    `json:"unit"`
	UpdatedAt     time.Time `json:"lastUpdated"`
}

// Adjustment sets a product's stock to an absolute level.
type Adjustment struct {
	ProductID string
	NewStock  float64
	Reason    string
}

// AdjustmentResult reports one bulk-adjustment outcome.
type AdjustmentResult struct {
	ProductID     string  `json:"productId"`
	Success       bool    `json:"success"`
	OldStock      float64 `json:"oldStock"`
	NewStock      float64 `json:"newStock"`
	Diff          float64 `json:"diff"`
	TransactionID string  `json:"transactionId,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// PriceResolution names the policy applied when duplicate lines disagree on
// unit price.
type PriceResolution string

// PriceResolutionFirstOccurrence keeps the first-seen line's unit price and
// ignores later duplicates' prices. Deliberate: duplicate lines are expected
// to carry identical prices, and the merge never averages.
const PriceResolutionFirstOccurrence PriceResolution = "first-occurrence"

// ErrProductNotFound indicates a referenced product id is absent from the store.
var ErrProductNotFound = errors.New("stock: product not found")

// ErrInsufficientStock indicates a requested quantity exceeds available stock.
var ErrInsufficientStock = errors.New("stock: insufficient stock")

// ErrMissingProductID indicates a line expected to be standard carries no product id.
var ErrMissingProductID = errors.New("stock: missing product id")

// ErrStoreUnavailable wraps transient store or network failures.
var ErrStoreUnavailable = errors.New("stock: store unavailable")
