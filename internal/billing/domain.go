// Package billing creates customer bills on top of the stock ledger: request
// validation, line deduplication, price resolution, a synchronous stock gate
// and the deferred ledger write.
package billing

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopledger/shopledger/internal/stock"
)

// BillStatus tracks a bill through its ledger lifecycle.
type BillStatus string

const (
	// BillStatusPending marks a durable bill whose stock apply has not run yet.
	BillStatusPending BillStatus = "pending"
	// BillStatusCompleted marks a bill whose ledger write finished.
	BillStatusCompleted BillStatus = "completed"
	// BillStatusCancelled marks a reversed bill.
	BillStatusCancelled BillStatus = "cancelled"
)

// Bill is the persisted invoice aggregate.
type Bill struct {
	ID             string           `json:"id"`
	BillNumber     string           `json:"billNumber"`
	CustomerID     string           `json:"customerId,omitempty"`
	CustomerName   string           `json:"customerName,omitempty"`
	CustomerPhone  string           `json:"customerPhone,omitempty"`
	Items          []stock.BillItem `json:"items"`
	ServiceCharge  float64          `json:"serviceCharge,omitempty"`
	DeliveryCharge float64          `json:"deliveryCharge,omitempty"`
	Discount       float64          `json:"discount,omitempty"`
	Subtotal       float64          `json:"subtotal"`
	Total          float64          `json:"total"`
	PaymentMethod  string           `json:"paymentMethod,omitempty"`
	Notes          string           `json:"notes,omitempty"`
	Status         BillStatus       `json:"status"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// ErrBillNotFound indicates the bill id does not exist.
var ErrBillNotFound = errors.New("billing: bill not found")

// ErrEmptyBill indicates a bill without any line items.
var ErrEmptyBill = errors.New("billing: bill has no items")

// ErrNotCancellable indicates the bill status forbids cancellation.
var ErrNotCancellable = errors.New("billing: bill cannot be cancelled")

// StageError names the pipeline stage that rejected a bill so callers see
// where creation stopped, not just that it did.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("billing: %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// ValidationError carries the full per-item verdict of a failed stock gate.
type ValidationError struct {
	Result stock.ValidationResult
}

func (e *ValidationError) Error() string {
	return "billing: stock validation failed: " + strings.Join(e.Result.Errors, "; ")
}

// Unwrap lets errors.Is recognise the insufficient-stock class.
func (e *ValidationError) Unwrap() error { return stock.ErrInsufficientStock }
