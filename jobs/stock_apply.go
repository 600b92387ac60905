package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/stock"
)

// Ledger is the slice of the stock service the apply job drives.
type Ledger interface {
	ApplyStockChange(ctx context.Context, items []stock.ChangeItem, referenceID string, direction stock.Direction) (stock.BatchResult, error)
}

// BillCompleter transitions bills around the deferred ledger write. Both
// transitions are guarded; false means the bill was not in the expected
// state and nothing changed.
type BillCompleter interface {
	// Complete claims a pending bill as completed.
	Complete(ctx context.Context, billID string) (bool, error)
	// Reopen reverts a completed bill to pending.
	Reopen(ctx context.Context, billID string) (bool, error)
}

// StockApplyJob runs the deferred ledger write for a bill.
type StockApplyJob struct {
	Ledger  Ledger
	Bills   BillCompleter
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockApplyJob constructs the job handler.
func NewStockApplyJob(ledger Ledger, bills BillCompleter, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockApplyJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &StockApplyJob{Ledger: ledger, Bills: bills, Logger: logger, Metrics: metrics}
}

// Handle processes TaskStockApply tasks. Failed items are logged for
// reconciliation; the task itself is never retried since successful items
// have already moved stock.
func (j *StockApplyJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.Metrics.Track("stock_apply")
	var payload StockApplyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(errors.Join(asynq.SkipRetry, err))
	}

	// Claim the bill before moving stock. A bill cancelled while the task sat
	// in the queue must not have its reduction applied, and holding the claim
	// keeps a concurrent cancel from being overwritten afterwards.
	claimed := false
	if payload.Direction == stock.DirectionReduce && j.Bills != nil {
		ok, err := j.Bills.Complete(ctx, payload.BillID)
		if err != nil {
			j.Logger.Error("claim bill for stock apply",
				slog.String("bill_id", payload.BillID),
				slog.Any("error", err))
			return tracker.End(errors.Join(asynq.SkipRetry, err))
		}
		if !ok {
			j.Logger.Info("bill no longer pending, skipping stock apply",
				slog.String("bill_id", payload.BillID))
			return tracker.End(nil)
		}
		claimed = true
	}

	result, err := j.Ledger.ApplyStockChange(ctx, payload.Items, payload.BillID, payload.Direction)
	if err != nil {
		if claimed {
			if _, rerr := j.Bills.Reopen(ctx, payload.BillID); rerr != nil {
				j.Logger.Warn("reopen bill after failed apply",
					slog.String("bill_id", payload.BillID),
					slog.Any("error", rerr))
			}
		}
		j.Logger.Error("stock apply failed",
			slog.String("bill_id", payload.BillID),
			slog.String("direction", string(payload.Direction)),
			slog.Any("error", err))
		return tracker.End(errors.Join(asynq.SkipRetry, err))
	}
	if !result.Success {
		// Partial failure: stock moved for some items, so the claim stands and
		// the failed lines are reconciled manually against the transaction
		// trail.
		j.Logger.Error("stock apply partially failed",
			slog.String("bill_id", payload.BillID),
			slog.Int("failed_items", len(result.Errors)),
			slog.Any("errors", result.Errors))
		return tracker.End(nil)
	}

	j.Logger.Info("stock apply done",
		slog.String("bill_id", payload.BillID),
		slog.String("direction", string(payload.Direction)),
		slog.Int("items", len(result.Items)))
	return tracker.End(nil)
}
