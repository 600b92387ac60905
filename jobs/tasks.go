// Package jobs hosts the asynq task definitions and the worker runtime that
// executes deferred ledger writes and consolidation refreshes.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/shopledger/shopledger/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockApply executes the deferred ledger write for a bill.
	TaskStockApply = "stock:apply"
	// TaskConsolidationRefresh rebuilds the cached consolidated view.
	TaskConsolidationRefresh = "consolidation:refresh"
)

// StockApplyPayload describes one deferred ledger batch.
type StockApplyPayload struct {
	BillID    string             `json:"billId"`
	Items     []stock.ChangeItem `json:"items"`
	Direction stock.Direction    `json:"direction"`
}

// NewStockApplyTask constructs an Asynq task for the ledger write.
func NewStockApplyTask(payload StockApplyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// The ledger path is deliberately not retried: items fail independently
	// and a replay would double-apply the ones that succeeded.
	return asynq.NewTask(TaskStockApply, data, asynq.MaxRetry(0)), nil
}

// NewConsolidationRefreshTask constructs the refresh task.
func NewConsolidationRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskConsolidationRefresh, nil)
}
