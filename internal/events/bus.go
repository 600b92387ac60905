// Package events carries domain events out of the service layer: Redis
// pub/sub for interested listeners plus a queued consolidation refresh so the
// cached view follows stock and lifecycle changes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/shopledger/shopledger/internal/catalog"
	"github.com/shopledger/shopledger/internal/stock"
)

const (
	// StockChangedChannel carries stock ledger mutations.
	StockChangedChannel = "stock.changed"
	// ProductLifecycleChannel carries soft/hard delete and restore events.
	ProductLifecycleChannel = "product.lifecycle"
)

// RefreshEnqueuer queues a consolidation refresh for the worker.
type RefreshEnqueuer interface {
	EnqueueConsolidationRefresh(ctx context.Context) error
}

// Bus implements the stock and catalog publisher ports.
type Bus struct {
	client   *redis.Client
	enqueuer RefreshEnqueuer
	logger   *slog.Logger
}

// NewBus builds the bus. Both client and enqueuer may be nil; publishing then
// degrades to the parts that are wired.
func NewBus(client *redis.Client, enqueuer RefreshEnqueuer, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{client: client, enqueuer: enqueuer, logger: logger}
}

// PublishStockChanged fans a ledger mutation out to subscribers and schedules
// a consolidated-view refresh since stock sums feed that projection.
func (b *Bus) PublishStockChanged(ctx context.Context, evt stock.StockChangedEvent) error {
	if err := b.publish(ctx, StockChangedChannel, evt); err != nil {
		return err
	}
	b.scheduleRefresh(ctx)
	return nil
}

// PublishProductLifecycle fans a lifecycle transition out and schedules a
// refresh; deletes and restores change group membership.
func (b *Bus) PublishProductLifecycle(ctx context.Context, evt catalog.ProductLifecycleEvent) error {
	if err := b.publish(ctx, ProductLifecycleChannel, evt); err != nil {
		return err
	}
	b.scheduleRefresh(ctx)
	return nil
}

func (b *Bus) publish(ctx context.Context, channel string, evt any) error {
	if b == nil || b.client == nil {
		return nil
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("events: marshal %s: %w", channel, err)
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", channel, err)
	}
	return nil
}

func (b *Bus) scheduleRefresh(ctx context.Context) {
	if b == nil || b.enqueuer == nil {
		return
	}
	if err := b.enqueuer.EnqueueConsolidationRefresh(ctx); err != nil {
		b.logger.Warn("enqueue consolidation refresh", slog.Any("error", err))
	}
}
