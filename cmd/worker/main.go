package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/shopledger/shopledger/internal/app"
	"github.com/shopledger/shopledger/internal/billing"
	"github.com/shopledger/shopledger/internal/catalog"
	"github.com/shopledger/shopledger/internal/events"
	jobmetrics "github.com/shopledger/shopledger/internal/jobs"
	"github.com/shopledger/shopledger/internal/platform/cache"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	// The worker publishes events too, but never re-enqueues refreshes for
	// itself; the cron entry below covers drift.
	bus := events.NewBus(redisClient, nil, logger)
	auditLogger := shared.NewAuditLogger(pool)
	metrics := jobmetrics.NewMetrics(nil)

	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, bus, logger, stock.ServiceConfig{ItemTimeout: cfg.StockItemTimeout})

	consolidationCache := catalog.NewConsolidationCache(redisClient, cfg.ConsolidationCacheTTL)
	catalogRepo := catalog.NewRepository(pool)
	catalogService := catalog.NewService(catalogRepo, consolidationCache, bus, auditLogger, logger, catalog.ServiceConfig{
		HardDeleteMaxAttempts: cfg.HardDeleteMaxAttempts,
		HardDeleteBackoff:     cfg.HardDeleteBackoff,
	})

	billingRepo := billing.NewRepository(pool)

	applyJob := jobs.NewStockApplyJob(stockService, billingCompleter{repo: billingRepo}, logger, metrics)
	refreshJob := jobs.NewConsolidationRefreshJob(catalogService, logger, metrics)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskStockApply, Handler: applyJob.Handle},
			{Type: jobs.TaskConsolidationRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewConsolidationRefreshTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// billingCompleter narrows the bill repository to the guarded status
// transitions the apply job needs.
type billingCompleter struct {
	repo *billing.Repository
}

func (c billingCompleter) Complete(ctx context.Context, billID string) (bool, error) {
	return c.repo.TransitionStatus(ctx, billID, billing.BillStatusPending, billing.BillStatusCompleted)
}

func (c billingCompleter) Reopen(ctx context.Context, billID string) (bool, error) {
	return c.repo.TransitionStatus(ctx, billID, billing.BillStatusCompleted, billing.BillStatusPending)
}
