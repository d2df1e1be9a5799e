package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/stockflow/internal/app"
	"github.com/odyssey-erp/stockflow/internal/dispatch"
	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/notify"
	"github.com/odyssey-erp/stockflow/internal/observability"
	"github.com/odyssey-erp/stockflow/internal/platform/cache"
	"github.com/odyssey-erp/stockflow/internal/platform/db"
	"github.com/odyssey-erp/stockflow/internal/procurement"
	"github.com/odyssey-erp/stockflow/internal/returns"
	"github.com/odyssey-erp/stockflow/internal/sales"
	"github.com/odyssey-erp/stockflow/internal/shared"
	"github.com/odyssey-erp/stockflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stockflow exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	redisOpts := cache.Options{Addr: cfg.RedisAddr}
	redisClient, err := cache.New(ctx, redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queueClient := asynq.NewClient(redisOpts.AsynqOpt())
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("asynq client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts.AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	hooks := shared.Hooks{
		Audit:    shared.NewAuditLogger(pool),
		Notifier: notify.NewQueueNotifier(queueClient, cfg.NotifyQueue),
		Metrics:  metrics,
		Logger:   logger,
	}
	idem := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)

	ledger := inventory.NewLedger(metrics)
	reservations := inventory.NewReservations(ledger)

	inventoryService := inventory.NewService(inventory.NewRepository(pool), reservations, idem, hooks, logger)

	salesRepo := sales.NewRepository(pool)
	credit := sales.NewCreditManager(salesRepo)
	salesService := sales.NewService(salesRepo, reservations, sales.NewTaxCalculator(), credit, hooks)

	procurementService := procurement.NewService(procurement.NewRepository(pool), ledger, idem, hooks)

	dispatchService := dispatch.NewService(dispatch.NewRepository(pool), reservations, idem,
		dispatch.Policy{AllowPartialFulfillment: cfg.AllowPartialFulfillment}, hooks)

	returnsService := returns.NewService(returns.NewRepository(pool), ledger, idem, hooks)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Pool:               pool,
		Metrics:            metrics,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		SalesHandler:       sales.NewHandler(logger, salesService, credit),
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		DispatchHandler:    dispatch.NewHandler(logger, dispatchService),
		ReturnsHandler:     returns.NewHandler(logger, returnsService),
		JobHandler:         jobs.NewHandler(inspector, jobs.NewClient(queueClient, cfg.NotifyQueue), cfg.NotifyQueue, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
