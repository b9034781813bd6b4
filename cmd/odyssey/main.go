package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/inventory"
	"github.com/odyssey-erp/odyssey-ledger/internal/manufacturing"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/procurement"
	"github.com/odyssey-erp/odyssey-ledger/internal/sales"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "trigger":
			if len(os.Args) < 3 {
				logger.Error("usage: odyssey trigger gl-integrity|stock-reconcile")
				os.Exit(2)
			}
			os.Exit(jobsCommand(ctx, logger, cfg.RedisAddr, os.Args[2]))
		case "queue":
			os.Exit(jobsCommand(ctx, logger, cfg.RedisAddr, ""))
		}
	}

	rt, err := app.OpenRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer rt.Close(logger)

	metrics := observability.NewMetrics()
	services := app.NewServices(rt.Repos, app.ServiceDeps{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Redis:   rt.Redis,
	})
	if seeded, err := services.Accounting.SeedChart(ctx); err != nil {
		logger.Error("seed chart of accounts", slog.Any("error", err))
		os.Exit(1)
	} else if seeded > 0 {
		logger.Info("seeded chart of accounts", slog.Int("accounts", seeded))
	}

	var jobHandler *jobs.Handler
	if rt.Redis != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		AccountingHandler:    accounting.NewHandler(logger, services.Accounting),
		ReportsHandler:       reports.NewHandler(logger, services.Reports),
		InventoryHandler:     inventory.NewHandler(logger, services.Inventory),
		SalesHandler:         sales.NewHandler(logger, services.Sales),
		ProcurementHandler:   procurement.NewHandler(logger, services.Procurement),
		ManufacturingHandler: manufacturing.NewHandler(logger, services.Manufacturing),
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// jobsCommand enqueues the named check, or prints queue stats when name is empty.
func jobsCommand(ctx context.Context, logger *slog.Logger, redisAddr, name string) int {
	jobsCLI, err := cli.NewJobsCLI(redisAddr)
	if err != nil {
		logger.Error("jobs cli", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
	}()
	if name == "" {
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			logger.Error("inspect queue", slog.Any("error", err))
			return 1
		}
		fmt.Println(stats)
		return 0
	}
	info, err := jobsCLI.Trigger(ctx, name)
	if err != nil {
		logger.Error("trigger check", slog.String("check", name), slog.Any("error", err))
		return 1
	}
	logger.Info("check enqueued", slog.String("task", info.Type), slog.String("id", info.ID))
	return 0
}
