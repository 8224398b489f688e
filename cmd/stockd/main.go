// Package main is the entry point for the Stocklane daemon. It runs the
// River workers that rebuild ledgers and an admin HTTP listener for metrics,
// health and runtime log level.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"stocklane.io/stocklane/internal/config"
	"stocklane.io/stocklane/internal/infrastructure"
	"stocklane.io/stocklane/internal/jobs"
	"stocklane.io/stocklane/internal/pkg/logger"
	"stocklane.io/stocklane/internal/pkg/worker"
	"stocklane.io/stocklane/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting Stocklane",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("allow_negative", cfg.Stock.AllowNegative),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:   cfg.Worker.GeneralPoolSize,
		RecomputePoolSize: cfg.Worker.RecomputePoolSize,
	})
	if err != nil {
		return fmt.Errorf("init worker pools: %w", err)
	}
	defer pools.Shutdown()

	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
	}

	stores := db.Stores()
	ledger := service.NewLedgerService(stores, service.LedgerOptions{
		AllowNegative: cfg.Stock.AllowNegative,
	})

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewRecomputeWorker(ledger))
	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		return fmt.Errorf("init river: %w", err)
	}
	if err := db.RiverClient.Start(ctx); err != nil {
		return fmt.Errorf("start river: %w", err)
	}

	// Admin endpoints.
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/loglevel", logger.LevelHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() { //nolint:naked-goroutine // main server goroutine is exempt
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	logger.Info("Admin server started", zap.String("addr", srv.Addr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := db.RiverClient.Stop(shutdownCtx); err != nil {
		logger.Warn("River stop timed out", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("Stocklane stopped gracefully")
	return nil
}
