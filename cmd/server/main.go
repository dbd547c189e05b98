package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/citaflow/booking-backend/internal/app"
	"github.com/citaflow/booking-backend/internal/config"
	"github.com/citaflow/booking-backend/internal/db"
	"github.com/citaflow/booking-backend/internal/pkg/logger"
)

// reapInterval is how often expired slot holds are swept from storage.
// Correctness never depends on the sweep; queries already filter on expiry.
const reapInterval = 5 * time.Minute

func main() {
	// For receiving Ctrl+C / SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(cfg.IsProduction)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()

	// Connect DB
	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		zl.Fatal("failed to connect to db", zap.Error(err))
	}
	defer pool.Close()

	// Wire modules
	container := app.NewContainer(cfg, pool, zl)

	// Sweep expired holds in the background
	go func() {
		ticker := time.NewTicker(reapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := container.HoldService.ReapExpired(ctx); err != nil {
					zl.Warn("hold reap failed", zap.Error(err))
				}
			}
		}
	}()

	// Use http.Server for graceful shutdown
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: container.Router,
	}

	// Run server in separate goroutine
	go func() {
		zl.Info("server running", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for Ctrl+C
	<-ctx.Done()
	zl.Info("shutdown signal received")

	// Create a shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		zl.Warn("server forced to shutdown", zap.Error(err))
	}

	// Let in-flight side effects (calendar, email, merchant webhooks) finish.
	if !container.Background.Drain(cfg.DrainTimeout) {
		zl.Warn("background tasks did not drain in time")
	}

	zl.Info("server exited gracefully")
}
