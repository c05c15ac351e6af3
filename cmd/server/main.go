/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the progress engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env + environment, flags override)
  2. Build structured logger
  3. Initialize SQLite store
  4. Wire progression service, notification hub and API handler
  5. Start reconcile scheduler and HTTP server
  6. Wait for SIGINT/SIGTERM, then drain

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconcile scheduler
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/progress.db"

  # Run with in-memory database and demo catalog
  SEED_DEMO=true ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kubeasy-dev/progress-engine/api"
	"github.com/kubeasy-dev/progress-engine/config"
	"github.com/kubeasy-dev/progress-engine/logging"
	"github.com/kubeasy-dev/progress-engine/progression"
	"github.com/kubeasy-dev/progress-engine/store/sqlite"
)

func main() {
	cfg := config.Load()

	// Flags override the environment
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	flag.Parse()

	log := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackup,
		MaxAgeDays: cfg.LogMaxAgeDay,
	})
	defer log.Sync()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Seed demo catalog if requested
	if cfg.SeedDemo {
		if err := api.SeedDemo(context.Background(), store, log); err != nil {
			log.Fatal("failed to seed demo catalog", zap.Error(err))
		}
	}

	// Wire service
	hub := progression.NewHub()
	service := progression.NewService(store, store,
		progression.WithNotifier(hub),
		progression.WithLogger(log),
	)

	handler := api.NewHandler(service, store, hub, log)
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	// Background reconciliation
	scheduler, err := api.NewReconcileScheduler(store, cfg.ReconcileInterval, log)
	if err != nil {
		log.Fatal("failed to create scheduler", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal("failed to start scheduler", zap.Error(err))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.Int("port", *port), zap.String("db", *dbPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	scheduler.Stop()

	log.Info("server stopped")
}
