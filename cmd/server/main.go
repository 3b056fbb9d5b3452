/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the trip review and publication engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse configuration from the environment
  2. Initialize the SQLite store
  3. Wire the API handler (lifecycle, scheduler, merger, calculator)
  4. Start the background publication sweeper
  5. Start the HTTP server with graceful shutdown

CONFIGURATION (environment):
  PORT            HTTP server port (default: 8080)
  DB_PATH         SQLite database path (default: travel.db, ":memory:" works)
  SWEEP_INTERVAL  Publication sweep interval (default: 1h)
  SWEEP_ENABLED   Whether the background sweep runs (default: true)
  CORS_ORIGINS    Comma-separated allowed origins
  LOG_LEVEL       debug | info | warn | error (default: info)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the sweeper
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/travel-engine/api"
	"github.com/warp/travel-engine/notify"
	"github.com/warp/travel-engine/store/sqlite"
)

type config struct {
	Port          int           `env:"PORT" envDefault:"8080"`
	DBPath        string        `env:"DB_PATH" envDefault:"travel.db"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`
	SweepEnabled  bool          `env:"SWEEP_ENABLED" envDefault:"true"`
	CORSOrigins   []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire handler and services
	conversations := notify.NewConversations(store, logger)
	handler := api.NewHandler(store, conversations, logger)
	handler.Scheduler.Mail = &notify.LogMailer{Logger: logger}

	// Background publication sweep
	sweeper := api.NewSweeper(handler.Scheduler, logger)
	sweeper.CheckInterval = cfg.SweepInterval
	sweeper.Enabled = cfg.SweepEnabled
	sweeper.Start()
	defer sweeper.Stop()

	// Create router and server
	router := api.NewRouter(handler, cfg.CORSOrigins)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Port),
			zap.String("db_path", cfg.DBPath))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
