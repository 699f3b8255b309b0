/*
main.go - Application entry point

PURPOSE:
  Starts the SolarPay financing engine: HTTP API, overdue scanner and the
  websocket notification feed. Handles configuration, dependency
  injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (optional) and config (config.toml + SOLARPAY_* env)
  2. Build the zap logger
  3. Open the SQLite store
  4. Pick the overdue deduper: Redis when enabled and reachable, memory otherwise
  5. Start the websocket hub, wire notifier, service and handler
  6. Start the overdue scanner and the HTTP server

CONFIGURATION:
  See config/config.go. Common overrides:
    SOLARPAY_APP_PORT=3000
    SOLARPAY_DATABASE_PATH=:memory:
    SOLARPAY_REDIS_ENABLED=true SOLARPAY_REDIS_ADDR=redis:6379
    SOLARPAY_SCHEDULER_INTERVAL=15m

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue scanner (waits for a pass in progress)
  2. Stop accepting new connections, drain requests (30s timeout)
  3. Close websocket subscribers, the deduper and the database

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Overdue scanner
  - notify/notifier.go: Overdue notifications
*/
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/solarpay/financing-engine/api"
	"github.com/solarpay/financing-engine/config"
	"github.com/solarpay/financing-engine/factory"
	"github.com/solarpay/financing-engine/generic"
	"github.com/solarpay/financing-engine/installment"
	"github.com/solarpay/financing-engine/logger"
	"github.com/solarpay/financing-engine/notify"
	"github.com/solarpay/financing-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system env or defaults")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.String("path", cfg.Database.Path), zap.Error(err))
	}
	defer store.Close()

	dedup := newDeduper(ctx, cfg, zlog)
	defer dedup.Close()

	hub := notify.NewHub(zlog.Named("hub"))
	go hub.Run(ctx)

	notifier := notify.NewNotifier(dedup, hub, cfg.Notify.DedupTTL, zlog.Named("notify"))
	service := installment.NewService(store, notifier, zlog.Named("installment"))
	handler := api.NewHandler(store, service, factory.NewAccountFactory(generic.Currency(cfg.Currency)), hub, zlog.Named("api"))

	scanner := api.NewOverdueScanner(handler.Registry, service, zlog.Named("scanner"))
	scanner.Interval = cfg.Scheduler.Interval
	scanner.Enabled = cfg.Scheduler.Enabled
	scanner.Start()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, cfg.CORS.AllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zlog.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.App.Env),
			zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zlog.Info("shutting down server")
	scanner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}
	cancel()

	zlog.Info("server stopped")
}

// newDeduper prefers Redis so several instances share one notification
// history. An unreachable Redis falls back to memory.
func newDeduper(ctx context.Context, cfg *config.Config, zlog *zap.Logger) notify.Deduper {
	if !cfg.Redis.Enabled {
		return notify.NewMemoryDeduper()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		zlog.Warn("redis unavailable, using in-memory overdue dedup",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err))
		_ = client.Close()
		return notify.NewMemoryDeduper()
	}

	zlog.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	return notify.NewRedisDeduper(client, cfg.Redis.Prefix)
}
