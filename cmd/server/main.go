package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/msrxse/zero2prod/internal/api"
	"github.com/msrxse/zero2prod/internal/config"
	"github.com/msrxse/zero2prod/internal/domain"
	"github.com/msrxse/zero2prod/internal/email"
	"github.com/msrxse/zero2prod/internal/pkg/distlock"
	"github.com/msrxse/zero2prod/internal/pkg/logger"
	"github.com/msrxse/zero2prod/internal/repository/postgres"
	"github.com/msrxse/zero2prod/internal/service/subscription"
	"github.com/msrxse/zero2prod/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.RedactEnabled())
	if os.Getenv("DATABASE_URL") != "" {
		logger.Info("DATABASE_URL env override active")
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	logger.Info("pre-flight check passed", "port", port)

	// The sender address travels on every confirmation email; a malformed
	// one must fail startup, not the first subscription.
	sender, err := domain.ParseSubscriberEmail(cfg.Email.Sender)
	if err != nil {
		log.Fatalf("Invalid email.sender in config: %v", err)
	}

	if cfg.Database.URL == "" {
		log.Fatal("database.url (or DATABASE_URL) is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to reach database: %v", err)
	}
	pingCancel()
	logger.Info("connected to database")

	emailClient := email.NewClient(cfg.Email, sender)
	repo := postgres.NewSubscriptionRepo(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var svc *subscription.Service
	if cfg.Outbox.Enabled {
		outboxRepo := postgres.NewOutboxRepo(db)
		svc = subscription.NewServiceWithOutbox(repo, emailClient, outboxRepo)

		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Outbox.RedisAddr})
		defer redisClient.Close()
		lock := distlock.NewRedisLock(redisClient, "outbox-relay", 2*cfg.Outbox.PollInterval())

		relay := worker.NewOutboxRelay(outboxRepo, emailClient, lock, worker.OutboxRelayConfig{
			PollInterval: cfg.Outbox.PollInterval(),
			BatchSize:    cfg.Outbox.BatchSize,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
		})
		go relay.Run(ctx)
		logger.Info("outbox relay enabled", "redis_addr", cfg.Outbox.RedisAddr)
	} else {
		svc = subscription.NewService(repo, emailClient)
	}

	server := api.NewServer(cfg.Server, api.NewHandlers(svc, db))

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		logger.Info("server listening", "addr", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
