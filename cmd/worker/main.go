package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"hackops/internal/audit"
	"hackops/internal/config"
	"hackops/internal/logging"
	"hackops/internal/queue"
	"hackops/internal/store"
)

// Worker drains check-in audit records from the Redis queue into the audit
// database.
func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend == "memory" {
		logger.Fatal("the worker needs QUEUE_BACKEND=redis; the in-memory queue is drained inside the station")
	}

	db, err := store.Open(ctx, cfg.AuditDriver, cfg.DatabaseURL, cfg.AuditSQLitePath)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	repo := audit.NewRepository(db.Client, db.Driver)
	if err := repo.Migrate(ctx); err != nil {
		logger.Fatal("audit migration failed", zap.Error(err))
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		logger.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey, logger.Named("queue"))
	consumer := audit.NewConsumer(q, repo, logger.Named("audit"))

	logger.Info("worker started, waiting for audit records")
	if err := consumer.Run(ctx); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
	logger.Info("worker stopped")
}
