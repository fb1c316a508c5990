package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Build logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor := worker.NewWebhookProcessor(db, cfg.Rules.Webhooks, cfg.Worker.BatchSize, worker.PaymentHandler, logger.Named("webhooks"))

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := processor.Schedule(ctx, c, cfg.Worker.Schedule); err != nil {
		logger.Fatal("invalid worker schedule", zap.String("schedule", cfg.Worker.Schedule), zap.Error(err))
	}

	c.Start()
	logger.Info("worker started",
		zap.String("schedule", cfg.Worker.Schedule),
		zap.Int("max_attempts", cfg.Rules.Webhooks.MaxAttempts),
		zap.Duration("backoff", cfg.Rules.Webhooks.Backoff))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("worker stopping")
	cancel()
	<-c.Stop().Done()
}
