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

	"go.uber.org/zap"

	"github.com/safar/petplace/internal/api"
	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/notify"
	"github.com/safar/petplace/internal/payment"
	"github.com/safar/petplace/internal/upload"
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
	zap.ReplaceGlobals(logger)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("connected to database")

	if cfg.App.WebhookSecret == "" {
		logger.Warn("PAYMENT_WEBHOOK_SECRET is empty, webhook signatures are trivially forgeable")
	}

	server := api.NewServer(api.Deps{
		DB:       db,
		Rules:    cfg.Rules,
		App:      cfg.App,
		Notifier: notify.NewService(db, logger),
		Uploader: upload.NewLocal(cfg.App.UploadDir, cfg.App.PublicBaseURL),
		Gateway:  payment.NewSandbox(cfg.App.WebhookSecret),
		Logger:   logger,
	})

	limiter := api.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateBurst, logger)
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			limiter.Cleanup(10000)
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.Routes(limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	logger.Info("shutting down")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
