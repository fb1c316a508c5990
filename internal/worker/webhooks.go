// Package worker drains the webhook queue in the background.
package worker

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/metrics"
	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/payment"
	"github.com/safar/petplace/internal/store"
)

// Handler applies one queued event. Returning an error schedules a retry.
type Handler func(ctx context.Context, db *sql.DB, ev *models.WebhookEvent) error

// PaymentHandler applies a payment provider event to the matching payment.
func PaymentHandler(ctx context.Context, db *sql.DB, ev *models.WebhookEvent) error {
	parsed, err := payment.ParseEvent(ev.Payload)
	if err != nil {
		return err
	}
	_, err = store.UpdatePaymentStatus(ctx, db, ev.Provider, parsed.ProviderRef, parsed.Status)
	return err
}

type WebhookProcessor struct {
	db        *sql.DB
	rules     config.WebhookRules
	batchSize int
	handle    Handler
	logger    *zap.Logger
}

func NewWebhookProcessor(db *sql.DB, rules config.WebhookRules, batchSize int, handle Handler, logger *zap.Logger) *WebhookProcessor {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &WebhookProcessor{
		db:        db,
		rules:     rules,
		batchSize: batchSize,
		handle:    handle,
		logger:    logger,
	}
}

// RunOnce processes up to batchSize due events and returns how many it took.
func (p *WebhookProcessor) RunOnce(ctx context.Context) (int, error) {
	ctx = logging.WithContext(ctx, p.logger)

	for n := 0; n < p.batchSize; n++ {
		found, err := p.processNext(ctx)
		if err != nil {
			return n, err
		}
		if !found {
			return n, nil
		}
	}
	return p.batchSize, nil
}

// processNext claims one event and settles it in the same transaction, so a
// crash mid-way leaves the row unclaimed for the next run.
func (p *WebhookProcessor) processNext(ctx context.Context) (bool, error) {
	found := false

	err := database.WithTransaction(ctx, p.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		ev, err := store.ClaimWebhook(ctx, tx)
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}
		found = true

		log := p.logger.With(
			zap.Int64("webhook_id", ev.ID),
			zap.String("provider", ev.Provider),
			zap.String("event_id", ev.EventID),
			zap.Int("attempt", ev.Attempts+1))

		if handleErr := p.handle(ctx, p.db, ev); handleErr != nil {
			dead, err := store.MarkWebhookFailed(ctx, tx, ev, handleErr, p.rules.MaxAttempts, p.rules.Backoff)
			if err != nil {
				return err
			}
			if dead {
				metrics.WebhookJobs.WithLabelValues("dead").Inc()
				log.Error("webhook moved to dead letter", zap.Error(handleErr))
			} else {
				metrics.WebhookJobs.WithLabelValues("retried").Inc()
				log.Warn("webhook failed, will retry",
					zap.Duration("backoff", p.rules.Backoff),
					zap.Error(handleErr))
			}
			return nil
		}

		if err := store.MarkWebhookProcessed(ctx, tx, ev.ID); err != nil {
			return err
		}
		metrics.WebhookJobs.WithLabelValues("processed").Inc()
		log.Debug("webhook processed")
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("process webhook: %w", err)
	}

	return found, nil
}

// Schedule registers RunOnce on c using a standard cron spec or a
// descriptor such as "@every 10s".
func (p *WebhookProcessor) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		n, err := p.RunOnce(ctx)
		if err != nil {
			p.logger.Error("webhook run failed", zap.Int("processed", n), zap.Error(err))
			return
		}
		if n > 0 {
			p.logger.Info("webhook run finished", zap.Int("processed", n))
		}
	})
}
