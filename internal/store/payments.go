package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/payment"
)

const paymentColumns = `id, order_id, provider, provider_ref, amount, currency, status, created_at, updated_at`

func scanPayment(row scanner, p *models.Payment) error {
	return row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Provider,
		&p.ProviderRef,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

// StartPayment charges a pending order through the gateway and records the
// resulting payment.
func StartPayment(ctx context.Context, db *sql.DB, gateway payment.Gateway, orderID int64, currency string) (*models.Payment, *payment.Charge, error) {
	order, err := GetOrder(ctx, db, orderID)
	if err != nil {
		return nil, nil, err
	}
	if order.Status != models.OrderStatusPending {
		return nil, nil, database.ErrInvalidTransition
	}
	if currency == "" {
		currency = "USD"
	}

	charge, err := gateway.CreatePayment(ctx, payment.ChargeRequest{
		OrderID:  order.ID,
		Amount:   order.TotalAmount,
		Currency: currency,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create charge: %w", err)
	}

	p := &models.Payment{}
	err = scanPayment(db.QueryRowContext(ctx,
		`INSERT INTO payments (order_id, provider, provider_ref, amount, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING `+paymentColumns,
		order.ID, gateway.Name(), charge.ProviderRef, order.TotalAmount, currency, charge.Status), p)
	if err != nil {
		return nil, nil, fmt.Errorf("create payment: %w", err)
	}

	return p, charge, nil
}

func GetPaymentByRef(ctx context.Context, db database.Querier, provider, providerRef string) (*models.Payment, error) {
	p := &models.Payment{}
	err := scanPayment(db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE provider = $1 AND provider_ref = $2`,
		provider, providerRef), p)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// UpdatePaymentStatus persists a provider status. A payment that becomes paid
// confirms its order if the order is still pending. Reapplying the same
// status is a no-op.
func UpdatePaymentStatus(ctx context.Context, db *sql.DB, provider, providerRef, status string) (*models.Payment, error) {
	p := &models.Payment{}
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := scanPayment(tx.QueryRowContext(ctx,
			`SELECT `+paymentColumns+`
			 FROM payments
			 WHERE provider = $1 AND provider_ref = $2
			 FOR UPDATE`,
			provider, providerRef), p)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrPaymentNotFound
			}
			return fmt.Errorf("lock payment: %w", err)
		}
		if p.Status == status {
			return nil
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`,
			status, p.ID).Scan(&p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}
		p.Status = status

		if status != models.PaymentStatusPaid {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, updated_at = NOW(), version = version + 1
			 WHERE id = $2 AND status = $3`,
			models.OrderStatusConfirmed, p.OrderID, models.OrderStatusPending)
		if err != nil {
			return fmt.Errorf("confirm order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return p, nil
}

// EnqueueWebhook stores a verified provider event for the worker. Redelivered
// events are ignored; the return value reports whether a row was added.
func EnqueueWebhook(ctx context.Context, db *sql.DB, provider, eventID string, payload []byte) (bool, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO webhook_events (provider, event_id, payload, available_at, created_at)
		 VALUES ($1, $2, $3, NOW(), NOW())
		 ON CONFLICT (provider, event_id) DO NOTHING`,
		provider, eventID, payload)
	if err != nil {
		return false, fmt.Errorf("enqueue webhook: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ClaimWebhook locks the oldest due event for the rest of tx. Rows already
// locked by another worker are skipped. It returns nil when nothing is due.
func ClaimWebhook(ctx context.Context, tx *sql.Tx) (*models.WebhookEvent, error) {
	ev := &models.WebhookEvent{}
	err := tx.QueryRowContext(ctx,
		`SELECT id, provider, event_id, payload, processed, dead, attempts, last_error, available_at, created_at
		 FROM webhook_events
		 WHERE processed = FALSE AND dead = FALSE AND available_at <= NOW()
		 ORDER BY available_at, id
		 LIMIT 1
		 FOR UPDATE SKIP LOCKED`).Scan(
		&ev.ID,
		&ev.Provider,
		&ev.EventID,
		&ev.Payload,
		&ev.Processed,
		&ev.Dead,
		&ev.Attempts,
		&ev.LastError,
		&ev.AvailableAt,
		&ev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim webhook: %w", err)
	}
	return ev, nil
}

func MarkWebhookProcessed(ctx context.Context, tx *sql.Tx, id int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE webhook_events SET processed = TRUE, attempts = attempts + 1, last_error = '' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark webhook processed: %w", err)
	}
	return nil
}

// MarkWebhookFailed records a failed attempt. The event is retried after
// backoff until maxAttempts is reached, then it is marked dead. It reports
// whether the event is now dead.
func MarkWebhookFailed(ctx context.Context, tx *sql.Tx, ev *models.WebhookEvent, cause error, maxAttempts int, backoff time.Duration) (bool, error) {
	attempts := ev.Attempts + 1
	dead := attempts >= maxAttempts

	_, err := tx.ExecContext(ctx,
		`UPDATE webhook_events
		 SET attempts = $1, dead = $2, last_error = $3, available_at = NOW() + $4 * INTERVAL '1 millisecond'
		 WHERE id = $5`,
		attempts, dead, cause.Error(), backoff.Milliseconds(), ev.ID)
	if err != nil {
		return false, fmt.Errorf("mark webhook failed: %w", err)
	}
	return dead, nil
}
