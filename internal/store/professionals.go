package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
)

type CreateProfessionalRequest struct {
	UserID       int64
	BusinessName string
	Category     string
}

// CreateProfessional registers a business profile and promotes its user to
// the professional role.
func CreateProfessional(ctx context.Context, db *sql.DB, req CreateProfessionalRequest) (*models.Professional, error) {
	p := &models.Professional{}
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE users SET role = $1, updated_at = NOW(), version = version + 1 WHERE id = $2`,
			models.RoleProfessional, req.UserID)
		if err != nil {
			return fmt.Errorf("promote user: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		} else if n == 0 {
			return database.ErrUserNotFound
		}

		return tx.QueryRowContext(ctx,
			`INSERT INTO professionals (user_id, business_name, category, created_at)
			 VALUES ($1, $2, $3, NOW())
			 RETURNING id, user_id, business_name, category, created_at`,
			req.UserID, req.BusinessName, req.Category).Scan(&p.ID, &p.UserID, &p.BusinessName, &p.Category, &p.CreatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("create professional: %w", err)
	}
	return p, nil
}

// StartSubscription ends any active subscription of the professional and
// opens a new one on tier.
func StartSubscription(ctx context.Context, db *sql.DB, professionalID int64, tier string, endsAt *time.Time) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE subscriptions SET status = 'ended', ends_at = NOW()
			 WHERE professional_id = $1 AND status = $2`,
			professionalID, models.SubscriptionStatusActive)
		if err != nil {
			return fmt.Errorf("end subscription: %w", err)
		}

		return tx.QueryRowContext(ctx,
			`INSERT INTO subscriptions (professional_id, tier, status, starts_at, ends_at)
			 VALUES ($1, $2, $3, NOW(), $4)
			 RETURNING id, professional_id, tier, status, starts_at, ends_at`,
			professionalID, tier, models.SubscriptionStatusActive, endsAt).Scan(
			&sub.ID, &sub.ProfessionalID, &sub.Tier, &sub.Status, &sub.StartsAt, &sub.EndsAt)
	})
	if err != nil {
		return nil, fmt.Errorf("start subscription: %w", err)
	}
	return sub, nil
}
