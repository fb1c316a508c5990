package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/metrics"
	"github.com/safar/petplace/internal/models"
)

const commissionColumns = `id, professional_id, payout_id, transaction_type, reference_id, amount, rate, commission_amount, status, created_at, updated_at`

func scanCommission(row scanner, c *models.Commission) error {
	return row.Scan(
		&c.ID,
		&c.ProfessionalID,
		&c.PayoutID,
		&c.TransactionType,
		&c.ReferenceID,
		&c.Amount,
		&c.Rate,
		&c.CommissionAmount,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

type CommissionRequest struct {
	ProfessionalID  int64
	TransactionType string
	ReferenceID     string
	Amount          decimal.Decimal
}

// ActiveSubscriptionTier returns the tier of the professional's current
// active subscription, or "" when there is none.
func ActiveSubscriptionTier(ctx context.Context, db database.Querier, professionalID int64) (string, error) {
	var tier string
	err := db.QueryRowContext(ctx,
		`SELECT tier FROM subscriptions
		 WHERE professional_id = $1
		   AND status = $2
		   AND starts_at <= NOW()
		   AND (ends_at IS NULL OR ends_at > NOW())
		 ORDER BY starts_at DESC
		 LIMIT 1`,
		professionalID, models.SubscriptionStatusActive).Scan(&tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get subscription tier: %w", err)
	}
	return tier, nil
}

// CalculateCommission records a pending commission for one billable
// transaction. The rate depends on the transaction type and on whether the
// professional holds a premium subscription.
func CalculateCommission(ctx context.Context, db *sql.DB, rules config.CommissionRules, req CommissionRequest) (*models.Commission, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: commission amount must be positive", database.ErrInvalidInput)
	}

	tier, err := ActiveSubscriptionTier(ctx, db, req.ProfessionalID)
	if err != nil {
		return nil, err
	}

	rate := rules.RateFor(req.TransactionType, rules.IsPremiumTier(tier))
	amount := req.Amount.Mul(rate).Div(decimal.NewFromInt(100)).Round(2)

	commission := &models.Commission{}
	err = scanCommission(db.QueryRowContext(ctx,
		`INSERT INTO commissions (professional_id, transaction_type, reference_id, amount, rate, commission_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		 RETURNING `+commissionColumns,
		req.ProfessionalID, req.TransactionType, req.ReferenceID, req.Amount, rate, amount, models.CommissionStatusPending),
		commission)
	if err != nil {
		return nil, fmt.Errorf("create commission: %w", err)
	}

	metrics.CommissionsRecorded.WithLabelValues(req.TransactionType).Inc()
	return commission, nil
}

func ApproveCommission(ctx context.Context, db *sql.DB, id int64) (*models.Commission, error) {
	commission := &models.Commission{}
	err := scanCommission(db.QueryRowContext(ctx,
		`UPDATE commissions
		 SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING `+commissionColumns,
		models.CommissionStatusApproved, id, models.CommissionStatusPending),
		commission)
	if err == nil {
		return commission, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approve commission: %w", err)
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM commissions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check commission: %w", err)
	}
	if !exists {
		return nil, database.ErrCommissionNotFound
	}
	return nil, database.ErrInvalidTransition
}

// PendingBalance sums approved commissions not yet linked to a payout.
func PendingBalance(ctx context.Context, db database.Querier, professionalID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(commission_amount), 0)
		 FROM commissions
		 WHERE professional_id = $1 AND status = $2 AND payout_id IS NULL`,
		professionalID, models.CommissionStatusApproved).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pending balance: %w", err)
	}
	return total, nil
}

// CreatePayout batches every approved, unlinked commission of a professional
// into one payout. The commissions are locked while they are summed and
// linked, so two concurrent payouts cannot claim the same commission.
func CreatePayout(ctx context.Context, db *sql.DB, rules config.PayoutRules, professionalID int64) (*models.Payout, error) {
	payout := &models.Payout{}

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id, commission_amount
			 FROM commissions
			 WHERE professional_id = $1 AND status = $2 AND payout_id IS NULL
			 ORDER BY id
			 FOR UPDATE`,
			professionalID, models.CommissionStatusApproved)
		if err != nil {
			return fmt.Errorf("lock commissions: %w", err)
		}

		var ids []int64
		total := decimal.Zero
		for rows.Next() {
			var id int64
			var amount decimal.Decimal
			if err := rows.Scan(&id, &amount); err != nil {
				rows.Close()
				return fmt.Errorf("scan commission: %w", err)
			}
			ids = append(ids, id)
			total = total.Add(amount)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if len(ids) == 0 {
			return database.ErrNoCommissions
		}
		if total.LessThan(rules.Minimum) {
			return fmt.Errorf("%w: balance %s, minimum %s", database.ErrPayoutBelowMinimum, total.StringFixed(2), rules.Minimum.StringFixed(2))
		}

		err = tx.QueryRowContext(ctx,
			`INSERT INTO payouts (professional_id, reference, amount, commission_count, status, created_at)
			 VALUES ($1, $2, $3, $4, $5, NOW())
			 RETURNING id, professional_id, reference, amount, commission_count, status, paid_at, created_at`,
			professionalID, "PO-"+uuid.NewString(), total, len(ids), models.PayoutStatusPending).Scan(
			&payout.ID,
			&payout.ProfessionalID,
			&payout.Reference,
			&payout.Amount,
			&payout.CommissionCount,
			&payout.Status,
			&payout.PaidAt,
			&payout.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("create payout: %w", err)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE commissions
			 SET payout_id = $1, updated_at = NOW()
			 WHERE id = ANY($2) AND payout_id IS NULL`,
			payout.ID, pq.Array(ids))
		if err != nil {
			return fmt.Errorf("link commissions: %w", err)
		}

		linked, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if linked != int64(len(ids)) {
			return fmt.Errorf("link commissions: linked %d of %d", linked, len(ids))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PayoutsCreated.Inc()
	return payout, nil
}

// CompletePayout marks a payout as paid and its commissions as settled.
func CompletePayout(ctx context.Context, db *sql.DB, payoutID int64) (*models.Payout, error) {
	payout := &models.Payout{}

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE payouts
			 SET status = $1, paid_at = NOW()
			 WHERE id = $2 AND status = $3
			 RETURNING id, professional_id, reference, amount, commission_count, status, paid_at, created_at`,
			models.PayoutStatusCompleted, payoutID, models.PayoutStatusPending).Scan(
			&payout.ID,
			&payout.ProfessionalID,
			&payout.Reference,
			&payout.Amount,
			&payout.CommissionCount,
			&payout.Status,
			&payout.PaidAt,
			&payout.CreatedAt,
		)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrPayoutNotFound
			}
			return fmt.Errorf("complete payout: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE commissions SET status = $1, updated_at = NOW() WHERE payout_id = $2`,
			models.CommissionStatusPaid, payoutID)
		if err != nil {
			return fmt.Errorf("settle commissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return payout, nil
}

func ListPayouts(ctx context.Context, db *sql.DB, professionalID int64) ([]models.Payout, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, professional_id, reference, amount, commission_count, status, paid_at, created_at
		 FROM payouts
		 WHERE professional_id = $1
		 ORDER BY created_at DESC, id DESC`,
		professionalID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		var p models.Payout
		err := rows.Scan(&p.ID, &p.ProfessionalID, &p.Reference, &p.Amount, &p.CommissionCount, &p.Status, &p.PaidAt, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return payouts, nil
}

func ListCommissions(ctx context.Context, db *sql.DB, professionalID int64, status string) ([]models.Commission, error) {
	query := `SELECT ` + commissionColumns + ` FROM commissions WHERE professional_id = $1`
	args := []any{professionalID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commissions: %w", err)
	}
	defer rows.Close()

	var commissions []models.Commission
	for rows.Next() {
		var c models.Commission
		if err := scanCommission(rows, &c); err != nil {
			return nil, fmt.Errorf("scan commission: %w", err)
		}
		commissions = append(commissions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return commissions, nil
}
