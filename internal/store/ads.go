package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/metrics"
	"github.com/safar/petplace/internal/models"
)

const campaignColumns = `id, advertiser_id, name, status, targeting, budget, spend, impressions, clicks, starts_at, ends_at, created_at`

func scanCampaign(row scanner, c *models.AdCampaign) error {
	var targeting []byte
	err := row.Scan(
		&c.ID,
		&c.AdvertiserID,
		&c.Name,
		&c.Status,
		&targeting,
		&c.Budget,
		&c.Spend,
		&c.Impressions,
		&c.Clicks,
		&c.StartsAt,
		&c.EndsAt,
		&c.CreatedAt,
	)
	if err != nil {
		return err
	}

	c.Targeting = map[string]string{}
	if len(targeting) > 0 {
		if err := json.Unmarshal(targeting, &c.Targeting); err != nil {
			return fmt.Errorf("decode targeting: %w", err)
		}
	}
	return nil
}

type CreateCampaignRequest struct {
	AdvertiserID int64
	Name         string
	Targeting    map[string]string
	Budget       decimal.Decimal
	StartsAt     time.Time
	EndsAt       *time.Time
}

func CreateCampaign(ctx context.Context, db *sql.DB, req CreateCampaignRequest) (*models.AdCampaign, error) {
	if !req.Budget.IsPositive() {
		return nil, fmt.Errorf("%w: campaign budget must be positive", database.ErrInvalidInput)
	}
	if req.StartsAt.IsZero() {
		req.StartsAt = time.Now()
	}

	targeting := req.Targeting
	if targeting == nil {
		targeting = map[string]string{}
	}
	payload, err := json.Marshal(targeting)
	if err != nil {
		return nil, fmt.Errorf("encode targeting: %w", err)
	}

	campaign := &models.AdCampaign{}
	err = scanCampaign(db.QueryRowContext(ctx,
		`INSERT INTO ad_campaigns (advertiser_id, name, status, targeting, budget, spend, impressions, clicks, starts_at, ends_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6, $7, NOW())
		 RETURNING `+campaignColumns,
		req.AdvertiserID, req.Name, models.CampaignStatusActive, payload, req.Budget, req.StartsAt, req.EndsAt), campaign)
	if err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return campaign, nil
}

func GetCampaign(ctx context.Context, db database.Querier, id int64) (*models.AdCampaign, error) {
	campaign := &models.AdCampaign{}
	err := scanCampaign(db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM ad_campaigns WHERE id = $1`, id), campaign)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCampaignNotFound
		}
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return campaign, nil
}

func RecordImpression(ctx context.Context, db *sql.DB, rules config.AdRules, campaignID int64) (*models.AdCampaign, error) {
	return recordAdEvent(ctx, db, campaignID, rules.ImpressionCost, 1, 0, "impression")
}

func RecordClick(ctx context.Context, db *sql.DB, rules config.AdRules, campaignID int64) (*models.AdCampaign, error) {
	return recordAdEvent(ctx, db, campaignID, rules.ClickCost, 0, 1, "click")
}

// recordAdEvent bills one event to an active campaign. The campaign switches
// to exhausted in the same statement once its spend reaches the budget.
func recordAdEvent(ctx context.Context, db *sql.DB, campaignID int64, cost decimal.Decimal, impressions, clicks int, kind string) (*models.AdCampaign, error) {
	campaign := &models.AdCampaign{}
	err := scanCampaign(db.QueryRowContext(ctx,
		`UPDATE ad_campaigns
		 SET spend = spend + $1,
		     impressions = impressions + $2,
		     clicks = clicks + $3,
		     status = CASE WHEN spend + $1 >= budget THEN $4 ELSE status END
		 WHERE id = $5 AND status = $6
		 RETURNING `+campaignColumns,
		cost, impressions, clicks, models.CampaignStatusExhausted, campaignID, models.CampaignStatusActive), campaign)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("record %s: %w", kind, err)
		}
		if _, getErr := GetCampaign(ctx, db, campaignID); getErr != nil {
			return nil, getErr
		}
		return nil, database.ErrCampaignInactive
	}

	metrics.AdEvents.WithLabelValues(kind).Inc()
	return campaign, nil
}

// EligibleCampaigns returns active campaigns in their date window with budget
// left whose targeting agrees with every filter.
func EligibleCampaigns(ctx context.Context, db *sql.DB, filters map[string]string, now time.Time) ([]models.AdCampaign, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+campaignColumns+`
		 FROM ad_campaigns
		 WHERE status = $1
		   AND starts_at <= $2
		   AND (ends_at IS NULL OR ends_at > $2)
		   AND spend < budget
		 ORDER BY id`,
		models.CampaignStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []models.AdCampaign
	for rows.Next() {
		var c models.AdCampaign
		if err := scanCampaign(rows, &c); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		if c.Matches(filters) {
			campaigns = append(campaigns, c)
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return campaigns, nil
}

func SetCampaignStatus(ctx context.Context, db *sql.DB, campaignID int64, status string) (*models.AdCampaign, error) {
	if status != models.CampaignStatusActive && status != models.CampaignStatusPaused {
		return nil, database.ErrInvalidTransition
	}

	campaign := &models.AdCampaign{}
	err := scanCampaign(db.QueryRowContext(ctx,
		`UPDATE ad_campaigns SET status = $1
		 WHERE id = $2 AND status <> $3
		 RETURNING `+campaignColumns,
		status, campaignID, models.CampaignStatusExhausted), campaign)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("update campaign status: %w", err)
		}
		if _, getErr := GetCampaign(ctx, db, campaignID); getErr != nil {
			return nil, getErr
		}
		return nil, database.ErrInvalidTransition
	}
	return campaign, nil
}
