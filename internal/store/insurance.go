package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
)

const policyColumns = `id, pet_id, provider, policy_number, status, coverage, exclusions, starts_at, ends_at, created_at`

func scanPolicy(row scanner, p *models.PetInsurance) error {
	return row.Scan(
		&p.ID,
		&p.PetID,
		&p.Provider,
		&p.PolicyNumber,
		&p.Status,
		pq.Array(&p.Coverage),
		pq.Array(&p.Exclusions),
		&p.StartsAt,
		&p.EndsAt,
		&p.CreatedAt,
	)
}

type CreatePolicyRequest struct {
	PetID        int64
	Provider     string
	PolicyNumber string
	Coverage     []string
	Exclusions   []string
	StartsAt     time.Time
	EndsAt       time.Time
}

func CreatePolicy(ctx context.Context, db *sql.DB, req CreatePolicyRequest) (*models.PetInsurance, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return nil, fmt.Errorf("%w: policy must end after it starts", database.ErrInvalidInput)
	}

	policy := &models.PetInsurance{}
	err := scanPolicy(db.QueryRowContext(ctx,
		`INSERT INTO pet_insurances (pet_id, provider, policy_number, status, coverage, exclusions, starts_at, ends_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING `+policyColumns,
		req.PetID, req.Provider, req.PolicyNumber, models.PolicyStatusActive,
		pq.Array(req.Coverage), pq.Array(req.Exclusions), req.StartsAt, req.EndsAt), policy)
	if err != nil {
		return nil, fmt.Errorf("create policy: %w", err)
	}
	return policy, nil
}

func GetPolicy(ctx context.Context, db database.Querier, id int64) (*models.PetInsurance, error) {
	policy := &models.PetInsurance{}
	err := scanPolicy(db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM pet_insurances WHERE id = $1`, id), policy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("get policy: %w", err)
	}
	return policy, nil
}

// activePolicy loads a policy and checks it is active and in force at now.
func activePolicy(ctx context.Context, db database.Querier, policyID int64, now time.Time) (*models.PetInsurance, error) {
	policy, err := GetPolicy(ctx, db, policyID)
	if err != nil {
		return nil, err
	}
	if !policyInForce(policy, now) {
		return nil, database.ErrInactivePolicy
	}
	return policy, nil
}

func policyInForce(p *models.PetInsurance, now time.Time) bool {
	return p.Status == models.PolicyStatusActive && !now.Before(p.StartsAt) && now.Before(p.EndsAt)
}

type CreateClaimRequest struct {
	PolicyID      int64
	ProcedureType string
	Description   string
	Amount        decimal.Decimal
}

const claimColumns = `id, policy_id, pet_id, procedure_type, description, amount, status, submitted_at, created_at, updated_at`

func scanClaim(row scanner, c *models.InsuranceClaim) error {
	return row.Scan(
		&c.ID,
		&c.PolicyID,
		&c.PetID,
		&c.ProcedureType,
		&c.Description,
		&c.Amount,
		&c.Status,
		&c.SubmittedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
}

// CreateClaim opens a draft claim against an active policy.
func CreateClaim(ctx context.Context, db *sql.DB, req CreateClaimRequest) (*models.InsuranceClaim, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: claim amount must be positive", database.ErrInvalidInput)
	}

	policy, err := activePolicy(ctx, db, req.PolicyID, time.Now())
	if err != nil {
		return nil, err
	}

	claim := &models.InsuranceClaim{}
	err = scanClaim(db.QueryRowContext(ctx,
		`INSERT INTO insurance_claims (policy_id, pet_id, procedure_type, description, amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING `+claimColumns,
		policy.ID, policy.PetID, req.ProcedureType, req.Description, req.Amount, models.ClaimStatusDraft), claim)
	if err != nil {
		return nil, fmt.Errorf("create claim: %w", err)
	}
	return claim, nil
}

// SubmitClaim moves a draft claim to review. Claims in any other state are
// left untouched.
func SubmitClaim(ctx context.Context, db *sql.DB, claimID int64) (*models.InsuranceClaim, error) {
	claim := &models.InsuranceClaim{}
	err := scanClaim(db.QueryRowContext(ctx,
		`UPDATE insurance_claims
		 SET status = $1, submitted_at = NOW(), updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING `+claimColumns,
		models.ClaimStatusUnderReview, claimID, models.ClaimStatusDraft), claim)
	if err == nil {
		return claim, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submit claim: %w", err)
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM insurance_claims WHERE id = $1)`, claimID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check claim: %w", err)
	}
	if !exists {
		return nil, database.ErrClaimNotFound
	}
	return nil, database.ErrInvalidTransition
}

type PreAuthRequest struct {
	PolicyID      int64
	ProcedureType string
	EstimatedCost decimal.Decimal
}

func CreatePreAuthorization(ctx context.Context, db *sql.DB, req PreAuthRequest) (*models.PreAuthorization, error) {
	policy, err := activePolicy(ctx, db, req.PolicyID, time.Now())
	if err != nil {
		return nil, err
	}

	pa := &models.PreAuthorization{}
	err = db.QueryRowContext(ctx,
		`INSERT INTO insurance_pre_authorizations (policy_id, pet_id, procedure_type, estimated_cost, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, policy_id, pet_id, procedure_type, estimated_cost, status, created_at`,
		policy.ID, policy.PetID, req.ProcedureType, req.EstimatedCost, models.PreAuthStatusPending).Scan(
		&pa.ID, &pa.PolicyID, &pa.PetID, &pa.ProcedureType, &pa.EstimatedCost, &pa.Status, &pa.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create pre-authorization: %w", err)
	}
	return pa, nil
}

// VerifyCoverage answers whether a procedure is covered by a policy. It does
// not write anything.
func VerifyCoverage(ctx context.Context, db database.Querier, policyID int64, procedureType string) (*models.CoverageCheck, error) {
	policy, err := GetPolicy(ctx, db, policyID)
	if err != nil {
		return nil, err
	}

	return &models.CoverageCheck{
		PolicyID:      policy.ID,
		ProcedureType: procedureType,
		Covered:       policy.Covers(procedureType),
		PolicyActive:  policyInForce(policy, time.Now()),
	}, nil
}
