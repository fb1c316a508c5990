package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/store"
)

func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PetID        int64     `json:"pet_id"`
		Provider     string    `json:"provider"`
		PolicyNumber string    `json:"policy_number"`
		Coverage     []string  `json:"coverage"`
		Exclusions   []string  `json:"exclusions"`
		StartsAt     time.Time `json:"starts_at"`
		EndsAt       time.Time `json:"ends_at"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	policy, err := store.CreatePolicy(r.Context(), s.db, store.CreatePolicyRequest{
		PetID:        req.PetID,
		Provider:     req.Provider,
		PolicyNumber: req.PolicyNumber,
		Coverage:     req.Coverage,
		Exclusions:   req.Exclusions,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, policy)
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "policyID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid policy ID")
		return
	}

	policy, err := store.GetPolicy(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, policy)
}

func (s *Server) handleVerifyCoverage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "policyID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid policy ID")
		return
	}
	procedure := r.URL.Query().Get("procedure")
	if procedure == "" {
		respondError(w, http.StatusBadRequest, "procedure is required")
		return
	}

	check, err := store.VerifyCoverage(r.Context(), s.db, id, procedure)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, check)
}

func (s *Server) handleCreateClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PolicyID      int64           `json:"policy_id"`
		ProcedureType string          `json:"procedure_type"`
		Description   string          `json:"description"`
		Amount        decimal.Decimal `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	claim, err := store.CreateClaim(r.Context(), s.db, store.CreateClaimRequest{
		PolicyID:      req.PolicyID,
		ProcedureType: req.ProcedureType,
		Description:   req.Description,
		Amount:        req.Amount,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, claim)
}

func (s *Server) handleSubmitClaim(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "claimID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid claim ID")
		return
	}

	claim, err := store.SubmitClaim(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, claim)
}

func (s *Server) handleCreatePreAuth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PolicyID      int64           `json:"policy_id"`
		ProcedureType string          `json:"procedure_type"`
		EstimatedCost decimal.Decimal `json:"estimated_cost"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	pa, err := store.CreatePreAuthorization(r.Context(), s.db, store.PreAuthRequest{
		PolicyID:      req.PolicyID,
		ProcedureType: req.ProcedureType,
		EstimatedCost: req.EstimatedCost,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, pa)
}
