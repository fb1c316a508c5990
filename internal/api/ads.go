package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/store"
)

type adRecorder func(ctx context.Context, db *sql.DB, rules config.AdRules, campaignID int64) (*models.AdCampaign, error)

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	advertiserID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req struct {
		Name      string            `json:"name"`
		Targeting map[string]string `json:"targeting"`
		Budget    decimal.Decimal   `json:"budget"`
		StartsAt  time.Time         `json:"starts_at"`
		EndsAt    *time.Time        `json:"ends_at"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	campaign, err := store.CreateCampaign(r.Context(), s.db, store.CreateCampaignRequest{
		AdvertiserID: advertiserID,
		Name:         req.Name,
		Targeting:    req.Targeting,
		Budget:       req.Budget,
		StartsAt:     req.StartsAt,
		EndsAt:       req.EndsAt,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, campaign)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "campaignID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	campaign, err := store.GetCampaign(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, campaignView(campaign))
}

// handleEligibleCampaigns treats every query parameter as a targeting filter.
func (s *Server) handleEligibleCampaigns(w http.ResponseWriter, r *http.Request) {
	filters := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			filters[key] = values[0]
		}
	}

	campaigns, err := store.EligibleCampaigns(r.Context(), s.db, filters, time.Now())
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, campaigns)
}

func (s *Server) handleSetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "campaignID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	campaign, err := store.SetCampaignStatus(r.Context(), s.db, id, req.Status)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, campaignView(campaign))
}

func (s *Server) handleRecordImpression(w http.ResponseWriter, r *http.Request) {
	s.recordAdEvent(w, r, store.RecordImpression)
}

func (s *Server) handleRecordClick(w http.ResponseWriter, r *http.Request) {
	s.recordAdEvent(w, r, store.RecordClick)
}

func (s *Server) recordAdEvent(w http.ResponseWriter, r *http.Request, record adRecorder) {
	id, err := pathID(r, "campaignID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid campaign ID")
		return
	}

	campaign, err := record(r.Context(), s.db, s.rules.Ads, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, campaignView(campaign))
}

func campaignView(c *models.AdCampaign) map[string]interface{} {
	return map[string]interface{}{
		"campaign": c,
		"ctr":      c.CTR(),
	}
}
