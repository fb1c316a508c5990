package api

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/store"
)

func (s *Server) handleCreateProfessional(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		fail(w, r, err)
		return
	}

	var req struct {
		BusinessName string `json:"business_name"`
		Category     string `json:"category"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := store.CreateProfessional(r.Context(), s.db, store.CreateProfessionalRequest{
		UserID:       userID,
		BusinessName: req.BusinessName,
		Category:     req.Category,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleStartSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	var req struct {
		Tier   string     `json:"tier"`
		EndsAt *time.Time `json:"ends_at"`
	}
	if err := decode(r, &req); err != nil || req.Tier == "" {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	sub, err := store.StartSubscription(r.Context(), s.db, id, req.Tier, req.EndsAt)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleNearestProfessionals(w http.ResponseWriter, r *http.Request) {
	lat, errLat := queryFloat(r, "lat")
	lng, errLng := queryFloat(r, "lng")
	radius, errRadius := queryFloat(r, "radius_km")
	if errLat != nil || errLng != nil || errRadius != nil || radius <= 0 {
		respondError(w, http.StatusBadRequest, "lat, lng and a positive radius_km are required")
		return
	}

	results, err := store.NearestProfessionals(r.Context(), s.db, lat, lng, radius,
		r.URL.Query().Get("category"), queryInt(r, "limit", 20))
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleCreateLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	var req struct {
		Name      string  `json:"name"`
		Address   string  `json:"address"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Primary   bool    `json:"primary"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	location, err := store.CreateLocation(r.Context(), s.db, store.CreateLocationRequest{
		ProfessionalID: id,
		Name:           req.Name,
		Address:        req.Address,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		Primary:        req.Primary,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, location)
}

func (s *Server) handleListLocations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	locations, err := store.ListLocations(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, locations)
}

func (s *Server) handleSetPrimaryLocation(w http.ResponseWriter, r *http.Request) {
	professionalID, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}
	locationID, err := pathID(r, "locationID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid location ID")
		return
	}

	if err := store.SetPrimaryLocation(r.Context(), s.db, professionalID, locationID); err != nil {
		fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	var req struct {
		LocationID *int64 `json:"location_id"`
		Name       string `json:"name"`
		Role       string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	member, err := store.AddStaffMember(r.Context(), s.db, store.AddStaffRequest{
		ProfessionalID: id,
		LocationID:     req.LocationID,
		Name:           req.Name,
		Role:           req.Role,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, member)
}

func (s *Server) handleListStaff(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	staff, err := store.ListStaff(r.Context(), s.db, id, r.URL.Query().Get("active") == "true")
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, staff)
}

func (s *Server) handleScheduleShift(w http.ResponseWriter, r *http.Request) {
	staffID, err := pathID(r, "staffID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid staff ID")
		return
	}

	var req struct {
		LocationID *int64    `json:"location_id"`
		StartsAt   time.Time `json:"starts_at"`
		EndsAt     time.Time `json:"ends_at"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	shift, err := store.ScheduleShift(r.Context(), s.db, store.ScheduleShiftRequest{
		StaffMemberID: staffID,
		LocationID:    req.LocationID,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, shift)
}

func (s *Server) handleListShifts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		respondError(w, http.StatusBadRequest, "from and to must be RFC 3339 timestamps")
		return
	}

	shifts, err := store.ListShifts(r.Context(), s.db, id, from, to)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, shifts)
}

func (s *Server) handleCalculateCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	var req struct {
		TransactionType string          `json:"transaction_type"`
		ReferenceID     string          `json:"reference_id"`
		Amount          decimal.Decimal `json:"amount"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	commission, err := store.CalculateCommission(r.Context(), s.db, s.rules.Commission, store.CommissionRequest{
		ProfessionalID:  id,
		TransactionType: req.TransactionType,
		ReferenceID:     req.ReferenceID,
		Amount:          req.Amount,
	})
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, commission)
}

func (s *Server) handleListCommissions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	commissions, err := store.ListCommissions(r.Context(), s.db, id, r.URL.Query().Get("status"))
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, commissions)
}

func (s *Server) handleApproveCommission(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "commissionID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid commission ID")
		return
	}

	commission, err := store.ApproveCommission(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, commission)
}

func (s *Server) handlePendingBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	balance, err := store.PendingBalance(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"professional_id": id,
		"pending_balance": balance,
		"payout_minimum":  s.rules.Payout.Minimum,
	})
}

func (s *Server) handleCreatePayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	payout, err := store.CreatePayout(r.Context(), s.db, s.rules.Payout, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, payout)
}

func (s *Server) handleListPayouts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "professionalID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid professional ID")
		return
	}

	payouts, err := store.ListPayouts(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, payouts)
}

func (s *Server) handleCompletePayout(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "payoutID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payout ID")
		return
	}

	payout, err := store.CompletePayout(r.Context(), s.db, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, payout)
}
