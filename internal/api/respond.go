package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/payment"
	"github.com/safar/petplace/internal/upload"
)

var errMissingCaller = errors.New("missing X-User-ID header")

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("encode JSON response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

var errorStatus = []struct {
	err    error
	status int
}{
	{database.ErrUserNotFound, http.StatusNotFound},
	{database.ErrProductNotFound, http.StatusNotFound},
	{database.ErrOrderNotFound, http.StatusNotFound},
	{database.ErrCartNotFound, http.StatusNotFound},
	{database.ErrCartItemNotFound, http.StatusNotFound},
	{database.ErrPaymentNotFound, http.StatusNotFound},
	{database.ErrCommissionNotFound, http.StatusNotFound},
	{database.ErrPayoutNotFound, http.StatusNotFound},
	{database.ErrPetNotFound, http.StatusNotFound},
	{database.ErrAlertNotFound, http.StatusNotFound},
	{database.ErrLocationNotFound, http.StatusNotFound},
	{database.ErrStaffNotFound, http.StatusNotFound},
	{database.ErrConversationNotFound, http.StatusNotFound},
	{database.ErrPolicyNotFound, http.StatusNotFound},
	{database.ErrClaimNotFound, http.StatusNotFound},
	{database.ErrCampaignNotFound, http.StatusNotFound},

	{database.ErrInsufficientStock, http.StatusConflict},
	{database.ErrOptimisticLockFailed, http.StatusConflict},
	{database.ErrOrderNotCancellable, http.StatusConflict},
	{database.ErrInvalidTransition, http.StatusConflict},
	{database.ErrShiftOverlap, http.StatusConflict},
	{database.ErrAlertClosed, http.StatusConflict},
	{database.ErrCampaignInactive, http.StatusConflict},

	{database.ErrInvalidInput, http.StatusUnprocessableEntity},
	{database.ErrEmptyCart, http.StatusUnprocessableEntity},
	{database.ErrInvalidQuantity, http.StatusUnprocessableEntity},
	{database.ErrNoCommissions, http.StatusUnprocessableEntity},
	{database.ErrPayoutBelowMinimum, http.StatusUnprocessableEntity},
	{database.ErrInvalidShift, http.StatusUnprocessableEntity},
	{database.ErrSelfConversation, http.StatusUnprocessableEntity},
	{database.ErrInactivePolicy, http.StatusUnprocessableEntity},
	{upload.ErrInvalidFolder, http.StatusUnprocessableEntity},

	{database.ErrNotParticipant, http.StatusForbidden},
	{payment.ErrInvalidSignature, http.StatusUnauthorized},
	{errMissingCaller, http.StatusUnauthorized},
}

func statusFor(err error) int {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	if database.IsUniqueViolation(err) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail logs server-side failures and writes the mapped status. Internal
// details are not echoed back for 5xx responses.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		respondError(w, status, "internal error")
		return
	}
	respondError(w, status, err.Error())
}

func decode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

// callerID identifies the acting user. Authentication happens upstream; the
// gateway forwards the verified id in X-User-ID.
func callerID(r *http.Request) (int64, error) {
	raw := r.Header.Get("X-User-ID")
	if raw == "" {
		return 0, errMissingCaller
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errMissingCaller
	}
	return id, nil
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func queryFloat(r *http.Request, key string) (float64, error) {
	return strconv.ParseFloat(r.URL.Query().Get(key), 64)
}

func pageParams(r *http.Request) (int, int) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(r, "page_size", 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
