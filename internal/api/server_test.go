package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safar/petplace/internal/config"
	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/payment"
	"github.com/safar/petplace/internal/upload"
)

const testSecret = "whsec_test"

func newTestServer(t *testing.T, limiter *RateLimiter) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})

	s := NewServer(Deps{
		DB:       db,
		Rules:    config.DefaultRules(),
		App:      config.AppConfig{PublicBaseURL: "http://petplace.test"},
		Uploader: upload.NewLocal(t.TempDir(), "http://petplace.test"),
		Gateway:  payment.NewSandbox(testSecret),
		Logger:   zap.NewNop(),
	})
	return s.Routes(limiter), mock
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", database.ErrPetNotFound, http.StatusNotFound},
		{"wrapped", fmt.Errorf("create professional: %w", database.ErrUserNotFound), http.StatusNotFound},
		{"out of stock", &database.OutOfStockError{ProductID: 1, Requested: 3, Available: 1}, http.StatusConflict},
		{"below minimum", database.ErrPayoutBelowMinimum, http.StatusUnprocessableEntity},
		{"invalid input", fmt.Errorf("%w: radius must be positive", database.ErrInvalidInput), http.StatusUnprocessableEntity},
		{"outsider", database.ErrNotParticipant, http.StatusForbidden},
		{"signature", payment.ErrInvalidSignature, http.StatusUnauthorized},
		{"unique violation", &pq.Error{Code: "23505"}, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestCallerID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/cart", nil)
	_, err := callerID(r)
	assert.ErrorIs(t, err, errMissingCaller)

	r.Header.Set("X-User-ID", "abc")
	_, err = callerID(r)
	assert.ErrorIs(t, err, errMissingCaller)

	r.Header.Set("X-User-ID", "42")
	id, err := callerID(r)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCartRequiresCaller(t *testing.T) {
	h, _ := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cart", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSelfConversationRejected(t *testing.T) {
	h, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/conversations", strings.NewReader(`{"with_user_id":5}`))
	req.Header.Set("X-User-ID", "5")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPaymentWebhookRejectsBadSignature(t *testing.T) {
	h, _ := newTestServer(t, nil)

	body := `{"id":"evt_1","provider_ref":"ch_1","status":"paid"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	req.Header.Set("X-Signature", "deadbeef")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPaymentWebhookQueuesEvent(t *testing.T) {
	h, mock := newTestServer(t, nil)

	body := []byte(`{"id":"evt_1","provider_ref":"ch_1","status":"paid"}`)
	mock.ExpectExec("INSERT INTO webhook_events").
		WithArgs("sandbox", "evt_1", body).
		WillReturnResult(sqlmock.NewResult(1, 1))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(string(body)))
	req.Header.Set("X-Signature", payment.Sign([]byte(testSecret), body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		EventID   string `json:"event_id"`
		Duplicate bool   `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "evt_1", resp.EventID)
	assert.False(t, resp.Duplicate)
}

func TestPetCardNotFound(t *testing.T) {
	h, mock := newTestServer(t, nil)

	mock.ExpectQuery("FROM pets p").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/p/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := NewRateLimiter(1, 1, zap.NewNop())
	h, _ := newTestServer(t, limiter)

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusUnauthorized, first.Code)

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/cart", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// Public routes are never limited.
	health := httptest.NewRecorder()
	h.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, health.Code)
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(10, 10, zap.NewNop())
	limiter.getLimiter("a")
	limiter.getLimiter("b")

	limiter.Cleanup(5)
	assert.Len(t, limiter.limiters, 2)

	limiter.Cleanup(1)
	assert.Empty(t, limiter.limiters)
}

func TestInvalidInputIsUnprocessable(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"zero commission", http.MethodPost, "/professionals/1/commissions", `{"transaction_type":"appointment","amount":"0"}`},
		{"zero alert radius", http.MethodPost, "/alerts", `{"pet_id":5,"latitude":40.7,"longitude":-74,"radius_km":0}`},
		{"negative price", http.MethodPost, "/products", `{"sku":"K-1","name":"Kibble","price":"-1","stock":3}`},
		{"location off the globe", http.MethodPost, "/professionals/1/locations", `{"name":"Main","latitude":95,"longitude":0}`},
		{"user position off the globe", http.MethodPut, "/users/1/position", `{"latitude":0,"longitude":181}`},
		{"policy ends before start", http.MethodPost, "/insurance/policies", `{"pet_id":5,"starts_at":"2026-02-01T00:00:00Z","ends_at":"2026-01-01T00:00:00Z"}`},
		{"zero claim", http.MethodPost, "/insurance/claims", `{"policy_id":3,"procedure_type":"surgery","amount":"0"}`},
		{"zero budget", http.MethodPost, "/ads/campaigns", `{"name":"Spring","budget":"0"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestServer(t, nil)

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("X-User-ID", "7")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "internal error")
		})
	}
}

func TestPublicTokenRequiresOwner(t *testing.T) {
	h, mock := newTestServer(t, nil)

	mock.ExpectQuery("WHERE id = \\$2 AND owner_id = \\$3").
		WithArgs(sqlmock.AnyArg(), int64(5), int64(999)).
		WillReturnRows(sqlmock.NewRows([]string{"public_token"}))

	req := httptest.NewRequest(http.MethodPost, "/pets/5/token", nil)
	req.Header.Set("X-User-ID", "999")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "public_token")

	anonymous := httptest.NewRecorder()
	h.ServeHTTP(anonymous, httptest.NewRequest(http.MethodPost, "/pets/5/token", nil))
	assert.Equal(t, http.StatusUnauthorized, anonymous.Code)
}

func TestPublicTokenForOwner(t *testing.T) {
	h, mock := newTestServer(t, nil)

	mock.ExpectQuery("UPDATE pets").
		WithArgs(sqlmock.AnyArg(), int64(5), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"public_token"}).AddRow("tok-1"))

	req := httptest.NewRequest(http.MethodPost, "/pets/5/token", nil)
	req.Header.Set("X-User-ID", "2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"public_token":"tok-1","qr_code_url":"http://petplace.test/p/tok-1"}`, rec.Body.String())
}
