package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(AdEvents.WithLabelValues("click"))
	AdEvents.WithLabelValues("click").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AdEvents.WithLabelValues("click")))
}

func TestHandlerServesRegistry(t *testing.T) {
	OrdersCreated.Inc()
	ObserveHTTP(http.MethodGet, "/orders/{id}", http.StatusOK, 12*time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "petplace_commerce_orders_created_total")
	assert.Contains(t, body, `petplace_http_request_duration_seconds_count{method="GET",route="/orders/{id}",status="200"}`)
}
