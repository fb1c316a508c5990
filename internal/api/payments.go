package api

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/store"
)

const maxWebhookBody = 1 << 20

func (s *Server) handleStartPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "orderID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		Currency string `json:"currency"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	p, charge, err := store.StartPayment(r.Context(), s.db, s.gateway, id, req.Currency)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"payment":      p,
		"checkout_url": charge.CheckoutURL,
	})
}

// handlePaymentWebhook verifies the provider signature and queues the event.
// Processing happens in the worker, so the provider gets a fast 202.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := s.gateway.VerifyWebhook(payload, r.Header.Get("X-Signature"))
	if err != nil {
		logging.FromContext(r.Context()).Warn("rejected payment webhook", zap.Error(err))
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		respondError(w, status, err.Error())
		return
	}

	queued, err := store.EnqueueWebhook(r.Context(), s.db, s.gateway.Name(), ev.ID, payload)
	if err != nil {
		fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"event_id":  ev.ID,
		"duplicate": !queued,
	})
}
