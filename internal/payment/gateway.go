// Package payment defines the contract with external payment providers.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/safar/petplace/internal/models"
)

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrUnknownCharge    = errors.New("unknown charge")
	ErrRefundExceeds    = errors.New("refund exceeds charged amount")
)

type ChargeRequest struct {
	OrderID  int64
	Amount   decimal.Decimal
	Currency string
}

type Charge struct {
	ProviderRef string
	Status      string
	CheckoutURL string
}

// WebhookEvent is a verified provider notification.
type WebhookEvent struct {
	ID          string `json:"id"`
	ProviderRef string `json:"provider_ref"`
	Status      string `json:"status"`
}

type Gateway interface {
	Name() string
	CreatePayment(ctx context.Context, req ChargeRequest) (*Charge, error)
	PaymentStatus(ctx context.Context, providerRef string) (string, error)
	Refund(ctx context.Context, providerRef string, amount decimal.Decimal) error
	VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

func ParseEvent(payload []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if ev.ID == "" || ev.ProviderRef == "" {
		return nil, errors.New("webhook payload missing id or provider_ref")
	}
	switch ev.Status {
	case models.PaymentStatusPaid, models.PaymentStatusFailed, models.PaymentStatusRefunded, models.PaymentStatusPending:
	default:
		return nil, fmt.Errorf("unsupported payment status %q", ev.Status)
	}
	return &ev, nil
}

// Sign returns the hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

type sandboxCharge struct {
	amount   decimal.Decimal
	refunded decimal.Decimal
	status   string
}

// Sandbox is an in-process provider for local development and tests.
// Charges settle immediately as paid.
type Sandbox struct {
	secret []byte

	mu      sync.Mutex
	charges map[string]*sandboxCharge
}

func NewSandbox(secret string) *Sandbox {
	return &Sandbox{secret: []byte(secret), charges: make(map[string]*sandboxCharge)}
}

func (s *Sandbox) Name() string { return "sandbox" }

func (s *Sandbox) CreatePayment(_ context.Context, req ChargeRequest) (*Charge, error) {
	if !req.Amount.IsPositive() {
		return nil, errors.New("charge amount must be positive")
	}

	ref := "sbx_" + uuid.NewString()

	s.mu.Lock()
	s.charges[ref] = &sandboxCharge{amount: req.Amount, status: models.PaymentStatusPaid}
	s.mu.Unlock()

	return &Charge{
		ProviderRef: ref,
		Status:      models.PaymentStatusPending,
		CheckoutURL: "https://sandbox.invalid/checkout/" + ref,
	}, nil
}

func (s *Sandbox) PaymentStatus(_ context.Context, providerRef string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.charges[providerRef]
	if !ok {
		return "", ErrUnknownCharge
	}
	return c.status, nil
}

func (s *Sandbox) Refund(_ context.Context, providerRef string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.charges[providerRef]
	if !ok {
		return ErrUnknownCharge
	}
	if c.refunded.Add(amount).GreaterThan(c.amount) {
		return ErrRefundExceeds
	}
	c.refunded = c.refunded.Add(amount)
	if c.refunded.Equal(c.amount) {
		c.status = models.PaymentStatusRefunded
	}
	return nil
}

func (s *Sandbox) VerifyWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	expected := Sign(s.secret, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}
	return ParseEvent(payload)
}
