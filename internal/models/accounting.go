package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Subscription struct {
	ID             int64      `json:"id"`
	ProfessionalID int64      `json:"professional_id"`
	Tier           string     `json:"tier"`
	Status         string     `json:"status"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
}

const SubscriptionStatusActive = "active"

const (
	TransactionTypeAppointment = "appointment"
	TransactionTypeProductSale = "product_sale"
	TransactionTypeService     = "service"
)

type Commission struct {
	ID               int64           `json:"id"`
	ProfessionalID   int64           `json:"professional_id"`
	PayoutID         *int64          `json:"payout_id,omitempty"`
	TransactionType  string          `json:"transaction_type"`
	ReferenceID      string          `json:"reference_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Rate             decimal.Decimal `json:"rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

const (
	CommissionStatusPending  = "pending"
	CommissionStatusApproved = "approved"
	CommissionStatusPaid     = "paid"
)

type Payout struct {
	ID              int64           `json:"id"`
	ProfessionalID  int64           `json:"professional_id"`
	Reference       string          `json:"reference"`
	Amount          decimal.Decimal `json:"amount"`
	CommissionCount int             `json:"commission_count"`
	Status          string          `json:"status"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
)

type Payment struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	Provider    string          `json:"provider"`
	ProviderRef string          `json:"provider_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

type WebhookEvent struct {
	ID          int64     `json:"id"`
	Provider    string    `json:"provider"`
	EventID     string    `json:"event_id"`
	Payload     []byte    `json:"-"`
	Processed   bool      `json:"processed"`
	Dead        bool      `json:"dead"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	AvailableAt time.Time `json:"available_at"`
	CreatedAt   time.Time `json:"created_at"`
}
