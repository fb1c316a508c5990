package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Professional struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	BusinessName string    `json:"business_name"`
	Category     string    `json:"category"`
	CreatedAt    time.Time `json:"created_at"`
}

type Location struct {
	ID             int64     `json:"id"`
	ProfessionalID int64     `json:"professional_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	IsPrimary      bool      `json:"is_primary"`
	CreatedAt      time.Time `json:"created_at"`
	DistanceKm     *float64  `json:"distance_km,omitempty"`
}

// NearbyProfessional is one row of a radius search over primary locations.
type NearbyProfessional struct {
	ProfessionalID int64   `json:"professional_id"`
	BusinessName   string  `json:"business_name"`
	Category       string  `json:"category"`
	LocationID     int64   `json:"location_id"`
	Address        string  `json:"address"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	DistanceKm     float64 `json:"distance_km"`
}

type StaffMember struct {
	ID             int64     `json:"id"`
	ProfessionalID int64     `json:"professional_id"`
	LocationID     *int64    `json:"location_id,omitempty"`
	Name           string    `json:"name"`
	Role           string    `json:"role"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
}

type StaffShift struct {
	ID            int64     `json:"id"`
	StaffMemberID int64     `json:"staff_member_id"`
	LocationID    *int64    `json:"location_id,omitempty"`
	StartsAt      time.Time `json:"starts_at"`
	EndsAt        time.Time `json:"ends_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type Conversation struct {
	ID               int64      `json:"id"`
	ParticipantOneID int64      `json:"participant_one_id"`
	ParticipantTwoID int64      `json:"participant_two_id"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UnreadCount      int        `json:"unread_count"`
}

// CanonicalPair orders two participant ids so the lower id comes first.
func CanonicalPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (c *Conversation) HasParticipant(userID int64) bool {
	return c.ParticipantOneID == userID || c.ParticipantTwoID == userID
}

type Message struct {
	ID             int64               `json:"id"`
	ConversationID int64               `json:"conversation_id"`
	SenderID       int64               `json:"sender_id"`
	Body           string              `json:"body"`
	ReadAt         *time.Time          `json:"read_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Attachments    []MessageAttachment `json:"attachments,omitempty"`
}

type MessageAttachment struct {
	ID        int64     `json:"id"`
	MessageID int64     `json:"message_id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type PetInsurance struct {
	ID           int64     `json:"id"`
	PetID        int64     `json:"pet_id"`
	Provider     string    `json:"provider"`
	PolicyNumber string    `json:"policy_number"`
	Status       string    `json:"status"`
	Coverage     []string  `json:"coverage"`
	Exclusions   []string  `json:"exclusions"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	CreatedAt    time.Time `json:"created_at"`
}

const PolicyStatusActive = "active"

// Covers reports whether a procedure type is listed as covered and not excluded.
func (p *PetInsurance) Covers(procedure string) bool {
	covered := false
	for _, c := range p.Coverage {
		if c == procedure {
			covered = true
			break
		}
	}
	if !covered {
		return false
	}
	for _, e := range p.Exclusions {
		if e == procedure {
			return false
		}
	}
	return true
}

type InsuranceClaim struct {
	ID            int64           `json:"id"`
	PolicyID      int64           `json:"policy_id"`
	PetID         int64           `json:"pet_id"`
	ProcedureType string          `json:"procedure_type"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

const (
	ClaimStatusDraft       = "draft"
	ClaimStatusUnderReview = "under_review"
	ClaimStatusApproved    = "approved"
	ClaimStatusRejected    = "rejected"
)

type PreAuthorization struct {
	ID            int64           `json:"id"`
	PolicyID      int64           `json:"policy_id"`
	PetID         int64           `json:"pet_id"`
	ProcedureType string          `json:"procedure_type"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

const PreAuthStatusPending = "pending"

// CoverageCheck is the answer to a coverage lookup.
type CoverageCheck struct {
	PolicyID      int64  `json:"policy_id"`
	ProcedureType string `json:"procedure_type"`
	Covered       bool   `json:"covered"`
	PolicyActive  bool   `json:"policy_active"`
}

type AdCampaign struct {
	ID           int64             `json:"id"`
	AdvertiserID int64             `json:"advertiser_id"`
	Name         string            `json:"name"`
	Status       string            `json:"status"`
	Targeting    map[string]string `json:"targeting"`
	Budget       decimal.Decimal   `json:"budget"`
	Spend        decimal.Decimal   `json:"spend"`
	Impressions  int64             `json:"impressions"`
	Clicks       int64             `json:"clicks"`
	StartsAt     time.Time         `json:"starts_at"`
	EndsAt       *time.Time        `json:"ends_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

const (
	CampaignStatusActive    = "active"
	CampaignStatusPaused    = "paused"
	CampaignStatusExhausted = "exhausted"
)

// Matches applies AND semantics: every filter key must be absent from the
// targeting map or equal to its value.
func (c *AdCampaign) Matches(filters map[string]string) bool {
	for key, want := range filters {
		got, ok := c.Targeting[key]
		if !ok {
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

// CTR is the click-through rate as a percentage.
func (c *AdCampaign) CTR() decimal.Decimal {
	if c.Impressions == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(c.Clicks).
		Div(decimal.NewFromInt(c.Impressions)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}
