package models

import (
	"time"
)

type Pet struct {
	ID          int64      `json:"id"`
	OwnerID     int64      `json:"owner_id"`
	Name        string     `json:"name"`
	Species     string     `json:"species"`
	Breed       string     `json:"breed,omitempty"`
	BirthDate   *time.Time `json:"birth_date,omitempty"`
	Microchip   string     `json:"microchip,omitempty"`
	IsLost      bool       `json:"is_lost"`
	PublicToken *string    `json:"public_token,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type LostPetAlert struct {
	ID          int64      `json:"id"`
	PetID       int64      `json:"pet_id"`
	OwnerID     int64      `json:"owner_id"`
	Description string     `json:"description,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	RadiusKm    float64    `json:"radius_km"`
	Status      string     `json:"status"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DistanceKm  *float64   `json:"distance_km,omitempty"`
}

const (
	AlertStatusActive   = "active"
	AlertStatusFound    = "found"
	AlertStatusResolved = "resolved"
)

type FoundPetReport struct {
	ID         int64     `json:"id"`
	AlertID    int64     `json:"alert_id"`
	ReporterID int64     `json:"reporter_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Notes      string    `json:"notes,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type PetExam struct {
	ID         int64     `json:"id"`
	PetID      int64     `json:"pet_id"`
	VetID      int64     `json:"vet_id"`
	Kind       string    `json:"kind"`
	Notes      string    `json:"notes,omitempty"`
	FileURL    string    `json:"file_url,omitempty"`
	ExaminedAt time.Time `json:"examined_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// PetCard is the public profile reachable through a pet's QR code.
type PetCard struct {
	Name       string     `json:"name"`
	Species    string     `json:"species"`
	Breed      string     `json:"breed,omitempty"`
	AgeYears   *int       `json:"age_years,omitempty"`
	Microchip  string     `json:"microchip,omitempty"`
	IsLost     bool       `json:"is_lost"`
	OwnerName  string     `json:"owner_name"`
	OwnerPhone string     `json:"owner_phone,omitempty"`
	OwnerEmail string     `json:"owner_email"`
	LastExamAt *time.Time `json:"last_exam_at,omitempty"`
	QRCodeURL  string     `json:"qr_code_url"`
}

// AgeInYears returns whole years elapsed between birth and now.
func AgeInYears(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

type Notification struct {
	ID        int64          `json:"id"`
	UserID    int64          `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Channels  []string       `json:"channels"`
	Data      map[string]any `json:"data,omitempty"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

const NotificationTypeLostPet = "lost_pet_nearby"
