package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
)

const petColumns = `id, owner_id, name, species, breed, birth_date, microchip, is_lost, public_token, created_at, updated_at`

func scanPet(row scanner, p *models.Pet) error {
	return row.Scan(
		&p.ID,
		&p.OwnerID,
		&p.Name,
		&p.Species,
		&p.Breed,
		&p.BirthDate,
		&p.Microchip,
		&p.IsLost,
		&p.PublicToken,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
}

type CreatePetRequest struct {
	OwnerID   int64
	Name      string
	Species   string
	Breed     string
	BirthDate *time.Time
	Microchip string
}

func CreatePet(ctx context.Context, db *sql.DB, req CreatePetRequest) (*models.Pet, error) {
	pet := &models.Pet{}
	err := scanPet(db.QueryRowContext(ctx,
		`INSERT INTO pets (owner_id, name, species, breed, birth_date, microchip, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING `+petColumns,
		req.OwnerID, req.Name, req.Species, req.Breed, req.BirthDate, req.Microchip), pet)
	if err != nil {
		return nil, fmt.Errorf("create pet: %w", err)
	}
	return pet, nil
}

func GetPet(ctx context.Context, db database.Querier, id int64) (*models.Pet, error) {
	pet := &models.Pet{}
	err := scanPet(db.QueryRowContext(ctx, `SELECT `+petColumns+` FROM pets WHERE id = $1`, id), pet)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPetNotFound
		}
		return nil, fmt.Errorf("get pet: %w", err)
	}
	return pet, nil
}

func ListPets(ctx context.Context, db *sql.DB, ownerID int64) ([]models.Pet, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+petColumns+` FROM pets WHERE owner_id = $1 ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list pets: %w", err)
	}
	defer rows.Close()

	var pets []models.Pet
	for rows.Next() {
		var p models.Pet
		if err := scanPet(rows, &p); err != nil {
			return nil, fmt.Errorf("scan pet: %w", err)
		}
		pets = append(pets, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return pets, nil
}

// EnsurePublicToken returns the pet's public token, issuing one on first call.
// Only the owner may issue it; other callers get ErrPetNotFound. A token is
// never replaced once set.
func EnsurePublicToken(ctx context.Context, db *sql.DB, ownerID, petID int64) (string, error) {
	var token string
	err := db.QueryRowContext(ctx,
		`UPDATE pets
		 SET public_token = COALESCE(public_token, $1), updated_at = NOW()
		 WHERE id = $2 AND owner_id = $3
		 RETURNING public_token`,
		uuid.NewString(), petID, ownerID).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", database.ErrPetNotFound
		}
		return "", fmt.Errorf("ensure public token: %w", err)
	}
	return token, nil
}

func QRCodeURL(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/p/" + token
}

// GetPetCard assembles the public profile shown when a pet's QR code is scanned.
func GetPetCard(ctx context.Context, db *sql.DB, baseURL, token string) (*models.PetCard, error) {
	var (
		card      models.PetCard
		birthDate *time.Time
	)

	err := db.QueryRowContext(ctx,
		`SELECT p.name, p.species, p.breed, p.birth_date, p.microchip, p.is_lost,
		        u.name, u.phone, u.email,
		        (SELECT MAX(e.examined_at) FROM pet_exams e WHERE e.pet_id = p.id)
		 FROM pets p
		 JOIN users u ON u.id = p.owner_id
		 WHERE p.public_token = $1`,
		token).Scan(
		&card.Name,
		&card.Species,
		&card.Breed,
		&birthDate,
		&card.Microchip,
		&card.IsLost,
		&card.OwnerName,
		&card.OwnerPhone,
		&card.OwnerEmail,
		&card.LastExamAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPetNotFound
		}
		return nil, fmt.Errorf("get pet card: %w", err)
	}

	if birthDate != nil {
		age := models.AgeInYears(*birthDate, time.Now())
		card.AgeYears = &age
	}
	card.QRCodeURL = QRCodeURL(baseURL, token)

	return &card, nil
}
