package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/geo"
	"github.com/safar/petplace/internal/models"
)

type CreateLocationRequest struct {
	ProfessionalID int64
	Name           string
	Address        string
	Latitude       float64
	Longitude      float64
	Primary        bool
}

const locationColumns = `id, professional_id, name, address, latitude, longitude, is_primary, created_at`

func scanLocation(row scanner, l *models.Location) error {
	return row.Scan(&l.ID, &l.ProfessionalID, &l.Name, &l.Address, &l.Latitude, &l.Longitude, &l.IsPrimary, &l.CreatedAt)
}

// CreateLocation adds a location. A professional's first location becomes
// primary automatically; asking for primary moves the flag.
func CreateLocation(ctx context.Context, db *sql.DB, req CreateLocationRequest) (*models.Location, error) {
	if !geo.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, fmt.Errorf("%w: coordinates %f,%f", database.ErrInvalidInput, req.Latitude, req.Longitude)
	}

	location := &models.Location{}
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var count int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM locations WHERE professional_id = $1`, req.ProfessionalID).Scan(&count)
		if err != nil {
			return fmt.Errorf("count locations: %w", err)
		}

		primary := req.Primary || count == 0
		if primary {
			if err := clearPrimary(ctx, tx, req.ProfessionalID); err != nil {
				return err
			}
		}

		return scanLocation(tx.QueryRowContext(ctx,
			`INSERT INTO locations (professional_id, name, address, latitude, longitude, is_primary, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, NOW())
			 RETURNING `+locationColumns,
			req.ProfessionalID, req.Name, req.Address, req.Latitude, req.Longitude, primary), location)
	})
	if err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}

	return location, nil
}

func clearPrimary(ctx context.Context, tx *sql.Tx, professionalID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE locations SET is_primary = FALSE WHERE professional_id = $1 AND is_primary`,
		professionalID)
	if err != nil {
		return fmt.Errorf("clear primary location: %w", err)
	}
	return nil
}

// SetPrimaryLocation makes locationID the only primary location of its owner.
func SetPrimaryLocation(ctx context.Context, db *sql.DB, professionalID, locationID int64) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var owner int64
		err := tx.QueryRowContext(ctx,
			`SELECT professional_id FROM locations WHERE id = $1 FOR UPDATE`, locationID).Scan(&owner)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrLocationNotFound
			}
			return fmt.Errorf("lock location: %w", err)
		}
		if owner != professionalID {
			return database.ErrLocationNotFound
		}

		if err := clearPrimary(ctx, tx, professionalID); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE locations SET is_primary = TRUE WHERE id = $1`, locationID)
		if err != nil {
			return fmt.Errorf("set primary location: %w", err)
		}
		return nil
	})
}

func ListLocations(ctx context.Context, db *sql.DB, professionalID int64) ([]models.Location, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+locationColumns+`
		 FROM locations
		 WHERE professional_id = $1
		 ORDER BY is_primary DESC, id`,
		professionalID)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []models.Location
	for rows.Next() {
		var l models.Location
		if err := scanLocation(rows, &l); err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return locations, nil
}

// NearestProfessionals returns professionals whose primary location lies
// within radiusKm of the origin, nearest first.
func NearestProfessionals(ctx context.Context, db *sql.DB, lat, lng, radiusKm float64, category string, limit int) ([]models.NearbyProfessional, error) {
	if !geo.ValidCoordinates(lat, lng) {
		return nil, fmt.Errorf("%w: coordinates %f,%f", database.ErrInvalidInput, lat, lng)
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT professional_id, business_name, category, location_id, address, latitude, longitude, distance
		FROM (
			SELECT p.id AS professional_id, p.business_name, p.category,
			       l.id AS location_id, l.address, l.latitude, l.longitude,
			       ` + geo.DistanceSQL("l.latitude", "l.longitude", 1, 2) + ` AS distance
			FROM professionals p
			JOIN locations l ON l.professional_id = p.id AND l.is_primary
			WHERE ($5 = '' OR p.category = $5)
		) nearby
		WHERE distance <= $3
		ORDER BY distance ASC, professional_id
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, lat, lng, radiusKm, limit, category)
	if err != nil {
		return nil, fmt.Errorf("nearest professionals: %w", err)
	}
	defer rows.Close()

	var results []models.NearbyProfessional
	for rows.Next() {
		var n models.NearbyProfessional
		err := rows.Scan(&n.ProfessionalID, &n.BusinessName, &n.Category, &n.LocationID, &n.Address, &n.Latitude, &n.Longitude, &n.DistanceKm)
		if err != nil {
			return nil, fmt.Errorf("scan nearby professional: %w", err)
		}
		results = append(results, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return results, nil
}
