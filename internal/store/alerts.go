package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/geo"
	"github.com/safar/petplace/internal/logging"
	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/notify"
)

const alertColumns = `id, pet_id, owner_id, description, latitude, longitude, radius_km, status, last_seen_at, resolved_at, created_at`

func scanAlert(row scanner, a *models.LostPetAlert) error {
	return row.Scan(
		&a.ID,
		&a.PetID,
		&a.OwnerID,
		&a.Description,
		&a.Latitude,
		&a.Longitude,
		&a.RadiusKm,
		&a.Status,
		&a.LastSeenAt,
		&a.ResolvedAt,
		&a.CreatedAt,
	)
}

type CreateAlertRequest struct {
	PetID       int64
	OwnerID     int64
	Description string
	Latitude    float64
	Longitude   float64
	RadiusKm    float64
	LastSeenAt  time.Time
}

// CreateLostPetAlert flags the pet as lost, opens an alert and notifies every
// user whose last known position lies inside the alert radius. The owner is
// never notified. It returns the alert and the number of users notified.
func CreateLostPetAlert(ctx context.Context, db *sql.DB, sender notify.Sender, req CreateAlertRequest) (*models.LostPetAlert, int, error) {
	if !geo.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, 0, fmt.Errorf("%w: coordinates %f,%f", database.ErrInvalidInput, req.Latitude, req.Longitude)
	}
	if req.RadiusKm <= 0 {
		return nil, 0, fmt.Errorf("%w: radius must be positive", database.ErrInvalidInput)
	}
	if req.LastSeenAt.IsZero() {
		req.LastSeenAt = time.Now()
	}

	alert := &models.LostPetAlert{}
	var petName string
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE pets SET is_lost = TRUE, updated_at = NOW()
			 WHERE id = $1 AND owner_id = $2
			 RETURNING name`,
			req.PetID, req.OwnerID).Scan(&petName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrPetNotFound
			}
			return fmt.Errorf("mark pet lost: %w", err)
		}

		return scanAlert(tx.QueryRowContext(ctx,
			`INSERT INTO lost_pet_alerts (pet_id, owner_id, description, latitude, longitude, radius_km, status, last_seen_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			 RETURNING `+alertColumns,
			req.PetID, req.OwnerID, req.Description, req.Latitude, req.Longitude, req.RadiusKm, models.AlertStatusActive, req.LastSeenAt),
			alert)
	})
	if err != nil {
		return nil, 0, err
	}

	neighbours, err := usersWithinRadius(ctx, db, alert.Latitude, alert.Longitude, alert.RadiusKm, alert.OwnerID)
	if err != nil {
		return alert, 0, err
	}

	logger := logging.FromContext(ctx)
	notified := 0
	for _, n := range neighbours {
		err := sender.Send(ctx, notify.Message{
			UserID:   n.userID,
			Type:     models.NotificationTypeLostPet,
			Title:    "Lost pet nearby",
			Body:     fmt.Sprintf("%s was reported lost %.1f km from you.", petName, n.distanceKm),
			Channels: []string{notify.ChannelInApp, notify.ChannelPush},
			Data: map[string]any{
				"alert_id":    alert.ID,
				"pet_id":      alert.PetID,
				"distance_km": n.distanceKm,
			},
		})
		if err != nil {
			logger.Warn("lost pet notification failed",
				zap.Int64("alert_id", alert.ID),
				zap.Int64("user_id", n.userID),
				zap.Error(err))
			continue
		}
		notified++
	}

	logger.Info("lost pet alert created",
		zap.Int64("alert_id", alert.ID),
		zap.Int("candidates", len(neighbours)),
		zap.Int("notified", notified))

	return alert, notified, nil
}

type neighbour struct {
	userID     int64
	distanceKm float64
}

func usersWithinRadius(ctx context.Context, db database.Querier, lat, lng, radiusKm float64, excludeUserID int64) ([]neighbour, error) {
	query := `
		SELECT id, distance
		FROM (
			SELECT u.id, ` + geo.DistanceSQL("u.latitude", "u.longitude", 1, 2) + ` AS distance
			FROM users u
			WHERE u.latitude IS NOT NULL AND u.longitude IS NOT NULL AND u.id <> $4
		) candidates
		WHERE distance <= $3
		ORDER BY distance ASC, id`

	rows, err := db.QueryContext(ctx, query, lat, lng, radiusKm, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("find nearby users: %w", err)
	}
	defer rows.Close()

	var result []neighbour
	for rows.Next() {
		var n neighbour
		if err := rows.Scan(&n.userID, &n.distanceKm); err != nil {
			return nil, fmt.Errorf("scan nearby user: %w", err)
		}
		result = append(result, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return result, nil
}

func GetLostPetAlert(ctx context.Context, db database.Querier, id int64) (*models.LostPetAlert, error) {
	alert := &models.LostPetAlert{}
	err := scanAlert(db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM lost_pet_alerts WHERE id = $1`, id), alert)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAlertNotFound
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

type FoundReportRequest struct {
	AlertID    int64
	ReporterID int64
	Latitude   float64
	Longitude  float64
	Notes      string
}

// ReportFoundPet records a sighting against an active alert and tells the owner.
func ReportFoundPet(ctx context.Context, db *sql.DB, sender notify.Sender, req FoundReportRequest) (*models.FoundPetReport, error) {
	if !geo.ValidCoordinates(req.Latitude, req.Longitude) {
		return nil, fmt.Errorf("%w: coordinates %f,%f", database.ErrInvalidInput, req.Latitude, req.Longitude)
	}

	alert, err := GetLostPetAlert(ctx, db, req.AlertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != models.AlertStatusActive {
		return nil, database.ErrAlertClosed
	}

	report := &models.FoundPetReport{}
	err = db.QueryRowContext(ctx,
		`INSERT INTO found_pet_reports (alert_id, reporter_id, latitude, longitude, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 RETURNING id, alert_id, reporter_id, latitude, longitude, notes, created_at`,
		req.AlertID, req.ReporterID, req.Latitude, req.Longitude, req.Notes).Scan(
		&report.ID, &report.AlertID, &report.ReporterID, &report.Latitude, &report.Longitude, &report.Notes, &report.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create found report: %w", err)
	}

	err = sender.Send(ctx, notify.Message{
		UserID:   alert.OwnerID,
		Type:     "lost_pet_sighting",
		Title:    "Your pet may have been found",
		Body:     fmt.Sprintf("Someone reported a sighting %.1f km from where your pet was last seen.", geo.DistanceKm(alert.Latitude, alert.Longitude, req.Latitude, req.Longitude)),
		Channels: []string{notify.ChannelInApp, notify.ChannelPush},
		Data:     map[string]any{"alert_id": alert.ID, "report_id": report.ID},
	})
	if err != nil {
		logging.FromContext(ctx).Warn("sighting notification failed",
			zap.Int64("alert_id", alert.ID),
			zap.Error(err))
	}

	return report, nil
}

// ResolveLostPetAlert closes an active alert and clears the pet's lost flag.
func ResolveLostPetAlert(ctx context.Context, db *sql.DB, alertID, ownerID int64) (*models.LostPetAlert, error) {
	alert := &models.LostPetAlert{}
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		err := scanAlert(tx.QueryRowContext(ctx,
			`UPDATE lost_pet_alerts
			 SET status = $1, resolved_at = NOW()
			 WHERE id = $2 AND owner_id = $3 AND status = $4
			 RETURNING `+alertColumns,
			models.AlertStatusResolved, alertID, ownerID, models.AlertStatusActive), alert)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("resolve alert: %w", err)
			}
			if _, getErr := GetLostPetAlert(ctx, tx, alertID); getErr != nil {
				return getErr
			}
			return database.ErrAlertClosed
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE pets SET is_lost = FALSE, updated_at = NOW() WHERE id = $1`, alert.PetID)
		if err != nil {
			return fmt.Errorf("clear lost flag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return alert, nil
}

// NearbyAlerts lists active alerts within radiusKm of a point, nearest first.
func NearbyAlerts(ctx context.Context, db *sql.DB, lat, lng, radiusKm float64, limit int) ([]models.LostPetAlert, error) {
	if !geo.ValidCoordinates(lat, lng) {
		return nil, fmt.Errorf("%w: coordinates %f,%f", database.ErrInvalidInput, lat, lng)
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + alertColumns + `, distance
		FROM (
			SELECT a.*, ` + geo.DistanceSQL("a.latitude", "a.longitude", 1, 2) + ` AS distance
			FROM lost_pet_alerts a
			WHERE a.status = $5
		) nearby
		WHERE distance <= $3
		ORDER BY distance ASC, id
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, lat, lng, radiusKm, limit, models.AlertStatusActive)
	if err != nil {
		return nil, fmt.Errorf("nearby alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.LostPetAlert
	for rows.Next() {
		var a models.LostPetAlert
		var distance float64
		err := rows.Scan(
			&a.ID, &a.PetID, &a.OwnerID, &a.Description, &a.Latitude, &a.Longitude,
			&a.RadiusKm, &a.Status, &a.LastSeenAt, &a.ResolvedAt, &a.CreatedAt, &distance)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.DistanceKm = &distance
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return alerts, nil
}
