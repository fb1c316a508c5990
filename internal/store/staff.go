package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/safar/petplace/internal/database"
	"github.com/safar/petplace/internal/models"
)

type AddStaffRequest struct {
	ProfessionalID int64
	LocationID     *int64
	Name           string
	Role           string
}

const staffColumns = `id, professional_id, location_id, name, role, active, created_at`

func AddStaffMember(ctx context.Context, db *sql.DB, req AddStaffRequest) (*models.StaffMember, error) {
	m := &models.StaffMember{}
	err := db.QueryRowContext(ctx,
		`INSERT INTO staff_members (professional_id, location_id, name, role, active, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, NOW())
		 RETURNING `+staffColumns,
		req.ProfessionalID, req.LocationID, req.Name, req.Role).Scan(
		&m.ID, &m.ProfessionalID, &m.LocationID, &m.Name, &m.Role, &m.Active, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add staff member: %w", err)
	}
	return m, nil
}

func ListStaff(ctx context.Context, db *sql.DB, professionalID int64, activeOnly bool) ([]models.StaffMember, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+staffColumns+`
		 FROM staff_members
		 WHERE professional_id = $1 AND (NOT $2 OR active)
		 ORDER BY name, id`,
		professionalID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	defer rows.Close()

	var staff []models.StaffMember
	for rows.Next() {
		var m models.StaffMember
		if err := rows.Scan(&m.ID, &m.ProfessionalID, &m.LocationID, &m.Name, &m.Role, &m.Active, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan staff member: %w", err)
		}
		staff = append(staff, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return staff, nil
}

type ScheduleShiftRequest struct {
	StaffMemberID int64
	LocationID    *int64
	StartsAt      time.Time
	EndsAt        time.Time
}

// ScheduleShift books a shift, refusing overlaps with the staff member's
// existing shifts. The staff row is locked so two overlapping requests
// cannot both pass the check.
func ScheduleShift(ctx context.Context, db *sql.DB, req ScheduleShiftRequest) (*models.StaffShift, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return nil, database.ErrInvalidShift
	}

	shift := &models.StaffShift{}
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var active bool
		err := tx.QueryRowContext(ctx,
			`SELECT active FROM staff_members WHERE id = $1 FOR UPDATE`, req.StaffMemberID).Scan(&active)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return database.ErrStaffNotFound
			}
			return fmt.Errorf("lock staff member: %w", err)
		}
		if !active {
			return database.ErrStaffNotFound
		}

		var overlaps bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS(
				SELECT 1 FROM staff_shifts
				WHERE staff_member_id = $1 AND starts_at < $3 AND ends_at > $2)`,
			req.StaffMemberID, req.StartsAt, req.EndsAt).Scan(&overlaps)
		if err != nil {
			return fmt.Errorf("check shift overlap: %w", err)
		}
		if overlaps {
			return database.ErrShiftOverlap
		}

		return tx.QueryRowContext(ctx,
			`INSERT INTO staff_shifts (staff_member_id, location_id, starts_at, ends_at, created_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 RETURNING id, staff_member_id, location_id, starts_at, ends_at, created_at`,
			req.StaffMemberID, req.LocationID, req.StartsAt, req.EndsAt).Scan(
			&shift.ID, &shift.StaffMemberID, &shift.LocationID, &shift.StartsAt, &shift.EndsAt, &shift.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	return shift, nil
}

// ListShifts returns a professional's shifts that intersect [from, to).
func ListShifts(ctx context.Context, db *sql.DB, professionalID int64, from, to time.Time) ([]models.StaffShift, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT s.id, s.staff_member_id, s.location_id, s.starts_at, s.ends_at, s.created_at
		 FROM staff_shifts s
		 JOIN staff_members m ON m.id = s.staff_member_id
		 WHERE m.professional_id = $1 AND s.starts_at < $3 AND s.ends_at > $2
		 ORDER BY s.starts_at, s.id`,
		professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list shifts: %w", err)
	}
	defer rows.Close()

	var shifts []models.StaffShift
	for rows.Next() {
		var s models.StaffShift
		if err := rows.Scan(&s.ID, &s.StaffMemberID, &s.LocationID, &s.StartsAt, &s.EndsAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shift: %w", err)
		}
		shifts = append(shifts, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return shifts, nil
}
