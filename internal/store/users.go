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

const userColumns = `id, email, name, phone, role, latitude, longitude, created_at, updated_at, version`

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, user *models.User) error {
	return row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Phone,
		&user.Role,
		&user.Latitude,
		&user.Longitude,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.Version,
	)
}

type CreateUserRequest struct {
	Email string
	Name  string
	Phone string
	Role  string
}

func CreateUser(ctx context.Context, db *sql.DB, req CreateUserRequest) (*models.User, error) {
	role := req.Role
	if role == "" {
		role = models.RoleOwner
	}

	user := &models.User{}
	query := `
		INSERT INTO users (email, name, phone, role, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	err := scanUser(db.QueryRowContext(ctx, query, req.Email, req.Name, req.Phone, role), user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, db database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	err := scanUser(db.QueryRowContext(ctx, query, id), user)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

// UpdateUserPosition stores the last known position used for lost-pet alerts.
func UpdateUserPosition(ctx context.Context, db *sql.DB, id int64, lat, lng float64) error {
	if !geo.ValidCoordinates(lat, lng) {
		return fmt.Errorf("%w: coordinates %f,%f", database.ErrInvalidInput, lat, lng)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE users
		 SET latitude = $1, longitude = $2, updated_at = NOW(), version = version + 1
		 WHERE id = $3`,
		lat, lng, id)
	if err != nil {
		return fmt.Errorf("update user position: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrUserNotFound
	}

	return nil
}

func ListUsers(ctx context.Context, db *sql.DB, page, pageSize int) (*OffsetPage, error) {
	var total int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	query := `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, pageSize, pageOffset(page, pageSize))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(users, total, page, pageSize), nil
}
