package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/petplace/internal/models"
	"github.com/safar/petplace/internal/upload"
)

type CreateExamRequest struct {
	PetID      int64
	VetID      int64
	Kind       string
	Notes      string
	ExaminedAt time.Time
	File       *upload.File
}

// CreateExam stores an exam result. An attached result file is uploaded first
// and removed again if the row cannot be written.
func CreateExam(ctx context.Context, db *sql.DB, uploader upload.Uploader, req CreateExamRequest) (*models.PetExam, error) {
	if _, err := GetPet(ctx, db, req.PetID); err != nil {
		return nil, err
	}
	if req.ExaminedAt.IsZero() {
		req.ExaminedAt = time.Now()
	}

	var stored *upload.Stored
	if req.File != nil {
		s, err := uploader.UploadFile(ctx, *req.File, "exams", req.VetID)
		if err != nil {
			return nil, fmt.Errorf("upload exam file: %w", err)
		}
		stored = s
	}

	fileURL := ""
	if stored != nil {
		fileURL = stored.URL
	}

	exam := &models.PetExam{}
	err := db.QueryRowContext(ctx,
		`INSERT INTO pet_exams (pet_id, vet_id, kind, notes, file_url, examined_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, pet_id, vet_id, kind, notes, file_url, examined_at, created_at`,
		req.PetID, req.VetID, req.Kind, req.Notes, fileURL, req.ExaminedAt).Scan(
		&exam.ID, &exam.PetID, &exam.VetID, &exam.Kind, &exam.Notes, &exam.FileURL, &exam.ExaminedAt, &exam.CreatedAt)
	if err != nil {
		if stored != nil {
			discardUploads(ctx, uploader, []*upload.Stored{stored})
		}
		return nil, fmt.Errorf("create exam: %w", err)
	}

	return exam, nil
}

func ListExams(ctx context.Context, db *sql.DB, petID int64) ([]models.PetExam, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, pet_id, vet_id, kind, notes, file_url, examined_at, created_at
		 FROM pet_exams
		 WHERE pet_id = $1
		 ORDER BY examined_at DESC, id DESC`,
		petID)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	var exams []models.PetExam
	for rows.Next() {
		var e models.PetExam
		if err := rows.Scan(&e.ID, &e.PetID, &e.VetID, &e.Kind, &e.Notes, &e.FileURL, &e.ExaminedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		exams = append(exams, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return exams, nil
}
