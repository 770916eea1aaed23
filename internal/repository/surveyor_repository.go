package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

type SurveyorRepository struct {
	db *sqlx.DB
}

func NewSurveyorRepository(db *sqlx.DB) *SurveyorRepository {
	return &SurveyorRepository{db: db}
}

// GetByTelegramID returns the surveyor for a Telegram identity, or nil when
// none has been created yet.
func (r *SurveyorRepository) GetByTelegramID(telegramID string) (*models.Surveyor, error) {
	var surveyor models.Surveyor
	query := `SELECT * FROM surveyor WHERE telegram_id = $1`

	err := r.db.Get(&surveyor, query, telegramID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get surveyor by telegram id: %w", err)
	}

	return &surveyor, nil
}

// Create inserts a surveyor, allocating the next sequential number within
// the location code in the same statement. The unique constraint on
// (location_code, seq_no) turns a concurrent allocation into a unique
// violation; callers retry via IsUniqueViolation.
func (r *SurveyorRepository) Create(surveyor *models.Surveyor) error {
	if surveyor.ID == uuid.Nil {
		surveyor.ID = uuid.New()
	}
	surveyor.CreatedAt = time.Now()

	query := `
		INSERT INTO surveyor (id, telegram_id, display_name, location_code, seq_no, created_at)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(seq_no), 0) + 1 FROM surveyor WHERE location_code = $4),
			$5)
		RETURNING seq_no`

	err := r.db.QueryRowx(query,
		surveyor.ID, surveyor.TelegramID, surveyor.DisplayName,
		surveyor.LocationCode, surveyor.CreatedAt,
	).Scan(&surveyor.SeqNo)
	if err != nil {
		return fmt.Errorf("failed to create surveyor: %w", err)
	}

	return nil
}

// CountByLocation reports how many surveyors work a location code.
func (r *SurveyorRepository) CountByLocation(locationCode string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM surveyor WHERE location_code = $1`

	err := r.db.Get(&count, query, locationCode)
	if err != nil {
		return 0, fmt.Errorf("failed to count surveyors: %w", err)
	}

	return count, nil
}

// IsUniqueViolation reports whether an error is a Postgres unique-constraint
// violation (duplicate telegram_id or a lost seq_no race).
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
