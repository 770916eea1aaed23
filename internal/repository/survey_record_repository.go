package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/utils"
)

type SurveyRecordRepository struct {
	db *sqlx.DB
}

func NewSurveyRecordRepository(db *sqlx.DB) *SurveyRecordRepository {
	return &SurveyRecordRepository{db: db}
}

type recordRow struct {
	models.SurveyRecord
	PhotoID        *uuid.UUID `db:"photo_id"`
	PhotoRecordID  *uuid.UUID `db:"photo_record_id"`
	ObjectKey      *string    `db:"object_key"`
	PhotoURL       *string    `db:"photo_url"`
	PhotoPosition  *int       `db:"photo_position"`
	PhotoCreatedAt *time.Time `db:"photo_created_at"`
}

const recordSelectColumns = `
	sr.id, sr.field_id, sr.surveyor_id, sr.location_code, sr.visit_date,
	sr.latitude, sr.longitude, sr.growth_stage, sr.crop_condition,
	sr.water_level, sr.pest_observed, sr.disease_observed, sr.treatment,
	sr.note, sr.weather, sr.sync_status, sr.sync_error, sr.synced_at,
	sr.created_at, sr.updated_at,
	ph.id AS photo_id,
	ph.record_id AS photo_record_id,
	ph.object_key,
	ph.photo_url,
	ph.position AS photo_position,
	ph.created_at AS photo_created_at`

// Create persists a record and its photos in one transaction. The record
// always enters with status pending.
func (r *SurveyRecordRepository) Create(record *models.SurveyRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.SyncStatus == "" {
		record.SyncStatus = models.SyncPending
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO survey_record (
			id, field_id, surveyor_id, location_code, visit_date,
			latitude, longitude, growth_stage, crop_condition, water_level,
			pest_observed, disease_observed, treatment, note, weather,
			sync_status, sync_error, synced_at, created_at, updated_at
		) VALUES (
			:id, :field_id, :surveyor_id, :location_code, :visit_date,
			:latitude, :longitude, :growth_stage, :crop_condition, :water_level,
			:pest_observed, :disease_observed, :treatment, :note, :weather,
			:sync_status, :sync_error, :synced_at, :created_at, :updated_at
		)`

	if _, err := tx.NamedExec(query, record); err != nil {
		return fmt.Errorf("failed to create survey record: %w", err)
	}

	photoQuery := `
		INSERT INTO record_photo (id, record_id, object_key, photo_url, position, created_at)
		VALUES (:id, :record_id, :object_key, :photo_url, :position, :created_at)`

	for i := range record.Photos {
		photo := &record.Photos[i]
		if photo.ID == uuid.Nil {
			photo.ID = uuid.New()
		}
		photo.RecordID = record.ID
		photo.CreatedAt = now

		if _, err := tx.NamedExec(photoQuery, photo); err != nil {
			return fmt.Errorf("failed to create record photo: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit survey record: %w", err)
	}

	return nil
}

func (r *SurveyRecordRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SurveyRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM survey_record sr
		LEFT JOIN record_photo ph ON sr.id = ph.record_id
		WHERE sr.id = $1
		ORDER BY ph.position ASC`, recordSelectColumns)

	var rows []recordRow
	err := r.db.SelectContext(ctx, &rows, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get survey record: %w", err)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("survey record not found: %s", id)
	}

	records := assembleRecords(rows)
	return &records[0], nil
}

// GetByIDs loads the given records with their photos, oldest first. Unknown
// ids are silently absent from the result.
func (r *SurveyRecordRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.SurveyRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(fmt.Sprintf(`
		SELECT %s
		FROM survey_record sr
		LEFT JOIN record_photo ph ON sr.id = ph.record_id
		WHERE sr.id IN (?)
		ORDER BY sr.created_at ASC, ph.position ASC`, recordSelectColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build records query: %w", err)
	}

	query = r.db.Rebind(query)

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to get survey records: %w", err)
	}

	return assembleRecords(rows), nil
}

// ListEligibleIDs selects up to limit records awaiting synchronization,
// oldest first. Failed records stay eligible; synced ones never come back.
func (r *SurveyRecordRepository) ListEligibleIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := `
		SELECT id FROM survey_record
		WHERE sync_status <> 'synced'
		ORDER BY created_at ASC
		LIMIT $1`

	err := r.db.SelectContext(ctx, &ids, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible records: %w", err)
	}

	return ids, nil
}

// MarkSynced flips a record to synced and clears any previous error.
func (r *SurveyRecordRepository) MarkSynced(id uuid.UUID, syncedAt time.Time) error {
	query := `
		UPDATE survey_record
		SET sync_status = 'synced', synced_at = $2, sync_error = NULL, updated_at = $3
		WHERE id = $1`

	err := utils.ExecWithCheck(r.db, query, utils.ExecUpdate, id, syncedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark record synced: %w", err)
	}
	return nil
}

// MarkFailed records the last error; the record remains eligible for the
// next batch.
func (r *SurveyRecordRepository) MarkFailed(id uuid.UUID, errMsg string) error {
	query := `
		UPDATE survey_record
		SET sync_status = 'failed', sync_error = $2, updated_at = $3
		WHERE id = $1`

	err := utils.ExecWithCheck(r.db, query, utils.ExecUpdate, id, errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark record failed: %w", err)
	}
	return nil
}

func (r *SurveyRecordRepository) CountByStatus(status models.SyncStatus) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM survey_record WHERE sync_status = $1`

	err := r.db.Get(&count, query, status)
	if err != nil {
		return 0, fmt.Errorf("failed to count records by status: %w", err)
	}

	return count, nil
}

// GetLatestByField returns the most recent record for a field, or nil.
func (r *SurveyRecordRepository) GetLatestByField(ctx context.Context, fieldID string) (*models.SurveyRecord, error) {
	var record models.SurveyRecord
	query := `
		SELECT id, field_id, surveyor_id, location_code, visit_date,
			latitude, longitude, growth_stage, crop_condition, water_level,
			pest_observed, disease_observed, treatment, note, weather,
			sync_status, sync_error, synced_at, created_at, updated_at
		FROM survey_record
		WHERE field_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &record, query, fieldID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest record for field: %w", err)
	}

	return &record, nil
}

// assembleRecords folds joined photo rows back into their parent records,
// preserving row order.
func assembleRecords(rows []recordRow) []models.SurveyRecord {
	var results []models.SurveyRecord
	indexByID := make(map[uuid.UUID]int)

	for i := range rows {
		row := &rows[i]
		idx, exists := indexByID[row.ID]
		if !exists {
			record := row.SurveyRecord
			record.Photos = nil
			results = append(results, record)
			idx = len(results) - 1
			indexByID[row.ID] = idx
		}

		if row.PhotoID != nil {
			photo := models.RecordPhoto{
				ID:        *row.PhotoID,
				RecordID:  *row.PhotoRecordID,
				ObjectKey: derefString(row.ObjectKey),
				PhotoURL:  derefString(row.PhotoURL),
				CreatedAt: derefTime(row.PhotoCreatedAt),
			}
			if row.PhotoPosition != nil {
				photo.Position = *row.PhotoPosition
			}
			results[idx].Photos = append(results[idx].Photos, photo)
		}
	}

	return results
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
