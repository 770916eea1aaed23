package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

type FieldRepository struct {
	db *sqlx.DB
}

func NewFieldRepository(db *sqlx.DB) *FieldRepository {
	return &FieldRepository{db: db}
}

type fieldRow struct {
	models.Field
	LocationWKB []byte `db:"location_wkb"`
}

// Upsert creates the field on first sight and refreshes its location on
// later submissions. Idempotent per composite id.
func (r *FieldRepository) Upsert(field *models.Field) error {
	now := time.Now()
	field.CreatedAt = now
	field.UpdatedAt = now

	query := `
		INSERT INTO field (id, surveyor_id, field_no, location, area_sqm, created_at, updated_at)
		VALUES (:id, :surveyor_id, :field_no, ST_GeomFromText(:location), :area_sqm, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			location = COALESCE(EXCLUDED.location, field.location),
			area_sqm = COALESCE(EXCLUDED.area_sqm, field.area_sqm),
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExec(query, field)
	if err != nil {
		return fmt.Errorf("failed to upsert field: %w", err)
	}

	return nil
}

func (r *FieldRepository) GetByID(id string) (*models.Field, error) {
	query := `
		SELECT id, surveyor_id, field_no, area_sqm, created_at, updated_at,
			ST_AsBinary(location) AS location_wkb
		FROM field
		WHERE id = $1
	`

	var row fieldRow
	err := r.db.Get(&row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("field not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get field: %w", err)
	}

	field := row.Field
	if err := unmarshalFieldLocation(&row, &field); err != nil {
		return nil, err
	}

	return &field, nil
}

// ListBySurveyor returns all fields a surveyor works, ordered by field number.
func (r *FieldRepository) ListBySurveyor(surveyorID string) ([]models.Field, error) {
	query := `
		SELECT id, surveyor_id, field_no, area_sqm, created_at, updated_at,
			ST_AsBinary(location) AS location_wkb
		FROM field
		WHERE surveyor_id = $1
		ORDER BY field_no ASC
	`

	var rows []fieldRow
	err := r.db.Select(&rows, query, surveyorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list fields by surveyor: %w", err)
	}

	fields := make([]models.Field, 0, len(rows))
	for i := range rows {
		field := rows[i].Field
		if err := unmarshalFieldLocation(&rows[i], &field); err != nil {
			return nil, err
		}
		fields = append(fields, field)
	}

	return fields, nil
}

func unmarshalFieldLocation(row *fieldRow, field *models.Field) error {
	if len(row.LocationWKB) == 0 {
		return nil
	}

	locationGeom, err := wkb.Unmarshal(row.LocationWKB)
	if err != nil {
		return fmt.Errorf("unmarshal field location: %w", err)
	}
	point, ok := locationGeom.(*geom.Point)
	if !ok {
		return fmt.Errorf("field location is not a Point")
	}

	coords := point.Coords()
	field.Location = &models.GeoJSONPoint{
		Type:        "Point",
		Coordinates: []float64{coords.X(), coords.Y()},
	}

	return nil
}
