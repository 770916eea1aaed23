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
)

// AreaRepository is the spatial-store boundary: point-in-polygon containment
// plus write-once code assignment on administrative areas.
type AreaRepository struct {
	db *sqlx.DB
}

func NewAreaRepository(db *sqlx.DB) *AreaRepository {
	return &AreaRepository{db: db}
}

type containmentRow struct {
	ProvinceID   uuid.UUID `db:"province_id"`
	ProvinceName string    `db:"province_name"`
	ProvinceCode *string   `db:"province_code"`
	DistrictID   uuid.UUID `db:"district_id"`
	DistrictName string    `db:"district_name"`
	DistrictCode *string   `db:"district_code"`
	CommuneID    uuid.UUID `db:"commune_id"`
	CommuneName  string    `db:"commune_name"`
	CommuneCode  *string   `db:"commune_code"`
}

// ContainingAreas finds the commune whose boundary contains the point and
// walks up to its district and province. All three are nil when no commune
// contains the point; that is expected absence, not an error.
func (r *AreaRepository) ContainingAreas(ctx context.Context, lat, lon float64) (province, district, commune *models.AdministrativeArea, err error) {
	query := `
		SELECT
			p.id AS province_id, p.name_en AS province_name, p.code AS province_code,
			d.id AS district_id, d.name_en AS district_name, d.code AS district_code,
			c.id AS commune_id, c.name_en AS commune_name, c.code AS commune_code
		FROM administrative_area c
		JOIN administrative_area d ON c.parent_id = d.id
		JOIN administrative_area p ON d.parent_id = p.id
		WHERE c.level = 'commune'
		  AND ST_Contains(c.boundary, ST_SetSRID(ST_MakePoint($1, $2), 4326))
		LIMIT 1
	`

	var row containmentRow
	err = r.db.GetContext(ctx, &row, query, lon, lat)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("failed to query containing areas: %w", err)
	}

	province = &models.AdministrativeArea{
		ID:     row.ProvinceID,
		Level:  models.LevelProvince,
		NameEN: row.ProvinceName,
		Code:   row.ProvinceCode,
	}
	district = &models.AdministrativeArea{
		ID:       row.DistrictID,
		Level:    models.LevelDistrict,
		NameEN:   row.DistrictName,
		Code:     row.DistrictCode,
		ParentID: &row.ProvinceID,
	}
	commune = &models.AdministrativeArea{
		ID:       row.CommuneID,
		Level:    models.LevelCommune,
		NameEN:   row.CommuneName,
		Code:     row.CommuneCode,
		ParentID: &row.DistrictID,
	}

	return province, district, commune, nil
}

// ListAssignedCodes returns every code already assigned at one hierarchy
// level. The generator treats this as the collision set.
func (r *AreaRepository) ListAssignedCodes(ctx context.Context, level models.AdminLevel) ([]string, error) {
	var codes []string
	query := `SELECT code FROM administrative_area WHERE level = $1 AND code IS NOT NULL`

	err := r.db.SelectContext(ctx, &codes, query, level)
	if err != nil {
		return nil, fmt.Errorf("failed to list assigned codes for level %s: %w", level, err)
	}

	return codes, nil
}

// AssignCodeIfEmpty persists a generated code with compare-and-swap
// semantics: the write only lands if no code has been assigned yet. Returns
// false when another resolver won the race; callers must re-read the winner.
func (r *AreaRepository) AssignCodeIfEmpty(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	query := `UPDATE administrative_area SET code = $2, updated_at = $3 WHERE id = $1 AND code IS NULL`

	result, err := r.db.ExecContext(ctx, query, id, code, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to assign code %s to area %s: %w", code, id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// GetByID fetches one area without its boundary geometry.
func (r *AreaRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.AdministrativeArea, error) {
	var area models.AdministrativeArea
	query := `
		SELECT id, level, name_en, name_km, code, parent_id, created_at, updated_at
		FROM administrative_area
		WHERE id = $1
	`

	err := r.db.GetContext(ctx, &area, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("administrative area not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get administrative area: %w", err)
	}

	return &area, nil
}
