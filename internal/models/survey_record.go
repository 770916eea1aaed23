package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// SURVEY RECORDS
// ============================================================================

// SurveyRecord is one observation event for a field. Created once at intake
// with status pending; after that only the sync engine touches it, and only
// the sync columns.
type SurveyRecord struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	FieldID         string           `json:"field_id" db:"field_id"`
	SurveyorID      uuid.UUID        `json:"surveyor_id" db:"surveyor_id"`
	LocationCode    string           `json:"location_code" db:"location_code"`
	VisitDate       time.Time        `json:"visit_date" db:"visit_date"`
	Latitude        float64          `json:"latitude" db:"latitude"`
	Longitude       float64          `json:"longitude" db:"longitude"`
	GrowthStage     GrowthStage      `json:"growth_stage" db:"growth_stage"`
	CropCondition   CropCondition    `json:"crop_condition" db:"crop_condition"`
	WaterLevel      WaterLevel       `json:"water_level" db:"water_level"`
	PestObserved    *string          `json:"pest_observed,omitempty" db:"pest_observed"`
	DiseaseObserved *string          `json:"disease_observed,omitempty" db:"disease_observed"`
	Treatment       *string          `json:"treatment,omitempty" db:"treatment"`
	Note            *string          `json:"note,omitempty" db:"note"`
	Weather         *WeatherSnapshot `json:"weather,omitempty" db:"weather"`
	SyncStatus      SyncStatus       `json:"sync_status" db:"sync_status"`
	SyncError       *string          `json:"sync_error,omitempty" db:"sync_error"`
	SyncedAt        *time.Time       `json:"synced_at,omitempty" db:"synced_at"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
	Photos          []RecordPhoto    `json:"photos,omitempty" db:"-"`
}

// DateFolder is the archive day bucket the record belongs to, derived from
// its visit date.
func (r *SurveyRecord) DateFolder() string {
	return r.VisitDate.Format("20060102")
}

type RecordPhoto struct {
	ID        uuid.UUID `json:"id" db:"id"`
	RecordID  uuid.UUID `json:"record_id" db:"record_id"`
	ObjectKey string    `json:"object_key" db:"object_key"`
	PhotoURL  string    `json:"photo_url" db:"photo_url"`
	Position  int       `json:"position" db:"position"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// WeatherSnapshot is the conditions captured at intake, stored as JSONB.
type WeatherSnapshot struct {
	TemperatureC    *float64  `json:"temperature_c,omitempty"`
	HumidityPct     *float64  `json:"humidity_pct,omitempty"`
	WindSpeedKmh    *float64  `json:"wind_speed_kmh,omitempty"`
	PrecipitationMm *float64  `json:"precipitation_mm,omitempty"`
	WeatherCode     *int      `json:"weather_code,omitempty"`
	CapturedAt      time.Time `json:"captured_at"`
}

// Value implements the driver.Valuer interface for WeatherSnapshot
func (w *WeatherSnapshot) Value() (driver.Value, error) {
	if w == nil {
		return nil, nil
	}
	return json.Marshal(w)
}

// Scan implements the sql.Scanner interface for WeatherSnapshot
func (w *WeatherSnapshot) Scan(value any) error {
	if value == nil {
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("WeatherSnapshot: Scan failed, expected []byte but got %T", value)
	}

	return json.Unmarshal(b, w)
}
