package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Surveyor is a Telegram identity working one location. The sequential
// number is unique within the location code and never reused.
type Surveyor struct {
	ID           uuid.UUID `json:"id" db:"id"`
	TelegramID   string    `json:"telegram_id" db:"telegram_id"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	LocationCode string    `json:"location_code" db:"location_code"`
	SeqNo        int       `json:"seq_no" db:"seq_no"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Code renders the surveyor number in its display form (S01, S02, ...).
func (s *Surveyor) Code() string {
	return fmt.Sprintf("S%02d", s.SeqNo)
}

// Field is a physical paddy plot owned by exactly one surveyor. The primary
// key is the human-readable composite id, e.g. "PPH-BKK-TS1-S01-F03".
type Field struct {
	ID         string        `json:"id" db:"id"`
	SurveyorID uuid.UUID     `json:"surveyor_id" db:"surveyor_id"`
	FieldNo    int           `json:"field_no" db:"field_no"`
	Location   *GeoJSONPoint `json:"location,omitempty" db:"location"`
	AreaSqm    *float64      `json:"area_sqm,omitempty" db:"area_sqm"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" db:"updated_at"`
}

// FieldID composes the canonical plot identifier.
func FieldID(locationCode string, surveyorNo, fieldNo int) string {
	return fmt.Sprintf("%s-S%02d-F%02d", locationCode, surveyorNo, fieldNo)
}
