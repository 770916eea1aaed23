package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Helper functions for validation
func isValidGrowthStage(stage GrowthStage) bool {
	switch stage {
	case StageSeedling, StageTillering, StageBooting, StageHeading, StageRipening, StageHarvested:
		return true
	default:
		return false
	}
}

func isValidCropCondition(condition CropCondition) bool {
	switch condition {
	case ConditionGood, ConditionFair, ConditionPoor, ConditionDamaged:
		return true
	default:
		return false
	}
}

func isValidWaterLevel(level WaterLevel) bool {
	switch level {
	case WaterDry, WaterLow, WaterAdequate, WaterFlooded:
		return true
	default:
		return false
	}
}

func trimAndValidateString(str string, fieldName string, minLen, maxLen int) error {
	trimmed := strings.TrimSpace(str)
	if len(trimmed) < minLen {
		return fmt.Errorf("%s must be at least %d characters", fieldName, minLen)
	}
	if len(trimmed) > maxLen {
		return fmt.Errorf("%s must be %d characters or less", fieldName, maxLen)
	}
	return nil
}

// PhotoUpload is one photo attached to a submission, base64-encoded by the
// mini-app before POSTing.
type PhotoUpload struct {
	FileName string `json:"file_name"`
	Data     string `json:"data"`
}

// SubmissionRequest is the validated observation payload handed over by the
// Telegram mini-app after the auth handshake.
type SubmissionRequest struct {
	TelegramID      string        `json:"telegram_id"`
	SurveyorName    string        `json:"surveyor_name"`
	FieldNo         int           `json:"field_no"`
	VisitDate       string        `json:"visit_date,omitempty"`
	Latitude        float64       `json:"latitude"`
	Longitude       float64       `json:"longitude"`
	GrowthStage     GrowthStage   `json:"growth_stage"`
	CropCondition   CropCondition `json:"crop_condition"`
	WaterLevel      WaterLevel    `json:"water_level"`
	PestObserved    string        `json:"pest_observed,omitempty"`
	DiseaseObserved string        `json:"disease_observed,omitempty"`
	Treatment       string        `json:"treatment,omitempty"`
	Note            string        `json:"note,omitempty"`
	AreaSqm         float64       `json:"area_sqm,omitempty"`
	Photos          []PhotoUpload `json:"photos,omitempty"`
}

func (r *SubmissionRequest) Validate() error {
	if err := trimAndValidateString(r.TelegramID, "telegram_id", 1, 64); err != nil {
		return err
	}
	if err := trimAndValidateString(r.SurveyorName, "surveyor_name", 1, 120); err != nil {
		return err
	}
	if r.FieldNo < 1 || r.FieldNo > 99 {
		return fmt.Errorf("field_no must be between 1 and 99")
	}
	if math.IsNaN(r.Latitude) || math.IsInf(r.Latitude, 0) ||
		math.IsNaN(r.Longitude) || math.IsInf(r.Longitude, 0) {
		return fmt.Errorf("latitude and longitude must be finite numbers")
	}
	if r.VisitDate != "" {
		if _, err := time.Parse("2006-01-02", r.VisitDate); err != nil {
			return fmt.Errorf("visit_date must use YYYY-MM-DD format")
		}
	}
	if !isValidGrowthStage(r.GrowthStage) {
		return fmt.Errorf("invalid growth_stage: %s", r.GrowthStage)
	}
	if !isValidCropCondition(r.CropCondition) {
		return fmt.Errorf("invalid crop_condition: %s", r.CropCondition)
	}
	if !isValidWaterLevel(r.WaterLevel) {
		return fmt.Errorf("invalid water_level: %s", r.WaterLevel)
	}
	if err := trimAndValidateString(r.Note, "note", 0, 1000); err != nil {
		return err
	}
	if len(r.Photos) > 5 {
		return fmt.Errorf("at most 5 photos per submission")
	}
	for i, p := range r.Photos {
		if p.Data == "" {
			return fmt.Errorf("photo %d has no data", i+1)
		}
	}
	return nil
}

// ParsedVisitDate returns the visit date, defaulting to today when omitted.
func (r *SubmissionRequest) ParsedVisitDate() time.Time {
	if r.VisitDate == "" {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}
	d, err := time.Parse("2006-01-02", r.VisitDate)
	if err != nil {
		return time.Now().UTC().Truncate(24 * time.Hour)
	}
	return d
}

// SubmissionResponse echoes the identifiers assigned during intake.
type SubmissionResponse struct {
	RecordID     string `json:"record_id"`
	FieldID      string `json:"field_id"`
	SurveyorCode string `json:"surveyor_code"`
	LocationCode string `json:"location_code"`
	SyncStatus   string `json:"sync_status"`
	PhotoCount   int    `json:"photo_count"`
}

// SyncStats reports queue depth and in-flight work for the ops surface.
type SyncStats struct {
	Queued int `json:"queued"`
	Active int `json:"active"`
}

// SyncResult is the tally returned by a batch run.
type SyncResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}
