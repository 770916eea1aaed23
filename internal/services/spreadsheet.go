package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

const (
	// ObservationSheet is the sheet every day workbook carries and every sync
	// appends to.
	ObservationSheet = "Observations"

	// SpreadsheetContentType is the MIME type day workbooks are uploaded with.
	SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var observationHeader = []string{
	"Visit Date",
	"Field ID",
	"Surveyor",
	"Growth Stage",
	"Crop Condition",
	"Water Level",
	"Pest Observed",
	"Disease Observed",
	"Treatment",
	"Note",
	"Temperature (C)",
	"Humidity (%)",
	"Wind (km/h)",
	"Rain (mm)",
	"Latitude",
	"Longitude",
	"Photos",
}

var observationColumnWidths = []float64{
	12, // Visit Date
	18, // Field ID
	10, // Surveyor
	14, // Growth Stage
	14, // Crop Condition
	12, // Water Level
	24, // Pest Observed
	24, // Disease Observed
	24, // Treatment
	30, // Note
	15, // Temperature (C)
	13, // Humidity (%)
	12, // Wind (km/h)
	11, // Rain (mm)
	12, // Latitude
	12, // Longitude
	40, // Photos
}

// ObservationRow is one survey record flattened into spreadsheet cells.
type ObservationRow struct {
	VisitDate       string
	FieldID         string
	Surveyor        string
	GrowthStage     string
	CropCondition   string
	WaterLevel      string
	PestObserved    string
	DiseaseObserved string
	Treatment       string
	Note            string
	TemperatureC    *float64
	HumidityPct     *float64
	WindSpeedKmh    *float64
	PrecipitationMm *float64
	Latitude        float64
	Longitude       float64
	Photos          string
}

// NewObservationRow flattens a record and its photos into export cells.
func NewObservationRow(record *models.SurveyRecord, surveyorCode string) ObservationRow {
	row := ObservationRow{
		VisitDate:       record.VisitDate.Format("2006-01-02"),
		FieldID:         record.FieldID,
		Surveyor:        surveyorCode,
		GrowthStage:     string(record.GrowthStage),
		CropCondition:   string(record.CropCondition),
		WaterLevel:      string(record.WaterLevel),
		PestObserved:    stringOrEmpty(record.PestObserved),
		DiseaseObserved: stringOrEmpty(record.DiseaseObserved),
		Treatment:       stringOrEmpty(record.Treatment),
		Note:            stringOrEmpty(record.Note),
		Latitude:        record.Latitude,
		Longitude:       record.Longitude,
	}

	if record.Weather != nil {
		row.TemperatureC = record.Weather.TemperatureC
		row.HumidityPct = record.Weather.HumidityPct
		row.WindSpeedKmh = record.Weather.WindSpeedKmh
		row.PrecipitationMm = record.Weather.PrecipitationMm
	}

	links := make([]string, 0, len(record.Photos))
	for _, photo := range record.Photos {
		links = append(links, photo.PhotoURL)
	}
	row.Photos = strings.Join(links, ", ")

	return row
}

func (r ObservationRow) cells() []any {
	return []any{
		r.VisitDate,
		r.FieldID,
		r.Surveyor,
		r.GrowthStage,
		r.CropCondition,
		r.WaterLevel,
		r.PestObserved,
		r.DiseaseObserved,
		r.Treatment,
		r.Note,
		numberCell(r.TemperatureC),
		numberCell(r.HumidityPct),
		numberCell(r.WindSpeedKmh),
		numberCell(r.PrecipitationMm),
		r.Latitude,
		r.Longitude,
		r.Photos,
	}
}

// NewObservationWorkbook builds the blank day-workbook template: a styled
// header row on the observation sheet, ready to be appended to.
func NewObservationWorkbook() ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(ObservationSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E2EFDA"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range observationHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(ObservationSheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(ObservationSheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i := range observationHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if i < len(observationColumnWidths) {
			if err := f.SetColWidth(ObservationSheet, col, col, observationColumnWidths[i]); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	if err := f.SetPanes(ObservationSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}

	return buf.Bytes(), nil
}

// AppendObservations adds rows after the last populated row of the
// observation sheet and returns the updated workbook. A workbook without the
// observation sheet is malformed and never retried.
func AppendObservations(book []byte, rows []ObservationRow) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(book))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSpreadsheetFormat, err)
	}

	index, err := f.GetSheetIndex(ObservationSheet)
	if err != nil || index == -1 {
		f.Close()
		return nil, fmt.Errorf("%w: workbook has no %q sheet", models.ErrSpreadsheetFormat, ObservationSheet)
	}

	existing, err := f.GetRows(ObservationSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrSpreadsheetFormat, err)
	}

	next := len(existing) + 1
	for _, row := range rows {
		for col, value := range row.cells() {
			cell, err := excelize.CoordinatesToCellName(col+1, next)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(ObservationSheet, cell, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
		next++
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}

	return buf.Bytes(), nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func numberCell(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
