package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

func testObservationRow(fieldID string) ObservationRow {
	return ObservationRow{
		VisitDate:     "2026-01-14",
		FieldID:       fieldID,
		Surveyor:      "S01",
		GrowthStage:   "tillering",
		CropCondition: "good",
		WaterLevel:    "adequate",
		Latitude:      11.556,
		Longitude:     104.928,
	}
}

func sheetRows(t *testing.T, book []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(book))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ObservationSheet)
	require.NoError(t, err)
	return rows
}

// ============================================================================
// TEST SUITE: DAY WORKBOOKS
// ============================================================================

func TestNewObservationWorkbook_HasHeaderRow(t *testing.T) {
	book, err := NewObservationWorkbook()
	require.NoError(t, err)

	rows := sheetRows(t, book)
	require.Len(t, rows, 1, "template should contain only the header row")
	assert.Equal(t, observationHeader, rows[0])
}

func TestAppendObservations_FirstAppendStartsBelowHeader(t *testing.T) {
	book, err := NewObservationWorkbook()
	require.NoError(t, err)

	updated, err := AppendObservations(book, []ObservationRow{testObservationRow("PPH-BKK-TS1-S01-F01")})
	require.NoError(t, err)

	rows := sheetRows(t, updated)
	require.Len(t, rows, 2)
	assert.Equal(t, "PPH-BKK-TS1-S01-F01", rows[1][1])
	assert.Equal(t, "2026-01-14", rows[1][0])
}

func TestAppendObservations_ContinuesAfterLastPopulatedRow(t *testing.T) {
	book, err := NewObservationWorkbook()
	require.NoError(t, err)

	book, err = AppendObservations(book, []ObservationRow{testObservationRow("PPH-BKK-TS1-S01-F01")})
	require.NoError(t, err)

	book, err = AppendObservations(book, []ObservationRow{
		testObservationRow("PPH-BKK-TS1-S01-F02"),
		testObservationRow("PPH-BKK-TS1-S02-F01"),
	})
	require.NoError(t, err)

	rows := sheetRows(t, book)
	require.Len(t, rows, 4, "appends must land after earlier rows, never over them")
	assert.Equal(t, "PPH-BKK-TS1-S01-F01", rows[1][1])
	assert.Equal(t, "PPH-BKK-TS1-S01-F02", rows[2][1])
	assert.Equal(t, "PPH-BKK-TS1-S02-F01", rows[3][1])
}

func TestAppendObservations_MissingSheetIsMalformed(t *testing.T) {
	f := excelize.NewFile()
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = AppendObservations(buf.Bytes(), []ObservationRow{testObservationRow("PPH-BKK-TS1-S01-F01")})

	assert.ErrorIs(t, err, models.ErrSpreadsheetFormat)
}

func TestAppendObservations_CorruptWorkbook(t *testing.T) {
	_, err := AppendObservations([]byte("not a workbook"), []ObservationRow{testObservationRow("PPH-BKK-TS1-S01-F01")})

	assert.ErrorIs(t, err, models.ErrSpreadsheetFormat)
}

// ============================================================================
// TEST SUITE: ROW FLATTENING
// ============================================================================

func TestNewObservationRow_FlattensRecord(t *testing.T) {
	pest := "stem borer"
	temp := 31.5
	humidity := 74.0
	record := &models.SurveyRecord{
		ID:            uuid.New(),
		FieldID:       "PPH-BKK-TS1-S01-F01",
		VisitDate:     time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC),
		Latitude:      11.556,
		Longitude:     104.928,
		GrowthStage:   models.StageTillering,
		CropCondition: models.ConditionGood,
		WaterLevel:    models.WaterAdequate,
		PestObserved:  &pest,
		Weather: &models.WeatherSnapshot{
			TemperatureC: &temp,
			HumidityPct:  &humidity,
		},
		Photos: []models.RecordPhoto{
			{PhotoURL: "http://minio/survey-photos/a.jpg", Position: 0},
			{PhotoURL: "http://minio/survey-photos/b.jpg", Position: 1},
		},
	}

	row := NewObservationRow(record, "S01")

	assert.Equal(t, "2026-01-14", row.VisitDate)
	assert.Equal(t, "PPH-BKK-TS1-S01-F01", row.FieldID)
	assert.Equal(t, "S01", row.Surveyor)
	assert.Equal(t, "tillering", row.GrowthStage)
	assert.Equal(t, "stem borer", row.PestObserved)
	assert.Empty(t, row.DiseaseObserved)
	require.NotNil(t, row.TemperatureC)
	assert.Equal(t, 31.5, *row.TemperatureC)
	assert.Nil(t, row.WindSpeedKmh)
	assert.Equal(t, "http://minio/survey-photos/a.jpg, http://minio/survey-photos/b.jpg", row.Photos)
}

func TestNewObservationRow_NoWeatherNoPhotos(t *testing.T) {
	record := &models.SurveyRecord{
		FieldID:       "PPH-BKK-TS1-S01-F01",
		VisitDate:     time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC),
		GrowthStage:   models.StageSeedling,
		CropCondition: models.ConditionFair,
		WaterLevel:    models.WaterLow,
	}

	row := NewObservationRow(record, "S02")

	assert.Nil(t, row.TemperatureC)
	assert.Nil(t, row.PrecipitationMm)
	assert.Empty(t, row.Photos)
	assert.Empty(t, row.Note)
}
