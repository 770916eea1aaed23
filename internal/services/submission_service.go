package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/repository"
)

// SubmissionService is the intake pipeline: resolve the location, pin down
// surveyor and field identity, store photos, and persist the record as
// pending for the sync engine to pick up.
type SubmissionService struct {
	locations LocationResolver
	surveyors SurveyorStore
	fields    FieldStore
	records   RecordStore

	// Optional collaborators; intake still works when they are nil.
	photos  PhotoStorage
	weather WeatherProvider
	queue   SyncEnqueuer
}

func NewSubmissionService(
	locations LocationResolver,
	surveyors SurveyorStore,
	fields FieldStore,
	records RecordStore,
	photos PhotoStorage,
	weather WeatherProvider,
	queue SyncEnqueuer,
) *SubmissionService {
	return &SubmissionService{
		locations: locations,
		surveyors: surveyors,
		fields:    fields,
		records:   records,
		photos:    photos,
		weather:   weather,
		queue:     queue,
	}
}

// Submit processes one observation from the mini-app.
func (s *SubmissionService) Submit(ctx context.Context, req *models.SubmissionRequest) (*models.SubmissionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("badrequest: %w", err)
	}

	info, err := s.locations.Resolve(ctx, req.Latitude, req.Longitude)
	if err != nil {
		return nil, err
	}

	surveyor, err := s.ensureSurveyor(req, info.LocationCode)
	if err != nil {
		return nil, err
	}

	fieldID := models.FieldID(info.LocationCode, surveyor.SeqNo, req.FieldNo)
	field := &models.Field{
		ID:         fieldID,
		SurveyorID: surveyor.ID,
		FieldNo:    req.FieldNo,
		Location:   models.NewGeoJSONPoint(req.Longitude, req.Latitude),
	}
	if req.AreaSqm > 0 {
		area := req.AreaSqm
		field.AreaSqm = &area
	}
	if err := s.fields.Upsert(field); err != nil {
		return nil, err
	}

	record := &models.SurveyRecord{
		ID:              uuid.New(),
		FieldID:         fieldID,
		SurveyorID:      surveyor.ID,
		LocationCode:    info.LocationCode,
		VisitDate:       req.ParsedVisitDate(),
		Latitude:        req.Latitude,
		Longitude:       req.Longitude,
		GrowthStage:     req.GrowthStage,
		CropCondition:   req.CropCondition,
		WaterLevel:      req.WaterLevel,
		PestObserved:    optionalString(req.PestObserved),
		DiseaseObserved: optionalString(req.DiseaseObserved),
		Treatment:       optionalString(req.Treatment),
		Note:            optionalString(req.Note),
		SyncStatus:      models.SyncPending,
	}

	if s.weather != nil {
		snapshot, err := s.weather.Snapshot(ctx, req.Latitude, req.Longitude)
		if err != nil {
			slog.Warn("weather lookup failed, recording without snapshot", "error", err)
		} else {
			record.Weather = snapshot
		}
	}

	if len(req.Photos) > 0 {
		photos, err := s.storePhotos(ctx, record, req.Photos)
		if err != nil {
			return nil, err
		}
		record.Photos = photos
	}

	if err := s.records.Create(record); err != nil {
		return nil, err
	}

	if s.queue != nil {
		s.queue.Enqueue(ctx, record.ID)
	}

	slog.Info("submission accepted",
		"record_id", record.ID,
		"field_id", fieldID,
		"surveyor", surveyor.Code(),
		"photos", len(record.Photos),
	)

	return &models.SubmissionResponse{
		RecordID:     record.ID.String(),
		FieldID:      fieldID,
		SurveyorCode: surveyor.Code(),
		LocationCode: info.LocationCode,
		SyncStatus:   string(record.SyncStatus),
		PhotoCount:   len(record.Photos),
	}, nil
}

// ensureSurveyor finds the surveyor by Telegram identity or registers them
// under the submitted location. A lost seq_no race surfaces as a unique
// violation; re-reading picks up whichever row won.
func (s *SubmissionService) ensureSurveyor(req *models.SubmissionRequest, locationCode string) (*models.Surveyor, error) {
	for attempt := 0; attempt < 3; attempt++ {
		surveyor, err := s.surveyors.GetByTelegramID(req.TelegramID)
		if err != nil {
			return nil, err
		}
		if surveyor != nil {
			return surveyor, nil
		}

		surveyor = &models.Surveyor{
			TelegramID:   strings.TrimSpace(req.TelegramID),
			DisplayName:  strings.TrimSpace(req.SurveyorName),
			LocationCode: locationCode,
		}
		err = s.surveyors.Create(surveyor)
		if err == nil {
			slog.Info("registered surveyor", "telegram_id", surveyor.TelegramID, "code", surveyor.Code(), "location_code", locationCode)
			return surveyor, nil
		}
		if !repository.IsUniqueViolation(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("failed to register surveyor %s after retries", req.TelegramID)
}

func (s *SubmissionService) storePhotos(ctx context.Context, record *models.SurveyRecord, uploads []models.PhotoUpload) ([]models.RecordPhoto, error) {
	if s.photos == nil {
		return nil, fmt.Errorf("%w: photo uploads need object storage", models.ErrObjectStorageMisconfigured)
	}

	photos := make([]models.RecordPhoto, 0, len(uploads))
	for i, upload := range uploads {
		data, err := decodePhoto(upload.Data)
		if err != nil {
			return nil, fmt.Errorf("badrequest: photo %d is not valid base64: %w", i+1, err)
		}

		ext := strings.ToLower(path.Ext(upload.FileName))
		if ext == "" {
			ext = ".jpg"
		}
		objectKey := fmt.Sprintf("%s/%s/%s_%d%s", record.FieldID, record.DateFolder(), record.ID, i+1, ext)

		url, err := s.photos.UploadBytes(ctx, objectKey, data, photoContentType(ext))
		if err != nil {
			return nil, fmt.Errorf("failed to store photo %d: %w", i+1, err)
		}

		photos = append(photos, models.RecordPhoto{
			ID:        uuid.New(),
			RecordID:  record.ID,
			ObjectKey: objectKey,
			PhotoURL:  url,
			Position:  i,
		})
	}

	return photos, nil
}

func decodePhoto(data string) ([]byte, error) {
	// Mini-app uploads may carry a data-URL prefix.
	if idx := strings.Index(data, ","); idx != -1 && strings.HasPrefix(data, "data:") {
		data = data[idx+1:]
	}
	return base64.StdEncoding.DecodeString(data)
}

func photoContentType(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

func optionalString(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
