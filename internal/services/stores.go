package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

// Narrow store interfaces over the repositories, so services can be exercised
// against fakes. The concrete repository types satisfy these directly.

type SurveyorStore interface {
	GetByTelegramID(telegramID string) (*models.Surveyor, error)
	Create(surveyor *models.Surveyor) error
}

type FieldStore interface {
	Upsert(field *models.Field) error
}

type RecordStore interface {
	Create(record *models.SurveyRecord) error
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.SurveyRecord, error)
	ListEligibleIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	MarkSynced(id uuid.UUID, syncedAt time.Time) error
	MarkFailed(id uuid.UUID, errMsg string) error
	CountByStatus(status models.SyncStatus) (int, error)
}

// LocationResolver is what intake needs from the location service.
type LocationResolver interface {
	Resolve(ctx context.Context, lat, lon float64) (*models.LocationInfo, error)
}

// WeatherProvider captures conditions at intake time.
type WeatherProvider interface {
	Snapshot(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error)
}

// PhotoStorage is the object-store surface used for survey photos.
type PhotoStorage interface {
	UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
	GetBytes(ctx context.Context, objectName string) ([]byte, error)
}

// SyncEnqueuer hands freshly created records to the background sync worker.
// Implementations must not drop records: a full queue syncs inline instead.
type SyncEnqueuer interface {
	Enqueue(ctx context.Context, id uuid.UUID)
}
