package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

type fakeResolver struct {
	info *models.LocationInfo
	err  error
}

func (f *fakeResolver) Resolve(ctx context.Context, lat, lon float64) (*models.LocationInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeSurveyorStore struct {
	byTelegramID map[string]*models.Surveyor
	nextSeq      int
	failCreates  int
	created      int
}

func newFakeSurveyorStore() *fakeSurveyorStore {
	return &fakeSurveyorStore{byTelegramID: make(map[string]*models.Surveyor), nextSeq: 1}
}

func (f *fakeSurveyorStore) GetByTelegramID(telegramID string) (*models.Surveyor, error) {
	return f.byTelegramID[telegramID], nil
}

func (f *fakeSurveyorStore) Create(surveyor *models.Surveyor) error {
	if f.failCreates > 0 {
		f.failCreates--
		// Mimic the seq_no race: another insert landed first.
		f.byTelegramID[surveyor.TelegramID] = &models.Surveyor{
			ID:           uuid.New(),
			TelegramID:   surveyor.TelegramID,
			DisplayName:  surveyor.DisplayName,
			LocationCode: surveyor.LocationCode,
			SeqNo:        f.nextSeq,
		}
		f.nextSeq++
		return fmt.Errorf("failed to create surveyor: %w", &pq.Error{Code: "23505"})
	}

	surveyor.ID = uuid.New()
	surveyor.SeqNo = f.nextSeq
	f.nextSeq++
	f.created++
	f.byTelegramID[surveyor.TelegramID] = surveyor
	return nil
}

type fakeFieldStore struct {
	upserts []models.Field
}

func (f *fakeFieldStore) Upsert(field *models.Field) error {
	f.upserts = append(f.upserts, *field)
	return nil
}

type fakeRecordStore struct {
	created  []*models.SurveyRecord
	statuses map[uuid.UUID]models.SyncStatus
	errs     map[uuid.UUID]string
	synced   map[uuid.UUID]time.Time
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		statuses: make(map[uuid.UUID]models.SyncStatus),
		errs:     make(map[uuid.UUID]string),
		synced:   make(map[uuid.UUID]time.Time),
	}
}

func (f *fakeRecordStore) Create(record *models.SurveyRecord) error {
	f.created = append(f.created, record)
	f.statuses[record.ID] = record.SyncStatus
	return nil
}

func (f *fakeRecordStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.SurveyRecord, error) {
	var out []models.SurveyRecord
	for _, id := range ids {
		for _, r := range f.created {
			if r.ID == id {
				out = append(out, *r)
			}
		}
	}
	return out, nil
}

func (f *fakeRecordStore) ListEligibleIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, r := range f.created {
		if f.statuses[r.ID] != models.SyncSynced {
			ids = append(ids, r.ID)
		}
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

func (f *fakeRecordStore) MarkSynced(id uuid.UUID, syncedAt time.Time) error {
	f.statuses[id] = models.SyncSynced
	f.synced[id] = syncedAt
	return nil
}

func (f *fakeRecordStore) MarkFailed(id uuid.UUID, errMsg string) error {
	f.statuses[id] = models.SyncFailed
	f.errs[id] = errMsg
	return nil
}

func (f *fakeRecordStore) CountByStatus(status models.SyncStatus) (int, error) {
	count := 0
	for _, s := range f.statuses {
		if s == status {
			count++
		}
	}
	return count, nil
}

type fakePhotoStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool

	// Concurrency instrumentation for sync-engine tests.
	fetchDelay time.Duration
	active     int32
	maxActive  int32
}

func newFakePhotoStorage() *fakePhotoStorage {
	return &fakePhotoStorage{objects: make(map[string][]byte)}
}

func (f *fakePhotoStorage) UploadBytes(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	if f.fail {
		return "", errors.New("connection refused")
	}
	f.mu.Lock()
	f.objects[objectName] = data
	f.mu.Unlock()
	return "http://minio/survey-photos/" + objectName, nil
}

func (f *fakePhotoStorage) GetBytes(ctx context.Context, objectName string) ([]byte, error) {
	current := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		peak := atomic.LoadInt32(&f.maxActive)
		if current <= peak || atomic.CompareAndSwapInt32(&f.maxActive, peak, current) {
			break
		}
	}
	if f.fetchDelay > 0 {
		time.Sleep(f.fetchDelay)
	}

	f.mu.Lock()
	data, ok := f.objects[objectName]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object not found: %s", objectName)
	}
	return data, nil
}

type fakeWeather struct {
	snapshot *models.WeatherSnapshot
	err      error
}

func (f *fakeWeather) Snapshot(ctx context.Context, lat, lon float64) (*models.WeatherSnapshot, error) {
	return f.snapshot, f.err
}

type fakeQueue struct {
	enqueued []uuid.UUID
}

func (f *fakeQueue) Enqueue(ctx context.Context, id uuid.UUID) {
	f.enqueued = append(f.enqueued, id)
}

func phnomPenhInfo() *models.LocationInfo {
	return &models.LocationInfo{
		LocationCode: "PPH-BKK-TS1",
		ProvinceName: "Phnom Penh",
		DistrictName: "Boeng Keng Kang",
		CommuneName:  "Tuol Svay Prey Ti Muoy",
	}
}

func validSubmission() *models.SubmissionRequest {
	return &models.SubmissionRequest{
		TelegramID:    "tg-1001",
		SurveyorName:  "Sok Dara",
		FieldNo:       1,
		VisitDate:     "2026-01-14",
		Latitude:      11.556,
		Longitude:     104.928,
		GrowthStage:   models.StageTillering,
		CropCondition: models.ConditionGood,
		WaterLevel:    models.WaterAdequate,
	}
}

// ============================================================================
// TEST SUITE: SUBMISSION INTAKE
// ============================================================================

func TestSubmit_CreatesPendingRecord(t *testing.T) {
	surveyors := newFakeSurveyorStore()
	fields := &fakeFieldStore{}
	records := newFakeRecordStore()
	queue := &fakeQueue{}
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, surveyors, fields, records, nil, nil, queue)

	resp, err := service.Submit(context.Background(), validSubmission())

	require.NoError(t, err)
	assert.Equal(t, "PPH-BKK-TS1-S01-F01", resp.FieldID)
	assert.Equal(t, "S01", resp.SurveyorCode)
	assert.Equal(t, "PPH-BKK-TS1", resp.LocationCode)
	assert.Equal(t, string(models.SyncPending), resp.SyncStatus)

	require.Len(t, records.created, 1)
	record := records.created[0]
	assert.Equal(t, models.SyncPending, record.SyncStatus)
	assert.Equal(t, "20260114", record.DateFolder())

	require.Len(t, fields.upserts, 1)
	assert.Equal(t, "PPH-BKK-TS1-S01-F01", fields.upserts[0].ID)

	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, record.ID, queue.enqueued[0])
}

func TestSubmit_ExistingSurveyorKeepsNumber(t *testing.T) {
	surveyors := newFakeSurveyorStore()
	surveyors.byTelegramID["tg-1001"] = &models.Surveyor{
		ID:           uuid.New(),
		TelegramID:   "tg-1001",
		DisplayName:  "Sok Dara",
		LocationCode: "PPH-BKK-TS1",
		SeqNo:        2,
	}
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, surveyors, &fakeFieldStore{}, newFakeRecordStore(), nil, nil, nil)

	req := validSubmission()
	req.FieldNo = 3
	resp, err := service.Submit(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "PPH-BKK-TS1-S02-F03", resp.FieldID)
	assert.Zero(t, surveyors.created, "known surveyor must not be re-registered")
}

func TestSubmit_RejectsInvalidPayload(t *testing.T) {
	resolver := &fakeResolver{info: phnomPenhInfo()}
	records := newFakeRecordStore()
	service := NewSubmissionService(resolver, newFakeSurveyorStore(), &fakeFieldStore{}, records, nil, nil, nil)

	req := validSubmission()
	req.GrowthStage = "sprouting"
	_, err := service.Submit(context.Background(), req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "badrequest")
	assert.Empty(t, records.created)
}

func TestSubmit_ResolverErrorsPropagate(t *testing.T) {
	resolver := &fakeResolver{err: fmt.Errorf("%w: no commune", models.ErrLocationNotFound)}
	service := NewSubmissionService(resolver, newFakeSurveyorStore(), &fakeFieldStore{}, newFakeRecordStore(), nil, nil, nil)

	_, err := service.Submit(context.Background(), validSubmission())

	assert.ErrorIs(t, err, models.ErrLocationNotFound)
}

func TestSubmit_RetriesLostRegistrationRace(t *testing.T) {
	surveyors := newFakeSurveyorStore()
	surveyors.failCreates = 1
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, surveyors, &fakeFieldStore{}, newFakeRecordStore(), nil, nil, nil)

	resp, err := service.Submit(context.Background(), validSubmission())

	require.NoError(t, err)
	assert.Equal(t, "S01", resp.SurveyorCode, "winner row from the race should be reused")
}

func TestSubmit_StoresPhotos(t *testing.T) {
	photos := newFakePhotoStorage()
	records := newFakeRecordStore()
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, newFakeSurveyorStore(), &fakeFieldStore{}, records, photos, nil, nil)

	raw := base64.StdEncoding.EncodeToString([]byte("jpeg bytes"))
	req := validSubmission()
	req.Photos = []models.PhotoUpload{
		{FileName: "north.jpg", Data: raw},
		{FileName: "south.png", Data: "data:image/png;base64," + raw},
	}

	resp, err := service.Submit(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 2, resp.PhotoCount)

	record := records.created[0]
	require.Len(t, record.Photos, 2)
	assert.Equal(t, 0, record.Photos[0].Position)
	assert.Equal(t, 1, record.Photos[1].Position)
	assert.Contains(t, record.Photos[0].ObjectKey, "PPH-BKK-TS1-S01-F01/20260114/")
	assert.Contains(t, record.Photos[1].ObjectKey, ".png")
	assert.Len(t, photos.objects, 2, "data-URL prefix should decode like plain base64")
}

func TestSubmit_PhotoWithoutStorageConfigured(t *testing.T) {
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, newFakeSurveyorStore(), &fakeFieldStore{}, newFakeRecordStore(), nil, nil, nil)

	req := validSubmission()
	req.Photos = []models.PhotoUpload{{FileName: "a.jpg", Data: base64.StdEncoding.EncodeToString([]byte("x"))}}
	_, err := service.Submit(context.Background(), req)

	assert.ErrorIs(t, err, models.ErrObjectStorageMisconfigured)
}

func TestSubmit_PhotoUploadFailureFailsIntake(t *testing.T) {
	photos := newFakePhotoStorage()
	photos.fail = true
	records := newFakeRecordStore()
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, newFakeSurveyorStore(), &fakeFieldStore{}, records, photos, nil, nil)

	req := validSubmission()
	req.Photos = []models.PhotoUpload{{FileName: "a.jpg", Data: base64.StdEncoding.EncodeToString([]byte("x"))}}
	_, err := service.Submit(context.Background(), req)

	require.Error(t, err)
	assert.Empty(t, records.created, "no record without its photos")
}

func TestSubmit_WeatherFailureStillAccepts(t *testing.T) {
	weather := &fakeWeather{err: errors.New("timeout")}
	records := newFakeRecordStore()
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, newFakeSurveyorStore(), &fakeFieldStore{}, records, nil, weather, nil)

	_, err := service.Submit(context.Background(), validSubmission())

	require.NoError(t, err)
	assert.Nil(t, records.created[0].Weather)
}

func TestSubmit_WeatherSnapshotAttached(t *testing.T) {
	temp := 30.5
	weather := &fakeWeather{snapshot: &models.WeatherSnapshot{TemperatureC: &temp, CapturedAt: time.Now()}}
	records := newFakeRecordStore()
	service := NewSubmissionService(&fakeResolver{info: phnomPenhInfo()}, newFakeSurveyorStore(), &fakeFieldStore{}, records, nil, weather, nil)

	_, err := service.Submit(context.Background(), validSubmission())

	require.NoError(t, err)
	require.NotNil(t, records.created[0].Weather)
	assert.Equal(t, 30.5, *records.created[0].Weather.TemperatureC)
}
