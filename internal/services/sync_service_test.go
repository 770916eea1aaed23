package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/config"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

// fakeArchive keeps folders and files in memory, using the joined folder path
// as the folder ID and "<folder>/<name>" as the file ID so assertions read
// like paths.
type fakeArchive struct {
	mu      sync.Mutex
	content map[string][]byte

	ensureErr   error
	findErr     error
	downloadErr error
	uploadErrs  map[string][]error // folderID -> queued one-shot failures
	uploadFail  map[string]error   // folderID -> persistent failure

	uploadCalls map[string]int
	updateCalls int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		content:     make(map[string][]byte),
		uploadErrs:  make(map[string][]error),
		uploadFail:  make(map[string]error),
		uploadCalls: make(map[string]int),
	}
}

func (f *fakeArchive) EnsureFolderPath(ctx context.Context, segments ...string) (string, error) {
	if f.ensureErr != nil {
		return "", f.ensureErr
	}
	return strings.Join(segments, "/"), nil
}

func (f *fakeArchive) FindFile(ctx context.Context, parentID, name string) (string, error) {
	if f.findErr != nil {
		return "", f.findErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fileID := parentID + "/" + name
	if _, ok := f.content[fileID]; ok {
		return fileID, nil
	}
	return "", nil
}

func (f *fakeArchive) Download(ctx context.Context, fileID string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.content[fileID]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", fileID)
	}
	return data, nil
}

func (f *fakeArchive) UploadNew(ctx context.Context, parentID, name string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadCalls[parentID]++
	if err, ok := f.uploadFail[parentID]; ok {
		return "", err
	}
	if queue := f.uploadErrs[parentID]; len(queue) > 0 {
		f.uploadErrs[parentID] = queue[1:]
		return "", queue[0]
	}

	fileID := parentID + "/" + name
	f.content[fileID] = data
	return fileID, nil
}

func (f *fakeArchive) UpdateContent(ctx context.Context, fileID string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.updateCalls++
	if _, ok := f.content[fileID]; !ok {
		return fmt.Errorf("file not found: %s", fileID)
	}
	f.content[fileID] = data
	return nil
}

func (f *fakeArchive) workbook(t *testing.T, fileID string) [][]string {
	t.Helper()
	f.mu.Lock()
	data, ok := f.content[fileID]
	f.mu.Unlock()
	require.True(t, ok, "workbook %s should exist", fileID)
	return sheetRows(t, data)
}

type fakeLocker struct {
	mu       sync.Mutex
	deny     bool
	err      error
	acquired []string
	released []string
}

func (f *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.deny {
		return false, nil
	}
	f.acquired = append(f.acquired, key)
	return true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, key)
	return nil
}

type fakeEvents struct {
	mu        sync.Mutex
	published []models.SyncResult
}

func (f *fakeEvents) PublishSyncCompleted(ctx context.Context, result models.SyncResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, result)
	return nil
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		BatchSize:   50,
		Concurrency: 2,
		LockTTL:     time.Minute,
		MaxRetries:  2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}
}

// syncRecord builds a pending record already registered in the store.
func syncRecord(records *fakeRecordStore, locationCode string, fieldNo int) *models.SurveyRecord {
	record := &models.SurveyRecord{
		ID:            uuid.New(),
		FieldID:       models.FieldID(locationCode, 1, fieldNo),
		SurveyorID:    uuid.New(),
		LocationCode:  locationCode,
		VisitDate:     time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC),
		Latitude:      11.556,
		Longitude:     104.928,
		GrowthStage:   models.StageTillering,
		CropCondition: models.ConditionGood,
		WaterLevel:    models.WaterAdequate,
		SyncStatus:    models.SyncPending,
	}
	_ = records.Create(record)
	return record
}

func attachPhoto(photos *fakePhotoStorage, record *models.SurveyRecord, position int) {
	key := fmt.Sprintf("%s/%s/%s_%d.jpg", record.FieldID, record.DateFolder(), record.ID, position+1)
	photos.objects[key] = []byte("jpeg bytes")
	record.Photos = append(record.Photos, models.RecordPhoto{
		ID:        uuid.New(),
		RecordID:  record.ID,
		ObjectKey: key,
		PhotoURL:  "http://minio/survey-photos/" + key,
		Position:  position,
	})
}

func recordIDs(records ...*models.SurveyRecord) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

// ============================================================================
// TEST SUITE: BATCH SYNC
// ============================================================================

func TestSyncBatch_CreatesWorkbookAndMarksSynced(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	r1 := syncRecord(records, "PPH-BKK-TS1", 1)
	r2 := syncRecord(records, "PPH-BKK-TS1", 2)
	r3 := syncRecord(records, "PPH-BKK-TS1", 3)
	service := NewSyncService(records, nil, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r1, r2, r3))

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 3, Failed: 0}, result)

	rows := archive.workbook(t, "PPH/PPH-BKK-TS1/20260114.xlsx")
	require.Len(t, rows, 4, "header plus one row per record")
	assert.Equal(t, "PPH-BKK-TS1-S01-F01", rows[1][1])
	assert.Equal(t, "PPH-BKK-TS1-S01-F02", rows[2][1])
	assert.Equal(t, "PPH-BKK-TS1-S01-F03", rows[3][1])

	for _, r := range []*models.SurveyRecord{r1, r2, r3} {
		assert.Equal(t, models.SyncSynced, records.statuses[r.ID])
		assert.False(t, records.synced[r.ID].IsZero())
	}
}

func TestSyncBatch_AppendsToExistingWorkbook(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()

	seed, err := NewObservationWorkbook()
	require.NoError(t, err)
	seed, err = AppendObservations(seed, []ObservationRow{testObservationRow("PPH-BKK-TS1-S01-F01")})
	require.NoError(t, err)
	archive.content["PPH/PPH-BKK-TS1/20260114.xlsx"] = seed

	r := syncRecord(records, "PPH-BKK-TS1", 2)
	service := NewSyncService(records, nil, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, archive.updateCalls, "existing workbook must be updated in place")

	rows := archive.workbook(t, "PPH/PPH-BKK-TS1/20260114.xlsx")
	require.Len(t, rows, 3)
	assert.Equal(t, "PPH-BKK-TS1-S01-F01", rows[1][1], "earlier rows must survive the append")
	assert.Equal(t, "PPH-BKK-TS1-S01-F02", rows[2][1])
}

func TestSyncBatch_DestinationFailureDoesNotSpread(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	a1 := syncRecord(records, "PPH-BKK-TS1", 1)
	a2 := syncRecord(records, "PPH-BKK-TS1", 2)
	b1 := syncRecord(records, "KND-SSK-KND", 1)
	archive.uploadFail["PPH/PPH-BKK-TS1"] = errors.New("invalid media type")
	service := NewSyncService(records, nil, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(a1, a2, b1))

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 1, Failed: 2}, result)

	assert.Equal(t, models.SyncFailed, records.statuses[a1.ID])
	assert.Equal(t, models.SyncFailed, records.statuses[a2.ID])
	assert.Contains(t, records.errs[a1.ID], "failed to write day workbook")
	assert.Equal(t, models.SyncSynced, records.statuses[b1.ID])

	_, hasB := archive.content["KND/KND-SSK-KND/20260114.xlsx"]
	assert.True(t, hasB, "healthy destination must still sync")
}

func TestSyncBatch_TransientWriteFailureIsRetried(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	archive.uploadErrs["PPH/PPH-BKK-TS1"] = []error{
		errors.New("connection refused"),
		errors.New("connection refused"),
	}
	service := NewSyncService(records, nil, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 3, archive.uploadCalls["PPH/PPH-BKK-TS1"], "two transient failures then success")
	assert.Equal(t, models.SyncSynced, records.statuses[r.ID])
}

func TestSyncBatch_MalformedWorkbookFailsWithoutRetry(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	archive.content["PPH/PPH-BKK-TS1/20260114.xlsx"] = []byte("not a workbook")
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	service := NewSyncService(records, nil, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 0, Failed: 1}, result)
	assert.Equal(t, models.SyncFailed, records.statuses[r.ID])
	assert.Zero(t, archive.uploadCalls["PPH/PPH-BKK-TS1"], "nothing should be written over a malformed workbook")
}

func TestSyncBatch_SkipsAlreadySynced(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	records.statuses[r.ID] = models.SyncSynced
	r.SyncStatus = models.SyncSynced
	service := NewSyncService(records, nil, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, result)
	assert.Empty(t, archive.content)
}

func TestSyncBatch_EmptyBatch(t *testing.T) {
	service := NewSyncService(newFakeRecordStore(), nil, newFakeArchive(), nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, result)
}

// ============================================================================
// TEST SUITE: PHOTO MIRRORING
// ============================================================================

func TestSyncBatch_MirrorsPhotosIntoArchive(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	photos := newFakePhotoStorage()
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	attachPhoto(photos, r, 0)
	attachPhoto(photos, r, 1)
	service := NewSyncService(records, photos, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	photoFolder := "PPH/PPH-BKK-TS1-S01-F01/20260114"
	assert.Equal(t, 2, archive.uploadCalls[photoFolder], "each photo mirrored once")

	mirrored := 0
	for fileID := range archive.content {
		if strings.HasPrefix(fileID, photoFolder+"/") {
			mirrored++
		}
	}
	assert.Equal(t, 2, mirrored)
}

func TestSyncBatch_MissingPhotoFailsOnlyThatRecord(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	photos := newFakePhotoStorage()
	broken := syncRecord(records, "PPH-BKK-TS1", 1)
	broken.Photos = append(broken.Photos, models.RecordPhoto{
		ID:        uuid.New(),
		RecordID:  broken.ID,
		ObjectKey: "PPH-BKK-TS1-S01-F01/20260114/ghost.jpg",
		Position:  0,
	})
	healthy := syncRecord(records, "PPH-BKK-TS1", 2)
	service := NewSyncService(records, photos, archive, nil, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(broken, healthy))

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{Succeeded: 1, Failed: 1}, result)
	assert.Equal(t, models.SyncFailed, records.statuses[broken.ID])
	assert.Contains(t, records.errs[broken.ID], "failed to fetch photo")
	assert.Equal(t, models.SyncSynced, records.statuses[healthy.ID])

	rows := archive.workbook(t, "PPH/PPH-BKK-TS1/20260114.xlsx")
	require.Len(t, rows, 2, "only the healthy record lands in the workbook")
	assert.Equal(t, "PPH-BKK-TS1-S01-F02", rows[1][1])
}

func TestSyncBatch_PreparationHonorsConcurrencyCap(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	photos := newFakePhotoStorage()
	photos.fetchDelay = 5 * time.Millisecond

	var batch []*models.SurveyRecord
	for i := 1; i <= 6; i++ {
		r := syncRecord(records, "PPH-BKK-TS1", i)
		attachPhoto(photos, r, 0)
		batch = append(batch, r)
	}

	cfg := testSyncConfig()
	cfg.Concurrency = 2
	service := NewSyncService(records, photos, archive, nil, nil, cfg)

	result, err := service.SyncBatch(context.Background(), recordIDs(batch...))

	require.NoError(t, err)
	assert.Equal(t, 6, result.Succeeded)
	assert.LessOrEqual(t, photos.maxActive, int32(2), "no more than Concurrency records prepared at once")
}

// ============================================================================
// TEST SUITE: DESTINATION LOCKING
// ============================================================================

func TestSyncBatch_TakesAndReleasesDestinationLock(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	locker := &fakeLocker{}
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	service := NewSyncService(records, nil, archive, locker, nil, testSyncConfig())

	_, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	require.Len(t, locker.acquired, 1)
	assert.Equal(t, "synclock:PPH-BKK-TS1:20260114", locker.acquired[0])
	assert.Equal(t, locker.acquired, locker.released)
}

func TestSyncBatch_BusyDestinationLeftForNextRun(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	locker := &fakeLocker{deny: true}
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	service := NewSyncService(records, nil, archive, locker, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, result)
	assert.Equal(t, models.SyncPending, records.statuses[r.ID], "busy destinations are skipped, not failed")
	assert.Empty(t, archive.content)
}

func TestSyncBatch_LockServiceOutageDoesNotBlockSync(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	locker := &fakeLocker{err: errors.New("connection refused")}
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	service := NewSyncService(records, nil, archive, locker, nil, testSyncConfig())

	result, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded, "lock outage degrades to uncoordinated sync")
}

// ============================================================================
// TEST SUITE: RUNS AND EVENTS
// ============================================================================

func TestSyncPending_RespectsBatchSize(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	for i := 1; i <= 3; i++ {
		syncRecord(records, "PPH-BKK-TS1", i)
	}
	cfg := testSyncConfig()
	cfg.BatchSize = 2
	service := NewSyncService(records, nil, archive, nil, nil, cfg)

	result, err := service.SyncPending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded, "one run processes at most BatchSize records")

	pending, err := records.CountByStatus(models.SyncPending)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestSyncPending_NothingEligible(t *testing.T) {
	service := NewSyncService(newFakeRecordStore(), nil, newFakeArchive(), nil, nil, testSyncConfig())

	result, err := service.SyncPending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.SyncResult{}, result)
}

func TestSyncOne_ReportsOutcome(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	good := syncRecord(records, "PPH-BKK-TS1", 1)
	service := NewSyncService(records, nil, archive, nil, nil, testSyncConfig())

	assert.True(t, service.SyncOne(context.Background(), good.ID))

	bad := syncRecord(records, "KND-SSK-KND", 1)
	archive.uploadFail["KND/KND-SSK-KND"] = errors.New("invalid media type")
	assert.False(t, service.SyncOne(context.Background(), bad.ID))
}

func TestSyncBatch_PublishesRunSummary(t *testing.T) {
	records := newFakeRecordStore()
	archive := newFakeArchive()
	events := &fakeEvents{}
	r := syncRecord(records, "PPH-BKK-TS1", 1)
	service := NewSyncService(records, nil, archive, nil, events, testSyncConfig())

	_, err := service.SyncBatch(context.Background(), recordIDs(r))

	require.NoError(t, err)
	require.Len(t, events.published, 1)
	assert.Equal(t, models.SyncResult{Succeeded: 1}, events.published[0])
}

func TestGroupByDestination_SplitsByLocationAndDate(t *testing.T) {
	r1 := &models.SurveyRecord{LocationCode: "PPH-BKK-TS1", VisitDate: time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)}
	r2 := &models.SurveyRecord{LocationCode: "PPH-BKK-TS1", VisitDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)}
	r3 := &models.SurveyRecord{LocationCode: "KND-SSK-KND", VisitDate: time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC)}

	prepared := []preparedRecord{{record: r1}, {record: r2}, {record: r3}}
	groups, order := groupByDestination(prepared)

	require.Len(t, order, 3, "same location on different days is a different workbook")
	assert.Len(t, groups[destinationKey{"PPH-BKK-TS1", "20260114"}], 1)
	assert.Len(t, groups[destinationKey{"PPH-BKK-TS1", "20260115"}], 1)
	assert.Len(t, groups[destinationKey{"KND-SSK-KND", "20260114"}], 1)
}

func TestSurveyorCodeFromFieldID(t *testing.T) {
	assert.Equal(t, "S01", surveyorCodeFromFieldID("PPH-BKK-TS1-S01-F03"))
	assert.Equal(t, "S12", surveyorCodeFromFieldID("KND-SSK-KND-S12-F01"))
	assert.Empty(t, surveyorCodeFromFieldID("garbage"))
}
