package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/config"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/retry"
)

// SpreadsheetArchive is the remote archive surface backing the sync engine.
type SpreadsheetArchive interface {
	EnsureFolderPath(ctx context.Context, segments ...string) (string, error)
	FindFile(ctx context.Context, parentID, name string) (string, error)
	Download(ctx context.Context, fileID string) ([]byte, error)
	UploadNew(ctx context.Context, parentID, name string, data []byte, contentType string) (string, error)
	UpdateContent(ctx context.Context, fileID string, data []byte, contentType string) error
}

// DestinationLocker serializes workbook writes across processes.
type DestinationLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// SyncEventPublisher announces completed sync runs.
type SyncEventPublisher interface {
	PublishSyncCompleted(ctx context.Context, result models.SyncResult) error
}

// errDestinationBusy marks a destination another process is writing right
// now. Its records are left untouched for the next run.
var errDestinationBusy = errors.New("destination is being synced by another process")

// SyncService pushes pending records into the spreadsheet archive. A batch
// runs in two phases: per-record preparation (photo mirroring and row
// flattening) under a concurrency cap, then one sequential append per
// destination workbook so concurrent writers can never clobber each other.
type SyncService struct {
	records RecordStore
	photos  PhotoStorage
	archive SpreadsheetArchive
	locker  DestinationLocker
	events  SyncEventPublisher
	cfg     config.SyncConfig

	// groupMu serializes phase two within this process; the destination
	// lock covers other processes.
	groupMu sync.Mutex
}

// NewSyncService wires the engine. photos, locker and events may be nil;
// archive must not be, the engine is pointless without it.
func NewSyncService(
	records RecordStore,
	photos PhotoStorage,
	archive SpreadsheetArchive,
	locker DestinationLocker,
	events SyncEventPublisher,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		records: records,
		photos:  photos,
		archive: archive,
		locker:  locker,
		events:  events,
		cfg:     cfg,
	}
}

type preparedRecord struct {
	record *models.SurveyRecord
	row    ObservationRow
}

type destinationKey struct {
	locationCode string
	dateFolder   string
}

// SyncPending loads the oldest eligible records and syncs them as one batch.
func (s *SyncService) SyncPending(ctx context.Context) (models.SyncResult, error) {
	ids, err := s.records.ListEligibleIDs(ctx, s.cfg.BatchSize)
	if err != nil {
		return models.SyncResult{}, fmt.Errorf("failed to list eligible records: %w", err)
	}
	if len(ids) == 0 {
		return models.SyncResult{}, nil
	}

	slog.Info("sync run starting", "records", len(ids))
	return s.SyncBatch(ctx, ids)
}

// SyncOne syncs a single record, reporting whether it landed.
func (s *SyncService) SyncOne(ctx context.Context, id uuid.UUID) bool {
	result, err := s.SyncBatch(ctx, []uuid.UUID{id})
	if err != nil {
		slog.Error("failed to sync record", "record_id", id, "error", err)
		return false
	}
	return result.Succeeded == 1
}

// SyncBatch runs both phases over the given records. Already-synced records
// are skipped. A destination failure fails every record in that destination
// and leaves the others alone.
func (s *SyncService) SyncBatch(ctx context.Context, ids []uuid.UUID) (models.SyncResult, error) {
	var result models.SyncResult
	if len(ids) == 0 {
		return result, nil
	}

	loaded, err := s.records.GetByIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to load records for sync: %w", err)
	}

	batch := make([]*models.SurveyRecord, 0, len(loaded))
	for i := range loaded {
		if loaded[i].SyncStatus == models.SyncSynced {
			continue
		}
		batch = append(batch, &loaded[i])
	}
	if len(batch) == 0 {
		return result, nil
	}

	prepared, failed := s.prepareAll(ctx, batch)
	result.Failed += failed

	groups, order := groupByDestination(prepared)
	for _, key := range order {
		group := groups[key]

		err := s.syncGroup(ctx, key, group)
		if errors.Is(err, errDestinationBusy) {
			slog.Info("destination busy, leaving records for next run",
				"location_code", key.locationCode, "date", key.dateFolder, "records", len(group))
			continue
		}
		if err != nil {
			slog.Error("destination sync failed",
				"location_code", key.locationCode, "date", key.dateFolder, "records", len(group), "error", err)
			for _, p := range group {
				s.markFailed(p.record.ID, err)
				result.Failed++
			}
			continue
		}

		now := time.Now()
		for _, p := range group {
			if err := s.records.MarkSynced(p.record.ID, now); err != nil {
				slog.Error("failed to mark record synced", "record_id", p.record.ID, "error", err)
			}
			result.Succeeded++
		}
	}

	if s.events != nil && (result.Succeeded > 0 || result.Failed > 0) {
		if err := s.events.PublishSyncCompleted(ctx, result); err != nil {
			slog.Warn("failed to publish sync event", "error", err)
		}
	}

	return result, nil
}

// prepareAll runs phase one: photo mirroring and row flattening per record,
// at most cfg.Concurrency records in flight. Records that fail here are
// marked failed immediately and excluded from phase two.
func (s *SyncService) prepareAll(ctx context.Context, batch []*models.SurveyRecord) ([]preparedRecord, int) {
	concurrency := s.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	errs := make([]error, len(batch))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i := range batch {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			errs[i] = s.mirrorPhotos(ctx, batch[i])
		}(i)
	}
	wg.Wait()

	prepared := make([]preparedRecord, 0, len(batch))
	failed := 0
	for i, record := range batch {
		if errs[i] != nil {
			slog.Error("record preparation failed", "record_id", record.ID, "error", errs[i])
			s.markFailed(record.ID, errs[i])
			failed++
			continue
		}
		prepared = append(prepared, preparedRecord{
			record: record,
			row:    NewObservationRow(record, surveyorCodeFromFieldID(record.FieldID)),
		})
	}

	return prepared, failed
}

// mirrorPhotos copies a record's photos from object storage into the archive
// under <province>/<field>/<date>. Upload names carry a fresh timestamp per
// attempt, so a retry after a half-finished upload never collides with it.
func (s *SyncService) mirrorPhotos(ctx context.Context, record *models.SurveyRecord) error {
	if len(record.Photos) == 0 || s.photos == nil {
		return nil
	}

	folderID, err := retry.Do(ctx, func() (string, error) {
		return s.archive.EnsureFolderPath(ctx, provinceOf(record.LocationCode), record.FieldID, record.DateFolder())
	}, s.retryCfg())
	if err != nil {
		return fmt.Errorf("failed to prepare photo folder: %w", err)
	}

	for _, photo := range record.Photos {
		data, err := retry.Do(ctx, func() ([]byte, error) {
			return s.photos.GetBytes(ctx, photo.ObjectKey)
		}, s.retryCfg())
		if err != nil {
			return fmt.Errorf("failed to fetch photo %s: %w", photo.ObjectKey, err)
		}

		ext := path.Ext(photo.ObjectKey)
		_, err = retry.Do(ctx, func() (string, error) {
			name := fmt.Sprintf("%s_%02d_%d%s", record.ID, photo.Position+1, time.Now().UnixMilli(), ext)
			return s.archive.UploadNew(ctx, folderID, name, data, photoContentType(ext))
		}, s.retryCfg())
		if err != nil {
			return fmt.Errorf("failed to mirror photo %s: %w", photo.ObjectKey, err)
		}
	}

	return nil
}

// syncGroup runs phase two for one destination: fetch or create the day
// workbook, append the rows, write it back.
func (s *SyncService) syncGroup(ctx context.Context, key destinationKey, group []preparedRecord) error {
	s.groupMu.Lock()
	defer s.groupMu.Unlock()

	if s.locker != nil {
		lockKey := fmt.Sprintf("synclock:%s:%s", key.locationCode, key.dateFolder)
		acquired, err := s.locker.AcquireLock(ctx, lockKey, s.cfg.LockTTL)
		if err != nil {
			slog.Warn("lock service unavailable, proceeding uncoordinated", "key", lockKey, "error", err)
		} else if !acquired {
			return errDestinationBusy
		} else {
			defer func() {
				if err := s.locker.ReleaseLock(ctx, lockKey); err != nil {
					slog.Warn("failed to release sync lock", "key", lockKey, "error", err)
				}
			}()
		}
	}

	folderID, err := retry.Do(ctx, func() (string, error) {
		return s.archive.EnsureFolderPath(ctx, provinceOf(key.locationCode), key.locationCode)
	}, s.retryCfg())
	if err != nil {
		return fmt.Errorf("failed to resolve archive folder: %w", err)
	}

	fileName := key.dateFolder + ".xlsx"
	fileID, err := retry.Do(ctx, func() (string, error) {
		return s.archive.FindFile(ctx, folderID, fileName)
	}, s.retryCfg())
	if err != nil {
		return fmt.Errorf("failed to look up day workbook: %w", err)
	}

	var book []byte
	if fileID != "" {
		book, err = retry.Do(ctx, func() ([]byte, error) {
			return s.archive.Download(ctx, fileID)
		}, s.retryCfg())
		if err != nil {
			return fmt.Errorf("failed to download day workbook: %w", err)
		}
	} else {
		book, err = NewObservationWorkbook()
		if err != nil {
			return err
		}
	}

	rows := make([]ObservationRow, 0, len(group))
	for _, p := range group {
		rows = append(rows, p.row)
	}

	updated, err := AppendObservations(book, rows)
	if err != nil {
		return err
	}

	if fileID != "" {
		_, err = retry.Do(ctx, func() (struct{}, error) {
			return struct{}{}, s.archive.UpdateContent(ctx, fileID, updated, SpreadsheetContentType)
		}, s.retryCfg())
	} else {
		_, err = retry.Do(ctx, func() (string, error) {
			return s.archive.UploadNew(ctx, folderID, fileName, updated, SpreadsheetContentType)
		}, s.retryCfg())
	}
	if err != nil {
		return fmt.Errorf("failed to write day workbook: %w", err)
	}

	slog.Info("synced destination",
		"location_code", key.locationCode,
		"date", key.dateFolder,
		"records", len(group),
		"new_workbook", fileID == "",
	)
	return nil
}

func (s *SyncService) markFailed(id uuid.UUID, cause error) {
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	if err := s.records.MarkFailed(id, msg); err != nil {
		slog.Error("failed to mark record failed", "record_id", id, "error", err)
	}
}

func (s *SyncService) retryCfg() retry.Config {
	return retry.Config{
		MaxRetries: s.cfg.MaxRetries,
		BaseDelay:  s.cfg.BaseDelay,
		MaxDelay:   s.cfg.MaxDelay,
	}
}

// groupByDestination buckets prepared records by workbook, keeping first
// appearance order so output stays deterministic.
func groupByDestination(prepared []preparedRecord) (map[destinationKey][]preparedRecord, []destinationKey) {
	groups := make(map[destinationKey][]preparedRecord)
	var order []destinationKey

	for _, p := range prepared {
		key := destinationKey{
			locationCode: p.record.LocationCode,
			dateFolder:   p.record.DateFolder(),
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	return groups, order
}

// surveyorCodeFromFieldID pulls the S-number segment out of a composite
// field id like "PPH-BKK-TS1-S01-F03".
func surveyorCodeFromFieldID(fieldID string) string {
	segments := strings.Split(fieldID, "-")
	if len(segments) < 2 {
		return ""
	}
	return segments[len(segments)-2]
}

func provinceOf(locationCode string) string {
	if idx := strings.Index(locationCode, "-"); idx != -1 {
		return locationCode[:idx]
	}
	return locationCode
}
