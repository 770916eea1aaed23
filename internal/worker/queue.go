package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
)

// Syncer is the engine surface the background workers drive.
type Syncer interface {
	SyncOne(ctx context.Context, id uuid.UUID) bool
	SyncPending(ctx context.Context) (models.SyncResult, error)
}

// SyncQueue pushes freshly submitted records to the sync engine without
// blocking intake. The buffer absorbs bursts; when it is full the record
// is synced inline in the caller's goroutine instead of being dropped.
type SyncQueue struct {
	workers int
	jobChan chan uuid.UUID
	syncer  Syncer
	active  atomic.Int32
}

func NewSyncQueue(syncer Syncer, workers, queueSize int) *SyncQueue {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &SyncQueue{
		workers: workers,
		jobChan: make(chan uuid.UUID, queueSize),
		syncer:  syncer,
	}
}

// Enqueue offers a record to the workers. It never blocks on the channel;
// a full buffer falls back to syncing the record inline before returning.
func (q *SyncQueue) Enqueue(ctx context.Context, id uuid.UUID) {
	select {
	case q.jobChan <- id:
	default:
		log.Printf("[SyncQueue] Queue full. Syncing record %s inline.\n", id)
		q.safeSync(ctx, id, "Inline")
	}
}

func (q *SyncQueue) Start(ctx context.Context, managerWg *sync.WaitGroup) {
	defer managerWg.Done()

	var workerWg sync.WaitGroup
	for i := range q.workers {
		workerWg.Add(1)
		go q.worker(ctx, &workerWg, i+1)
	}

	<-ctx.Done()

	log.Println("[SyncQueue] Shutdown signaled. Closing job channel.")
	close(q.jobChan)
	workerWg.Wait()
	log.Println("[SyncQueue] All workers stopped.")
}

func (q *SyncQueue) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()
	label := fmt.Sprintf("Worker %d", id)
	log.Printf("[SyncQueue-%s] Started and waiting for records.\n", label)

	for {
		select {
		case recordID, ok := <-q.jobChan:
			if !ok {
				log.Printf("[SyncQueue-%s] Job channel closed. Exiting.\n", label)
				return
			}
			q.safeSync(ctx, recordID, label)

		case <-ctx.Done():
			log.Printf("[SyncQueue-%s] Context canceled. Exiting.\n", label)
			return
		}
	}
}

func (q *SyncQueue) safeSync(ctx context.Context, recordID uuid.UUID, label string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SyncQueue-%s] FATAL: Panic recovered syncing %s: %v\n", label, recordID, r)
		}
	}()

	q.active.Add(1)
	defer q.active.Add(-1)

	if !q.syncer.SyncOne(ctx, recordID) {
		log.Printf("[SyncQueue-%s] Record %s did not sync; the scheduled run will retry it.\n", label, recordID)
	}
}

// Stats reports queue depth and in-flight work.
func (q *SyncQueue) Stats() models.SyncStats {
	return models.SyncStats{
		Queued: len(q.jobChan),
		Active: int(q.active.Load()),
	}
}
