package worker

import (
	"context"
	"log"
	"sync/atomic"
	"time"
)

// SyncScheduler sweeps pending and failed records on a fixed interval, and
// on demand through TriggerNow. Runs never overlap: a tick or trigger that
// lands while a run is active is skipped, the next one picks the records up.
type SyncScheduler struct {
	syncer   Syncer
	interval time.Duration
	trigger  chan struct{}
	running  atomic.Bool
}

func NewSyncScheduler(syncer Syncer, interval time.Duration) *SyncScheduler {
	return &SyncScheduler{
		syncer:   syncer,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate run. Returns false when a trigger is
// already queued; the pending one covers this request too.
func (s *SyncScheduler) TriggerNow() bool {
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *SyncScheduler) Run(ctx context.Context) {
	log.Printf("[SyncScheduler] Running every %s.\n", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			go s.runOnce(ctx, "interval")

		case <-s.trigger:
			go s.runOnce(ctx, "manual")

		case <-ctx.Done():
			log.Println("[SyncScheduler] Shutting down.")
			return
		}
	}
}

func (s *SyncScheduler) runOnce(ctx context.Context, reason string) {
	if !s.running.CompareAndSwap(false, true) {
		log.Printf("[SyncScheduler] Previous run still active, skipping %s run.\n", reason)
		return
	}
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SyncScheduler] FATAL: Panic recovered in %s run: %v\n", reason, r)
		}
	}()

	result, err := s.syncer.SyncPending(ctx)
	if err != nil {
		log.Printf("[SyncScheduler] %s run failed: %v\n", reason, err)
		return
	}
	if result.Succeeded > 0 || result.Failed > 0 {
		log.Printf("[SyncScheduler] %s run finished: %d synced, %d failed.\n", reason, result.Succeeded, result.Failed)
	}
}
