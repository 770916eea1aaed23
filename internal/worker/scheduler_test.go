package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// TEST SUITE: SYNC SCHEDULER
// ============================================================================

func TestSyncScheduler_RunsOnInterval(t *testing.T) {
	syncer := &fakeSyncer{}
	scheduler := NewSyncScheduler(syncer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&syncer.pendingCalls) >= 2
	}, time.Second, 5*time.Millisecond, "ticker should keep firing runs")
}

func TestSyncScheduler_TriggerNowRunsImmediately(t *testing.T) {
	syncer := &fakeSyncer{}
	scheduler := NewSyncScheduler(syncer, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	assert.True(t, scheduler.TriggerNow())

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&syncer.pendingCalls) == 1
	}, time.Second, 5*time.Millisecond, "a manual trigger should not wait for the ticker")
}

func TestSyncScheduler_PendingTriggerCoalesces(t *testing.T) {
	scheduler := NewSyncScheduler(&fakeSyncer{}, time.Hour)

	assert.True(t, scheduler.TriggerNow())
	assert.False(t, scheduler.TriggerNow(), "a queued trigger already covers this request")
}

func TestSyncScheduler_OverlappingRunsAreSkipped(t *testing.T) {
	syncer := &fakeSyncer{delay: 80 * time.Millisecond}
	scheduler := NewSyncScheduler(syncer, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go scheduler.Run(ctx)

	scheduler.TriggerNow()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&syncer.pendingCalls) == 1
	}, time.Second, time.Millisecond)

	// Fires while the first run is still sleeping; the guard drops it.
	scheduler.TriggerNow()
	time.Sleep(150 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&syncer.pendingCalls), "run fired during an active run must be skipped")
}
