package handlers

import (
	"log/slog"
	"net/http"

	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/models"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/services"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/utils"
	"github.com/konektagri-development/paddy-ingestion-telegram-mini-app/internal/worker"

	"github.com/gofiber/fiber/v3"
)

type SyncHandler struct {
	scheduler *worker.SyncScheduler
	queue     *worker.SyncQueue
	records   services.RecordStore
}

func NewSyncHandler(scheduler *worker.SyncScheduler, queue *worker.SyncQueue, records services.RecordStore) *SyncHandler {
	return &SyncHandler{
		scheduler: scheduler,
		queue:     queue,
		records:   records,
	}
}

func (h *SyncHandler) Register(app *fiber.App) {
	syncGr := app.Group("paddy/api/v1/sync")

	syncGr.Post("/trigger", h.TriggerSync)
	syncGr.Get("/stats", h.GetStats)
}

// TriggerSync asks the scheduler to run a sweep now instead of waiting for the
// next tick. A second trigger while one is already pending is a no-op.
func (h *SyncHandler) TriggerSync(c fiber.Ctx) error {
	queued := h.scheduler.TriggerNow()

	slog.Info("Manual sync trigger", "queued", queued)
	return c.Status(http.StatusAccepted).JSON(utils.CreateSuccessResponse(map[string]any{
		"queued": queued,
	}))
}

// GetStats reports queue depth plus record counts per sync status.
func (h *SyncHandler) GetStats(c fiber.Ctx) error {
	stats := h.queue.Stats()

	counts := make(map[string]int, 3)
	for _, status := range []models.SyncStatus{models.SyncPending, models.SyncSynced, models.SyncFailed} {
		n, err := h.records.CountByStatus(status)
		if err != nil {
			slog.Error("Failed to count records by status", "status", status, "error", err)
			return c.Status(http.StatusInternalServerError).JSON(
				utils.CreateErrorResponse("STATS_FAILED", "Failed to read record counts"))
		}
		counts[string(status)] = n
	}

	return c.Status(http.StatusOK).JSON(utils.CreateSuccessResponse(map[string]any{
		"queued":  stats.Queued,
		"active":  stats.Active,
		"records": counts,
	}))
}
