package event

import "time"

// SyncCompletedEvent is consumed by the reporting dashboard to refresh its
// ingestion counters without polling the database.
type SyncCompletedEvent struct {
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	OccurredAt time.Time `json:"occurred_at"`
}

const SyncEventsQueue string = "survey_sync_events"
