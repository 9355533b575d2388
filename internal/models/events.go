package models

import "time"

// Event types
const (
	EventTypeSyncRequested  = "sync.requested"
	EventTypeSyncCompleted  = "sync.completed"
	EventTypeDedupCompleted = "dedup.completed"
)

// BaseEvent contains fields common to all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRequestedEvent asks the worker to run a catalog sync for a config.
// Admin tooling queues these for long-running full-catalog syncs instead of
// holding an HTTP request open.
type SyncRequestedEvent struct {
	BaseEvent
	SyncConfigID int64 `json:"sync_config_id"`
	PerPage      int   `json:"per_page,omitempty"`
	StartPage    int   `json:"start_page,omitempty"`
	SyncAllPages bool  `json:"sync_all_pages"`
}

// SyncCompletedEvent is published after a sync run finishes, whatever the
// outcome
type SyncCompletedEvent struct {
	BaseEvent
	SyncConfigID   int64  `json:"sync_config_id"`
	BusinessID     int64  `json:"business_id"`
	RunID          string `json:"run_id"`
	Status         string `json:"status"`
	ProcessedCount int    `json:"processed_count"`
	SkippedCount   int    `json:"skipped_count"`
	ErrorCount     int    `json:"error_count"`
}

// DedupCompletedEvent is published after a category deduplication pass
type DedupCompletedEvent struct {
	BaseEvent
	BusinessID        int64 `json:"business_id"`
	DuplicatesFound   int   `json:"duplicates_found"`
	DuplicatesRemoved int   `json:"duplicates_removed"`
	ProductsMoved     int   `json:"products_moved"`
	ChildrenMoved     int   `json:"children_moved"`
}
