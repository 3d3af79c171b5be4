package models

import (
	"time"

	"github.com/google/uuid"
)

// AuditOutcome classifies one refresh run attempt.
type AuditOutcome string

const (
	AuditOutcomeSuccess AuditOutcome = "success"
	AuditOutcomeFailure AuditOutcome = "failure"
	// AuditOutcomeSkippedLockHeld records an attempt that found another run
	// already holding the per-source lock. Expected under concurrent
	// triggers, not an error.
	AuditOutcomeSkippedLockHeld AuditOutcome = "skipped-lock-held"
)

// RefreshAuditEntry is one append-only log row, created exactly once per
// executor run attempt and immutable once written.
type RefreshAuditEntry struct {
	ID           uuid.UUID    `json:"id"`
	DataSourceID uuid.UUID    `json:"data_source_id"`
	StartTime    time.Time    `json:"start_time"`
	EndTime      *time.Time   `json:"end_time,omitempty"`
	Outcome      AuditOutcome `json:"outcome"`

	RecordsFetched  int `json:"records_fetched"`
	RecordsInserted int `json:"records_inserted"`
	RecordsUpdated  int `json:"records_updated"`
	RecordsRemoved  int `json:"records_removed"`

	ErrorDetail string `json:"error_detail,omitempty"`
}
