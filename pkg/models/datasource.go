package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshStatus tracks the state of the most recent refresh for a data source.
type RefreshStatus string

const (
	RefreshStatusIdle      RefreshStatus = "idle"
	RefreshStatusRunning   RefreshStatus = "running"
	RefreshStatusSucceeded RefreshStatus = "succeeded"
	RefreshStatusFailed    RefreshStatus = "failed"
)

// ValidRefreshStatuses contains all valid refresh status values.
var ValidRefreshStatuses = []RefreshStatus{
	RefreshStatusIdle,
	RefreshStatusRunning,
	RefreshStatusSucceeded,
	RefreshStatusFailed,
}

// IsValidRefreshStatus checks if the given status is valid.
func IsValidRefreshStatus(s RefreshStatus) bool {
	for _, v := range ValidRefreshStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// FilterPredicate is a structured filter on fetched records. Filters are
// field/operator/value triples, never raw query text.
type FilterPredicate struct {
	Field    string `json:"field"`
	Operator string `json:"operator"` // "eq", "ne", "gt", "lt", "contains"
	Value    any    `json:"value"`
}

// DataSource is a named, filtered view of one record type under a source
// connection. It is the unit of refresh scheduling. Many data sources may
// reference one connection; the data source does not own the connection.
type DataSource struct {
	ID           uuid.UUID         `json:"id"`
	ConnectionID uuid.UUID         `json:"connection_id"`
	Name         string            `json:"name"`
	RecordType   string            `json:"record_type"`
	Fields       []string          `json:"fields"`
	Filters      []FilterPredicate `json:"filters,omitempty"`
	AutoRefresh  bool              `json:"auto_refresh"`

	// LastRefresh is the start time of the last successful run; nil until the
	// first success. A failed run never moves it.
	LastRefresh   *time.Time    `json:"last_refresh,omitempty"`
	RefreshStatus RefreshStatus `json:"refresh_status"`
	LastError     string        `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DueForRefresh reports whether this data source is due at the given instant.
// Sources that have never refreshed are always due.
func (d *DataSource) DueForRefresh(now time.Time, interval time.Duration) bool {
	if !d.AutoRefresh {
		return false
	}
	if d.LastRefresh == nil {
		return true
	}
	return now.Sub(*d.LastRefresh) >= interval
}
