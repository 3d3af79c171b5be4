package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncedRecord is one externally-sourced row cached locally.
// (DataSourceID, ExternalID) is unique: the external system's stable
// identifier is the natural key used to match records across refreshes.
type SyncedRecord struct {
	ID           uuid.UUID      `json:"id"`
	DataSourceID uuid.UUID      `json:"data_source_id"`
	ExternalID   string         `json:"external_id"`
	Fields       map[string]any `json:"fields"`
	SyncedAt     time.Time      `json:"synced_at"`
}

// ReconcileCounts summarizes the outcome of one full-snapshot reconciliation.
type ReconcileCounts struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
}
