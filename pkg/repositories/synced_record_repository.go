package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/songo-inc/songo-engine/pkg/database"
	"github.com/songo-inc/songo-engine/pkg/models"
)

// SyncedRecordRepository defines data access for the materialized snapshot of
// upstream records.
type SyncedRecordRepository interface {
	// ReconcileSnapshot replaces the stored snapshot for a data source with
	// the given full snapshot in one transaction: records are upserted by
	// external id and rows absent from the snapshot are deleted. An empty
	// snapshot clears the data source.
	ReconcileSnapshot(ctx context.Context, dataSourceID uuid.UUID, records []models.SyncedRecord) (models.ReconcileCounts, error)

	// ListByDataSource retrieves the stored snapshot ordered by external id.
	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.SyncedRecord, error)

	// CountByDataSource returns the snapshot size.
	CountByDataSource(ctx context.Context, dataSourceID uuid.UUID) (int, error)
}

type syncedRecordRepository struct {
	db *database.DB
}

// NewSyncedRecordRepository creates a new synced record repository.
func NewSyncedRecordRepository(db *database.DB) SyncedRecordRepository {
	return &syncedRecordRepository{db: db}
}

func (r *syncedRecordRepository) ReconcileSnapshot(ctx context.Context, dataSourceID uuid.UUID, records []models.SyncedRecord) (models.ReconcileCounts, error) {
	counts := models.ReconcileCounts{Fetched: len(records)}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	now := time.Now()
	externalIDs := make([]string, 0, len(records))

	// xmax = 0 only holds for freshly inserted rows, which distinguishes
	// inserts from conflict updates.
	upsert := `
		INSERT INTO synced_records (data_source_id, external_id, fields, synced_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (data_source_id, external_id)
		DO UPDATE SET fields = EXCLUDED.fields, synced_at = EXCLUDED.synced_at
		RETURNING (xmax = 0)`

	for _, rec := range records {
		externalIDs = append(externalIDs, rec.ExternalID)

		var inserted bool
		if err := tx.QueryRow(ctx, upsert, dataSourceID, rec.ExternalID, rec.Fields, now).Scan(&inserted); err != nil {
			return counts, fmt.Errorf("failed to upsert record %q: %w", rec.ExternalID, err)
		}
		if inserted {
			counts.Inserted++
		} else {
			counts.Updated++
		}
	}

	result, err := tx.Exec(ctx,
		`DELETE FROM synced_records WHERE data_source_id = $1 AND NOT (external_id = ANY($2))`,
		dataSourceID, externalIDs)
	if err != nil {
		return counts, fmt.Errorf("failed to delete absent records: %w", err)
	}
	counts.Removed = int(result.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return counts, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return counts, nil
}

func (r *syncedRecordRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.SyncedRecord, error) {
	query := `
		SELECT id, data_source_id, external_id, fields, synced_at
		FROM synced_records
		WHERE data_source_id = $1
		ORDER BY external_id`

	rows, err := r.db.Pool.Query(ctx, query, dataSourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list synced records: %w", err)
	}
	defer rows.Close()

	var records []*models.SyncedRecord
	for rows.Next() {
		var rec models.SyncedRecord
		if err := rows.Scan(&rec.ID, &rec.DataSourceID, &rec.ExternalID, &rec.Fields, &rec.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan synced record: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating synced records: %w", err)
	}

	return records, nil
}

func (r *syncedRecordRepository) CountByDataSource(ctx context.Context, dataSourceID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM synced_records WHERE data_source_id = $1`, dataSourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count synced records: %w", err)
	}
	return count, nil
}

var _ SyncedRecordRepository = (*syncedRecordRepository)(nil)
