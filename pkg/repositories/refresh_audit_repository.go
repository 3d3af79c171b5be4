package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/songo-inc/songo-engine/pkg/database"
	"github.com/songo-inc/songo-engine/pkg/models"
)

// RefreshAuditRepository defines data access for the refresh audit trail.
// Entries are append-only; the only deletion is the retention sweep.
type RefreshAuditRepository interface {
	// Create appends one audit entry.
	Create(ctx context.Context, entry *models.RefreshAuditEntry) error

	// ListByDataSource retrieves the most recent entries for a source,
	// newest first. A limit of 0 defaults to 50.
	ListByDataSource(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error)

	// DeleteOlderThan removes entries that started before the cutoff and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type refreshAuditRepository struct {
	db *database.DB
}

// NewRefreshAuditRepository creates a new refresh audit repository.
func NewRefreshAuditRepository(db *database.DB) RefreshAuditRepository {
	return &refreshAuditRepository{db: db}
}

func (r *refreshAuditRepository) Create(ctx context.Context, entry *models.RefreshAuditEntry) error {
	query := `
		INSERT INTO refresh_audit_entries (data_source_id, start_time, end_time, outcome, records_fetched, records_inserted, records_updated, records_removed, error_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.Pool.QueryRow(ctx, query,
		entry.DataSourceID,
		entry.StartTime,
		entry.EndTime,
		entry.Outcome,
		entry.RecordsFetched,
		entry.RecordsInserted,
		entry.RecordsUpdated,
		entry.RecordsRemoved,
		entry.ErrorDetail,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to create audit entry: %w", err)
	}

	return nil
}

func (r *refreshAuditRepository) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, data_source_id, start_time, end_time, outcome, records_fetched, records_inserted, records_updated, records_removed, error_detail
		FROM refresh_audit_entries
		WHERE data_source_id = $1
		ORDER BY start_time DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, dataSourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.RefreshAuditEntry
	for rows.Next() {
		var e models.RefreshAuditEntry
		err := rows.Scan(
			&e.ID,
			&e.DataSourceID,
			&e.StartTime,
			&e.EndTime,
			&e.Outcome,
			&e.RecordsFetched,
			&e.RecordsInserted,
			&e.RecordsUpdated,
			&e.RecordsRemoved,
			&e.ErrorDetail,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}

	return entries, nil
}

func (r *refreshAuditRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx,
		`DELETE FROM refresh_audit_entries WHERE start_time < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old audit entries: %w", err)
	}
	return result.RowsAffected(), nil
}

var _ RefreshAuditRepository = (*refreshAuditRepository)(nil)
