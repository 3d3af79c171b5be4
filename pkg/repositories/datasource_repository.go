package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/database"
	"github.com/songo-inc/songo-engine/pkg/models"
)

// DataSourceRepository defines data access for data source definitions and
// their refresh lifecycle.
type DataSourceRepository interface {
	// Create inserts a new data source. Returns apperrors.ErrConflict when
	// the (connection, name) pair is taken.
	Create(ctx context.Context, ds *models.DataSource) error

	// GetByID retrieves a data source.
	GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error)

	// List retrieves all data sources, newest first.
	List(ctx context.Context) ([]*models.DataSource, error)

	// ListByConnection retrieves all data sources for one connection.
	ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error)

	// CountByConnection returns how many data sources reference a connection.
	CountByConnection(ctx context.Context, connectionID uuid.UUID) (int, error)

	// Update modifies the data source definition.
	Update(ctx context.Context, ds *models.DataSource) error

	// Delete removes a data source and, via cascade, its synced records.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListDueForRefresh returns auto-refresh data sources on active
	// connections whose interval has elapsed at the given instant, ordered
	// oldest refresh first with never-refreshed sources leading.
	ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.DataSource, error)

	// MarkRunning transitions a source to running. Returns false if it was
	// already running.
	MarkRunning(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkSucceeded records a successful run. lastRefresh is the run's start
	// time, so the next due check measures from when fetching began.
	MarkSucceeded(ctx context.Context, id uuid.UUID, lastRefresh time.Time) error

	// MarkFailed records a failed run. last_refresh is left untouched.
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error

	// ResetStaleRunning fails every source still marked running and returns
	// their ids. Called once at startup to recover from a crash mid-run.
	ResetStaleRunning(ctx context.Context) ([]uuid.UUID, error)
}

type dataSourceRepository struct {
	db *database.DB
}

// NewDataSourceRepository creates a new data source repository.
func NewDataSourceRepository(db *database.DB) DataSourceRepository {
	return &dataSourceRepository{db: db}
}

const dataSourceColumns = `id, connection_id, name, record_type, fields, filters, auto_refresh, last_refresh, refresh_status, last_error, created_at, updated_at`

func scanDataSource(row pgx.Row) (*models.DataSource, error) {
	var ds models.DataSource
	err := row.Scan(
		&ds.ID,
		&ds.ConnectionID,
		&ds.Name,
		&ds.RecordType,
		&ds.Fields,
		&ds.Filters,
		&ds.AutoRefresh,
		&ds.LastRefresh,
		&ds.RefreshStatus,
		&ds.LastError,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *dataSourceRepository) Create(ctx context.Context, ds *models.DataSource) error {
	now := time.Now()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	if ds.RefreshStatus == "" {
		ds.RefreshStatus = models.RefreshStatusIdle
	}

	query := `
		INSERT INTO data_sources (connection_id, name, record_type, fields, filters, auto_refresh, refresh_status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	err := r.db.Pool.QueryRow(ctx, query,
		ds.ConnectionID,
		ds.Name,
		ds.RecordType,
		ds.Fields,
		ds.Filters,
		ds.AutoRefresh,
		ds.RefreshStatus,
		ds.LastError,
		ds.CreatedAt,
		ds.UpdatedAt,
	).Scan(&ds.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create data source: %w", err)
	}

	return nil
}

func (r *dataSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE id = $1`

	ds, err := scanDataSource(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	return ds, nil
}

func (r *dataSourceRepository) List(ctx context.Context) ([]*models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources ORDER BY created_at DESC`
	return r.queryMany(ctx, query)
}

func (r *dataSourceRepository) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE connection_id = $1 ORDER BY created_at DESC`
	return r.queryMany(ctx, query, connectionID)
}

func (r *dataSourceRepository) queryMany(ctx context.Context, query string, args ...any) ([]*models.DataSource, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data source: %w", err)
		}
		sources = append(sources, ds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data sources: %w", err)
	}

	return sources, nil
}

func (r *dataSourceRepository) CountByConnection(ctx context.Context, connectionID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM data_sources WHERE connection_id = $1`, connectionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count data sources: %w", err)
	}
	return count, nil
}

func (r *dataSourceRepository) Update(ctx context.Context, ds *models.DataSource) error {
	query := `
		UPDATE data_sources
		SET name = $2, record_type = $3, fields = $4, filters = $5, auto_refresh = $6, updated_at = $7
		WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query,
		ds.ID,
		ds.Name,
		ds.RecordType,
		ds.Fields,
		ds.Filters,
		ds.AutoRefresh,
		time.Now(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update data source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.DataSource, error) {
	// Due means never refreshed, or at least one connection interval has
	// elapsed since the last successful run started.
	query := `
		SELECT ds.id, ds.connection_id, ds.name, ds.record_type, ds.fields, ds.filters, ds.auto_refresh, ds.last_refresh, ds.refresh_status, ds.last_error, ds.created_at, ds.updated_at
		FROM data_sources ds
		JOIN source_connections c ON c.id = ds.connection_id
		WHERE ds.auto_refresh
		  AND c.auto_refresh
		  AND c.active
		  AND (ds.last_refresh IS NULL
		       OR ds.last_refresh <= $1::timestamptz - (c.refresh_interval_seconds * interval '1 second'))
		ORDER BY ds.last_refresh ASC NULLS FIRST`

	return r.queryMany(ctx, query, now)
}

func (r *dataSourceRepository) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE data_sources
		SET refresh_status = 'running', updated_at = $2
		WHERE id = $1 AND refresh_status <> 'running'`

	result, err := r.db.Pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to mark data source running: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *dataSourceRepository) MarkSucceeded(ctx context.Context, id uuid.UUID, lastRefresh time.Time) error {
	query := `
		UPDATE data_sources
		SET refresh_status = 'succeeded', last_refresh = $2, last_error = '', updated_at = $3
		WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id, lastRefresh, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark data source succeeded: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE data_sources
		SET refresh_status = 'failed', last_error = $2, updated_at = $3
		WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id, errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark data source failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dataSourceRepository) ResetStaleRunning(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		UPDATE data_sources
		SET refresh_status = 'failed', last_error = 'refresh interrupted by restart', updated_at = $1
		WHERE refresh_status = 'running'
		RETURNING id`

	rows, err := r.db.Pool.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to reset stale running data sources: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan data source id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale data sources: %w", err)
	}

	return ids, nil
}

var _ DataSourceRepository = (*dataSourceRepository)(nil)
