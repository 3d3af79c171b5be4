// Package repositories provides PostgreSQL data access for the engine.
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

// ConnectionRepository defines data access for source connections.
// Credentials are stored as encrypted TEXT; encryption and redaction are
// handled by the service layer.
type ConnectionRepository interface {
	// Create inserts a new connection. Returns apperrors.ErrConflict when the
	// name is taken.
	Create(ctx context.Context, conn *models.SourceConnection, encryptedCredentials string) error

	// GetByID retrieves a connection. The Credentials field is left empty.
	GetByID(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error)

	// GetByName retrieves a connection by name. The Credentials field is left empty.
	GetByName(ctx context.Context, name string) (*models.SourceConnection, error)

	// GetCredentials retrieves the encrypted credential blob for a connection.
	GetCredentials(ctx context.Context, id uuid.UUID) (string, error)

	// List retrieves all connections, newest first. Credentials are left empty.
	List(ctx context.Context) ([]*models.SourceConnection, error)

	// Update modifies connection metadata. Credentials are not touched.
	Update(ctx context.Context, conn *models.SourceConnection) error

	// UpdateCredentials replaces the encrypted credential blob.
	UpdateCredentials(ctx context.Context, id uuid.UUID, encryptedCredentials string) error

	// SetActive flips the active flag.
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// Delete removes a connection. Fails while data sources still reference
	// it; the service layer checks first and returns a typed error.
	Delete(ctx context.Context, id uuid.UUID) error
}

type connectionRepository struct {
	db *database.DB
}

// NewConnectionRepository creates a new connection repository.
func NewConnectionRepository(db *database.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, name, account_id, active, auto_refresh, refresh_interval_seconds, description, created_at, updated_at`

func scanConnection(row pgx.Row) (*models.SourceConnection, error) {
	var conn models.SourceConnection
	var intervalSeconds int64
	err := row.Scan(
		&conn.ID,
		&conn.Name,
		&conn.AccountID,
		&conn.Active,
		&conn.AutoRefresh,
		&intervalSeconds,
		&conn.Description,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conn.RefreshInterval = time.Duration(intervalSeconds) * time.Second
	return &conn, nil
}

func (r *connectionRepository) Create(ctx context.Context, conn *models.SourceConnection, encryptedCredentials string) error {
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now

	query := `
		INSERT INTO source_connections (name, account_id, credentials, active, auto_refresh, refresh_interval_seconds, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	err := r.db.Pool.QueryRow(ctx, query,
		conn.Name,
		conn.AccountID,
		encryptedCredentials,
		conn.Active,
		conn.AutoRefresh,
		int64(conn.RefreshInterval/time.Second),
		conn.Description,
		conn.CreatedAt,
		conn.UpdatedAt,
	).Scan(&conn.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM source_connections WHERE id = $1`

	conn, err := scanConnection(r.db.Pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *connectionRepository) GetByName(ctx context.Context, name string) (*models.SourceConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM source_connections WHERE name = $1`

	conn, err := scanConnection(r.db.Pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

func (r *connectionRepository) GetCredentials(ctx context.Context, id uuid.UUID) (string, error) {
	var encrypted string
	err := r.db.Pool.QueryRow(ctx, `SELECT credentials FROM source_connections WHERE id = $1`, id).Scan(&encrypted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("failed to get credentials: %w", err)
	}
	return encrypted, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*models.SourceConnection, error) {
	query := `SELECT ` + connectionColumns + ` FROM source_connections ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var connections []*models.SourceConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		connections = append(connections, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connections: %w", err)
	}

	return connections, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *models.SourceConnection) error {
	query := `
		UPDATE source_connections
		SET name = $2, account_id = $3, auto_refresh = $4, refresh_interval_seconds = $5, description = $6, updated_at = $7
		WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query,
		conn.ID,
		conn.Name,
		conn.AccountID,
		conn.AutoRefresh,
		int64(conn.RefreshInterval/time.Second),
		conn.Description,
		time.Now(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to update connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, encryptedCredentials string) error {
	query := `UPDATE source_connections SET credentials = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id, encryptedCredentials, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `UPDATE source_connections SET active = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Pool.Exec(ctx, query, id, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set connection active: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *connectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM source_connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

var _ ConnectionRepository = (*connectionRepository)(nil)
