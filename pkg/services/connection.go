// Package services implements the engine's business logic on top of the
// repositories and upstream clients.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/config"
	"github.com/songo-inc/songo-engine/pkg/crypto"
	"github.com/songo-inc/songo-engine/pkg/models"
	"github.com/songo-inc/songo-engine/pkg/repositories"
	"github.com/songo-inc/songo-engine/pkg/source"
)

// ConnectionService manages source connections. Credentials are encrypted
// before storage and never returned in plaintext; every read path yields a
// redacted copy.
type ConnectionService interface {
	// Create stores a new connection with encrypted credentials.
	Create(ctx context.Context, conn *models.SourceConnection, credentials string) (*models.SourceConnection, error)

	// Get retrieves a redacted connection.
	Get(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error)

	// List retrieves all connections, redacted.
	List(ctx context.Context) ([]*models.SourceConnection, error)

	// Update modifies connection metadata.
	Update(ctx context.Context, conn *models.SourceConnection) (*models.SourceConnection, error)

	// UpdateCredentials replaces the stored credentials.
	UpdateCredentials(ctx context.Context, id uuid.UUID, credentials string) error

	// Deactivate disables a connection. Its data sources stop refreshing but
	// their synced snapshots remain queryable.
	Deactivate(ctx context.Context, id uuid.UUID) error

	// Activate re-enables a connection.
	Activate(ctx context.Context, id uuid.UUID) error

	// Delete removes a connection. Returns apperrors.ErrConnectionReferenced
	// while data sources still use it; deactivate instead.
	Delete(ctx context.Context, id uuid.UUID) error

	// TestConnection verifies the stored credentials against the record API.
	TestConnection(ctx context.Context, id uuid.UUID) error
}

type connectionService struct {
	connections   repositories.ConnectionRepository
	dataSources   repositories.DataSourceRepository
	encryptor     *crypto.CredentialEncryptor
	clientFactory source.Factory
	sourceCfg     config.SourceConfig
	defaultIvl    config.RefreshConfig
	logger        *zap.Logger
}

// NewConnectionService creates a connection service.
func NewConnectionService(
	connections repositories.ConnectionRepository,
	dataSources repositories.DataSourceRepository,
	encryptor *crypto.CredentialEncryptor,
	clientFactory source.Factory,
	sourceCfg config.SourceConfig,
	refreshCfg config.RefreshConfig,
	logger *zap.Logger,
) ConnectionService {
	return &connectionService{
		connections:   connections,
		dataSources:   dataSources,
		encryptor:     encryptor,
		clientFactory: clientFactory,
		sourceCfg:     sourceCfg,
		defaultIvl:    refreshCfg,
		logger:        logger.Named("connections"),
	}
}

func (s *connectionService) Create(ctx context.Context, conn *models.SourceConnection, credentials string) (*models.SourceConnection, error) {
	if strings.TrimSpace(conn.Name) == "" {
		return nil, fmt.Errorf("connection name must not be empty")
	}
	if strings.TrimSpace(conn.AccountID) == "" {
		return nil, fmt.Errorf("account id must not be empty")
	}
	if credentials == "" {
		return nil, fmt.Errorf("credentials must not be empty")
	}
	if conn.RefreshInterval <= 0 {
		conn.RefreshInterval = s.defaultIvl.DefaultInterval
	}
	conn.Active = true

	encrypted, err := s.encryptor.Encrypt(credentials)
	if err != nil {
		return nil, fmt.Errorf("encrypt credentials: %w", err)
	}

	if err := s.connections.Create(ctx, conn, encrypted); err != nil {
		return nil, err
	}

	s.logger.Info("connection created",
		zap.String("connection_id", conn.ID.String()),
		zap.String("name", conn.Name))

	return conn.Redacted(), nil
}

func (s *connectionService) Get(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error) {
	conn, err := s.connections.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return conn.Redacted(), nil
}

func (s *connectionService) List(ctx context.Context) ([]*models.SourceConnection, error) {
	conns, err := s.connections.List(ctx)
	if err != nil {
		return nil, err
	}

	redacted := make([]*models.SourceConnection, len(conns))
	for i, c := range conns {
		redacted[i] = c.Redacted()
	}
	return redacted, nil
}

func (s *connectionService) Update(ctx context.Context, conn *models.SourceConnection) (*models.SourceConnection, error) {
	if strings.TrimSpace(conn.Name) == "" {
		return nil, fmt.Errorf("connection name must not be empty")
	}
	if conn.RefreshInterval <= 0 {
		conn.RefreshInterval = s.defaultIvl.DefaultInterval
	}

	if err := s.connections.Update(ctx, conn); err != nil {
		return nil, err
	}

	updated, err := s.connections.GetByID(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	return updated.Redacted(), nil
}

func (s *connectionService) UpdateCredentials(ctx context.Context, id uuid.UUID, credentials string) error {
	if credentials == "" {
		return fmt.Errorf("credentials must not be empty")
	}

	encrypted, err := s.encryptor.Encrypt(credentials)
	if err != nil {
		return fmt.Errorf("encrypt credentials: %w", err)
	}

	return s.connections.UpdateCredentials(ctx, id, encrypted)
}

func (s *connectionService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.connections.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.logger.Info("connection deactivated", zap.String("connection_id", id.String()))
	return nil
}

func (s *connectionService) Activate(ctx context.Context, id uuid.UUID) error {
	return s.connections.SetActive(ctx, id, true)
}

func (s *connectionService) Delete(ctx context.Context, id uuid.UUID) error {
	count, err := s.dataSources.CountByConnection(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperrors.ErrConnectionReferenced
	}

	if err := s.connections.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("connection deleted", zap.String("connection_id", id.String()))
	return nil
}

func (s *connectionService) TestConnection(ctx context.Context, id uuid.UUID) error {
	conn, err := s.connections.GetByID(ctx, id)
	if err != nil {
		return err
	}

	encrypted, err := s.connections.GetCredentials(ctx, id)
	if err != nil {
		return err
	}
	token, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("decrypt credentials: %w", err)
	}

	client := s.clientFactory(source.ClientConfig{
		BaseURL:   s.sourceCfg.BaseURL,
		AccountID: conn.AccountID,
		Token:     token,
		Timeout:   s.sourceCfg.Timeout,
	})

	return client.TestConnection(ctx)
}

var _ ConnectionService = (*connectionService)(nil)
