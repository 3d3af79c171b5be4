package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/models"
)

// Service mocks with function fields. Tests set only the functions they
// exercise; unset functions return zero values or ErrNotFound.

type mockConnectionService struct {
	CreateFunc            func(ctx context.Context, conn *models.SourceConnection, credentials string) (*models.SourceConnection, error)
	GetFunc               func(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error)
	ListFunc              func(ctx context.Context) ([]*models.SourceConnection, error)
	UpdateFunc            func(ctx context.Context, conn *models.SourceConnection) (*models.SourceConnection, error)
	UpdateCredentialsFunc func(ctx context.Context, id uuid.UUID, credentials string) error
	DeactivateFunc        func(ctx context.Context, id uuid.UUID) error
	ActivateFunc          func(ctx context.Context, id uuid.UUID) error
	DeleteFunc            func(ctx context.Context, id uuid.UUID) error
	TestConnectionFunc    func(ctx context.Context, id uuid.UUID) error
}

func (m *mockConnectionService) Create(ctx context.Context, conn *models.SourceConnection, credentials string) (*models.SourceConnection, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, conn, credentials)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConnectionService) Get(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConnectionService) List(ctx context.Context) ([]*models.SourceConnection, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockConnectionService) Update(ctx context.Context, conn *models.SourceConnection) (*models.SourceConnection, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, conn)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConnectionService) UpdateCredentials(ctx context.Context, id uuid.UUID, credentials string) error {
	if m.UpdateCredentialsFunc != nil {
		return m.UpdateCredentialsFunc(ctx, id, credentials)
	}
	return nil
}

func (m *mockConnectionService) Deactivate(ctx context.Context, id uuid.UUID) error {
	if m.DeactivateFunc != nil {
		return m.DeactivateFunc(ctx, id)
	}
	return nil
}

func (m *mockConnectionService) Activate(ctx context.Context, id uuid.UUID) error {
	if m.ActivateFunc != nil {
		return m.ActivateFunc(ctx, id)
	}
	return nil
}

func (m *mockConnectionService) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *mockConnectionService) TestConnection(ctx context.Context, id uuid.UUID) error {
	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx, id)
	}
	return nil
}

type mockDataSourceService struct {
	CreateFunc           func(ctx context.Context, ds *models.DataSource) (*models.DataSource, error)
	GetFunc              func(ctx context.Context, id uuid.UUID) (*models.DataSource, error)
	ListFunc             func(ctx context.Context) ([]*models.DataSource, error)
	ListByConnectionFunc func(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error)
	UpdateFunc           func(ctx context.Context, ds *models.DataSource) (*models.DataSource, error)
	DeleteFunc           func(ctx context.Context, id uuid.UUID) error
	TriggerRefreshFunc   func(ctx context.Context, id uuid.UUID) (bool, error)
	GetRecordsFunc       func(ctx context.Context, id uuid.UUID) ([]*models.SyncedRecord, error)
	GetAuditTrailFunc    func(ctx context.Context, id uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error)
	NextDueAtFunc        func(ctx context.Context, id uuid.UUID) (*time.Time, error)
}

func (m *mockDataSourceService) Create(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, ds)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDataSourceService) Get(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDataSourceService) List(ctx context.Context) ([]*models.DataSource, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockDataSourceService) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error) {
	if m.ListByConnectionFunc != nil {
		return m.ListByConnectionFunc(ctx, connectionID)
	}
	return nil, nil
}

func (m *mockDataSourceService) Update(ctx context.Context, ds *models.DataSource) (*models.DataSource, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, ds)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDataSourceService) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *mockDataSourceService) TriggerRefresh(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.TriggerRefreshFunc != nil {
		return m.TriggerRefreshFunc(ctx, id)
	}
	return false, apperrors.ErrNotFound
}

func (m *mockDataSourceService) GetRecords(ctx context.Context, id uuid.UUID) ([]*models.SyncedRecord, error) {
	if m.GetRecordsFunc != nil {
		return m.GetRecordsFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockDataSourceService) GetAuditTrail(ctx context.Context, id uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error) {
	if m.GetAuditTrailFunc != nil {
		return m.GetAuditTrailFunc(ctx, id, limit)
	}
	return nil, nil
}

func (m *mockDataSourceService) NextDueAt(ctx context.Context, id uuid.UUID) (*time.Time, error) {
	if m.NextDueAtFunc != nil {
		return m.NextDueAtFunc(ctx, id)
	}
	return nil, nil
}

type mockChatService struct {
	CreateSessionFunc        func(ctx context.Context, userID uuid.UUID, sessionContext map[string]any) (*models.ChatSession, error)
	GetSessionFunc           func(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)
	ListSessionsFunc         func(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)
	PostUserMessageFunc      func(ctx context.Context, sessionID uuid.UUID, content string) (*models.ChatMessage, error)
	GetMessagesFunc          func(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)
	DeactivateSessionFunc    func(ctx context.Context, sessionID uuid.UUID) error
	RecoverStaleSessionsFunc func(ctx context.Context) error
}

func (m *mockChatService) CreateSession(ctx context.Context, userID uuid.UUID, sessionContext map[string]any) (*models.ChatSession, error) {
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, userID, sessionContext)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockChatService) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockChatService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, userID)
	}
	return nil, nil
}

func (m *mockChatService) PostUserMessage(ctx context.Context, sessionID uuid.UUID, content string) (*models.ChatMessage, error) {
	if m.PostUserMessageFunc != nil {
		return m.PostUserMessageFunc(ctx, sessionID, content)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockChatService) GetMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	if m.GetMessagesFunc != nil {
		return m.GetMessagesFunc(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockChatService) DeactivateSession(ctx context.Context, sessionID uuid.UUID) error {
	if m.DeactivateSessionFunc != nil {
		return m.DeactivateSessionFunc(ctx, sessionID)
	}
	return nil
}

func (m *mockChatService) RecoverStaleSessions(ctx context.Context) error {
	if m.RecoverStaleSessionsFunc != nil {
		return m.RecoverStaleSessionsFunc(ctx)
	}
	return nil
}
