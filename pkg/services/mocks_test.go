package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/models"
)

// Hand-rolled repository mocks with function fields. Tests set only the
// functions they need; unset functions return zero values.

type mockDataSourceRepo struct {
	mu sync.Mutex

	CreateFunc            func(ctx context.Context, ds *models.DataSource) error
	GetByIDFunc           func(ctx context.Context, id uuid.UUID) (*models.DataSource, error)
	ListFunc              func(ctx context.Context) ([]*models.DataSource, error)
	ListByConnectionFunc  func(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error)
	CountByConnectionFunc func(ctx context.Context, connectionID uuid.UUID) (int, error)
	UpdateFunc            func(ctx context.Context, ds *models.DataSource) error
	DeleteFunc            func(ctx context.Context, id uuid.UUID) error
	ListDueForRefreshFunc func(ctx context.Context, now time.Time) ([]*models.DataSource, error)
	MarkRunningFunc       func(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSucceededFunc     func(ctx context.Context, id uuid.UUID, lastRefresh time.Time) error
	MarkFailedFunc        func(ctx context.Context, id uuid.UUID, errMsg string) error
	ResetStaleRunningFunc func(ctx context.Context) ([]uuid.UUID, error)

	markRunningCalls   []uuid.UUID
	markSucceededCalls []time.Time
	markFailedCalls    []string
}

func (m *mockDataSourceRepo) Create(ctx context.Context, ds *models.DataSource) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, ds)
	}
	return nil
}

func (m *mockDataSourceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDataSourceRepo) List(ctx context.Context) ([]*models.DataSource, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockDataSourceRepo) ListByConnection(ctx context.Context, connectionID uuid.UUID) ([]*models.DataSource, error) {
	if m.ListByConnectionFunc != nil {
		return m.ListByConnectionFunc(ctx, connectionID)
	}
	return nil, nil
}

func (m *mockDataSourceRepo) CountByConnection(ctx context.Context, connectionID uuid.UUID) (int, error) {
	if m.CountByConnectionFunc != nil {
		return m.CountByConnectionFunc(ctx, connectionID)
	}
	return 0, nil
}

func (m *mockDataSourceRepo) Update(ctx context.Context, ds *models.DataSource) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, ds)
	}
	return nil
}

func (m *mockDataSourceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *mockDataSourceRepo) ListDueForRefresh(ctx context.Context, now time.Time) ([]*models.DataSource, error) {
	if m.ListDueForRefreshFunc != nil {
		return m.ListDueForRefreshFunc(ctx, now)
	}
	return nil, nil
}

func (m *mockDataSourceRepo) MarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	m.markRunningCalls = append(m.markRunningCalls, id)
	m.mu.Unlock()
	if m.MarkRunningFunc != nil {
		return m.MarkRunningFunc(ctx, id)
	}
	return true, nil
}

func (m *mockDataSourceRepo) MarkSucceeded(ctx context.Context, id uuid.UUID, lastRefresh time.Time) error {
	m.mu.Lock()
	m.markSucceededCalls = append(m.markSucceededCalls, lastRefresh)
	m.mu.Unlock()
	if m.MarkSucceededFunc != nil {
		return m.MarkSucceededFunc(ctx, id, lastRefresh)
	}
	return nil
}

func (m *mockDataSourceRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	m.mu.Lock()
	m.markFailedCalls = append(m.markFailedCalls, errMsg)
	m.mu.Unlock()
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, errMsg)
	}
	return nil
}

func (m *mockDataSourceRepo) ResetStaleRunning(ctx context.Context) ([]uuid.UUID, error) {
	if m.ResetStaleRunningFunc != nil {
		return m.ResetStaleRunningFunc(ctx)
	}
	return nil, nil
}

type mockConnectionRepo struct {
	CreateFunc            func(ctx context.Context, conn *models.SourceConnection, encryptedCredentials string) error
	GetByIDFunc           func(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error)
	GetByNameFunc         func(ctx context.Context, name string) (*models.SourceConnection, error)
	GetCredentialsFunc    func(ctx context.Context, id uuid.UUID) (string, error)
	ListFunc              func(ctx context.Context) ([]*models.SourceConnection, error)
	UpdateFunc            func(ctx context.Context, conn *models.SourceConnection) error
	UpdateCredentialsFunc func(ctx context.Context, id uuid.UUID, encryptedCredentials string) error
	SetActiveFunc         func(ctx context.Context, id uuid.UUID, active bool) error
	DeleteFunc            func(ctx context.Context, id uuid.UUID) error
}

func (m *mockConnectionRepo) Create(ctx context.Context, conn *models.SourceConnection, encryptedCredentials string) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, conn, encryptedCredentials)
	}
	return nil
}

func (m *mockConnectionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SourceConnection, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConnectionRepo) GetByName(ctx context.Context, name string) (*models.SourceConnection, error) {
	if m.GetByNameFunc != nil {
		return m.GetByNameFunc(ctx, name)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConnectionRepo) GetCredentials(ctx context.Context, id uuid.UUID) (string, error) {
	if m.GetCredentialsFunc != nil {
		return m.GetCredentialsFunc(ctx, id)
	}
	return "", apperrors.ErrNotFound
}

func (m *mockConnectionRepo) List(ctx context.Context) ([]*models.SourceConnection, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

func (m *mockConnectionRepo) Update(ctx context.Context, conn *models.SourceConnection) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, conn)
	}
	return nil
}

func (m *mockConnectionRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, encryptedCredentials string) error {
	if m.UpdateCredentialsFunc != nil {
		return m.UpdateCredentialsFunc(ctx, id, encryptedCredentials)
	}
	return nil
}

func (m *mockConnectionRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if m.SetActiveFunc != nil {
		return m.SetActiveFunc(ctx, id, active)
	}
	return nil
}

func (m *mockConnectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type mockSyncedRecordRepo struct {
	ReconcileSnapshotFunc func(ctx context.Context, dataSourceID uuid.UUID, records []models.SyncedRecord) (models.ReconcileCounts, error)
	ListByDataSourceFunc  func(ctx context.Context, dataSourceID uuid.UUID) ([]*models.SyncedRecord, error)
	CountByDataSourceFunc func(ctx context.Context, dataSourceID uuid.UUID) (int, error)
}

func (m *mockSyncedRecordRepo) ReconcileSnapshot(ctx context.Context, dataSourceID uuid.UUID, records []models.SyncedRecord) (models.ReconcileCounts, error) {
	if m.ReconcileSnapshotFunc != nil {
		return m.ReconcileSnapshotFunc(ctx, dataSourceID, records)
	}
	return models.ReconcileCounts{}, nil
}

func (m *mockSyncedRecordRepo) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID) ([]*models.SyncedRecord, error) {
	if m.ListByDataSourceFunc != nil {
		return m.ListByDataSourceFunc(ctx, dataSourceID)
	}
	return nil, nil
}

func (m *mockSyncedRecordRepo) CountByDataSource(ctx context.Context, dataSourceID uuid.UUID) (int, error) {
	if m.CountByDataSourceFunc != nil {
		return m.CountByDataSourceFunc(ctx, dataSourceID)
	}
	return 0, nil
}

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*models.RefreshAuditEntry

	CreateFunc           func(ctx context.Context, entry *models.RefreshAuditEntry) error
	ListByDataSourceFunc func(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error)
	DeleteOlderThanFunc  func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *models.RefreshAuditEntry) error {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return nil
}

func (m *mockAuditRepo) ListByDataSource(ctx context.Context, dataSourceID uuid.UUID, limit int) ([]*models.RefreshAuditEntry, error) {
	if m.ListByDataSourceFunc != nil {
		return m.ListByDataSourceFunc(ctx, dataSourceID, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.RefreshAuditEntry(nil), m.entries...), nil
}

func (m *mockAuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, cutoff)
	}
	return 0, nil
}

func (m *mockAuditRepo) Entries() []*models.RefreshAuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.RefreshAuditEntry(nil), m.entries...)
}

// mockChatRepo is an in-memory chat store with optional overrides.
type mockChatRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.ChatSession
	messages map[uuid.UUID][]*models.ChatMessage

	TransitionStateFunc func(ctx context.Context, id uuid.UUID, from, to models.SessionState) (bool, error)
	AppendMessageFunc   func(ctx context.Context, msg *models.ChatMessage) error
	ListMessagesFunc    func(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{
		sessions: make(map[uuid.UUID]*models.ChatSession),
		messages: make(map[uuid.UUID][]*models.ChatMessage),
	}
}

func (m *mockChatRepo) CreateSession(ctx context.Context, session *models.ChatSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	session.ID = uuid.New()
	now := time.Now()
	session.CreatedAt = now
	session.LastActivity = now
	if session.State == "" {
		session.State = models.SessionStateActive
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *mockChatRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *mockChatRepo) ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ChatSession
	for _, s := range m.sessions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *mockChatRepo) TransitionState(ctx context.Context, id uuid.UUID, from, to models.SessionState) (bool, error) {
	if m.TransitionStateFunc != nil {
		return m.TransitionStateFunc(ctx, id, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.State != from {
		return false, nil
	}
	s.State = to
	s.LastActivity = time.Now()
	return true, nil
}

func (m *mockChatRepo) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.State == models.SessionStateDeactivated {
		return false, nil
	}
	s.State = models.SessionStateDeactivated
	return true, nil
}

func (m *mockChatRepo) ResetStaleAwaiting(ctx context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, s := range m.sessions {
		if s.State == models.SessionStateAwaitingReply {
			s.State = models.SessionStateActive
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *mockChatRepo) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if m.AppendMessageFunc != nil {
		return m.AppendMessageFunc(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = uuid.New()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	copied := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &copied)
	return nil
}

func (m *mockChatRepo) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.ChatMessage(nil), m.messages[sessionID]...), nil
}

// mockExecutor records refresh runs.
type mockExecutor struct {
	mu   sync.Mutex
	runs []uuid.UUID

	RunFunc func(ctx context.Context, dataSourceID uuid.UUID) error
}

func (m *mockExecutor) Run(ctx context.Context, dataSourceID uuid.UUID) error {
	m.mu.Lock()
	m.runs = append(m.runs, dataSourceID)
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, dataSourceID)
	}
	return nil
}

func (m *mockExecutor) RecoverStaleRunning(ctx context.Context) error { return nil }

func (m *mockExecutor) Runs() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.runs...)
}
