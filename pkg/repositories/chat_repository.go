package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/database"
	"github.com/songo-inc/songo-engine/pkg/models"
)

// ChatRepository defines data access for chat sessions and messages.
//
// State transitions are conditional UPDATEs keyed on the expected current
// state, so concurrent writers cannot both win the same transition.
type ChatRepository interface {
	// CreateSession inserts a new session in the active state.
	CreateSession(ctx context.Context, session *models.ChatSession) error

	// GetSession retrieves a session.
	GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)

	// ListSessionsByUser retrieves a user's sessions, most recently active first.
	ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)

	// TransitionState moves a session from one state to another. Returns
	// false when the session was not in the expected state.
	TransitionState(ctx context.Context, id uuid.UUID, from, to models.SessionState) (bool, error)

	// Deactivate moves a session to the terminal deactivated state from any
	// live state. Returns false when it was already deactivated.
	Deactivate(ctx context.Context, id uuid.UUID) (bool, error)

	// ResetStaleAwaiting returns every awaiting_reply session to active and
	// reports their ids. Called once at startup.
	ResetStaleAwaiting(ctx context.Context) ([]uuid.UUID, error)

	// AppendMessage inserts a message and touches the session's last
	// activity in the same transaction.
	AppendMessage(ctx context.Context, msg *models.ChatMessage) error

	// ListMessages retrieves the session transcript ordered by
	// (created_at, id) ascending.
	ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)
}

type chatRepository struct {
	db *database.DB
}

// NewChatRepository creates a new chat repository.
func NewChatRepository(db *database.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) CreateSession(ctx context.Context, session *models.ChatSession) error {
	now := time.Now()
	session.CreatedAt = now
	session.LastActivity = now
	if session.State == "" {
		session.State = models.SessionStateActive
	}
	if session.Context == nil {
		session.Context = map[string]any{}
	}

	query := `
		INSERT INTO chat_sessions (user_id, state, context, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := r.db.Pool.QueryRow(ctx, query,
		session.UserID,
		session.State,
		session.Context,
		session.CreatedAt,
		session.LastActivity,
	).Scan(&session.ID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (r *chatRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	query := `
		SELECT id, user_id, state, context, created_at, last_activity
		FROM chat_sessions
		WHERE id = $1`

	var s models.ChatSession
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.State,
		&s.Context,
		&s.CreatedAt,
		&s.LastActivity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &s, nil
}

func (r *chatRepository) ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	query := `
		SELECT id, user_id, state, context, created_at, last_activity
		FROM chat_sessions
		WHERE user_id = $1
		ORDER BY last_activity DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ChatSession
	for rows.Next() {
		var s models.ChatSession
		if err := rows.Scan(&s.ID, &s.UserID, &s.State, &s.Context, &s.CreatedAt, &s.LastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

func (r *chatRepository) TransitionState(ctx context.Context, id uuid.UUID, from, to models.SessionState) (bool, error) {
	query := `
		UPDATE chat_sessions
		SET state = $3, last_activity = $4
		WHERE id = $1 AND state = $2`

	result, err := r.db.Pool.Exec(ctx, query, id, from, to, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to transition session state: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *chatRepository) Deactivate(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE chat_sessions
		SET state = 'deactivated', last_activity = $2
		WHERE id = $1 AND state <> 'deactivated'`

	result, err := r.db.Pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *chatRepository) ResetStaleAwaiting(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		UPDATE chat_sessions
		SET state = 'active', last_activity = $1
		WHERE state = 'awaiting_reply'
		RETURNING id`

	rows, err := r.db.Pool.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to reset stale sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stale sessions: %w", err)
	}

	return ids, nil
}

func (r *chatRepository) AppendMessage(ctx context.Context, msg *models.ChatMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.ContentType == "" {
		msg.ContentType = models.ContentTypeText
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	query := `
		INSERT INTO chat_messages (session_id, role, content, content_type, payload, query, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	err = tx.QueryRow(ctx, query,
		msg.SessionID,
		msg.Role,
		msg.Content,
		msg.ContentType,
		msg.Payload,
		msg.Query,
		msg.ProcessingTime.Milliseconds(),
		msg.CreatedAt,
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE chat_sessions SET last_activity = $2 WHERE id = $1`,
		msg.SessionID, msg.CreatedAt); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *chatRepository) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, session_id, role, content, content_type, payload, query, processing_time_ms, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		var processingMs int64
		err := rows.Scan(
			&m.ID,
			&m.SessionID,
			&m.Role,
			&m.Content,
			&m.ContentType,
			&m.Payload,
			&m.Query,
			&processingMs,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.ProcessingTime = time.Duration(processingMs) * time.Millisecond
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

var _ ChatRepository = (*chatRepository)(nil)
