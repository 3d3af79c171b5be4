package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the chat session state machine:
// active <-> awaiting_reply, terminal deactivated.
type SessionState string

const (
	SessionStateActive        SessionState = "active"
	SessionStateAwaitingReply SessionState = "awaiting_reply"
	SessionStateDeactivated   SessionState = "deactivated"
)

// ChatRole identifies the sender of a chat message.
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ValidChatRoles contains all valid chat role values.
var ValidChatRoles = []ChatRole{ChatRoleUser, ChatRoleAssistant, ChatRoleSystem}

// IsValidChatRole checks if the given role is valid.
func IsValidChatRole(r ChatRole) bool {
	for _, v := range ValidChatRoles {
		if v == r {
			return true
		}
	}
	return false
}

// ContentType classifies what a message carries besides text.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeChart ContentType = "chart"
	ContentTypeData  ContentType = "data"
	ContentTypeError ContentType = "error"
)

// ChatSession is one conversation. Sessions are never hard-deleted, only
// deactivated.
type ChatSession struct {
	ID     uuid.UUID    `json:"id"`
	UserID uuid.UUID    `json:"user_id"`
	State  SessionState `json:"state"`
	// Context snapshots what the user was viewing when the session started
	// (dashboard id, data source, filters). Fed to the assistant with every
	// completion call.
	Context      map[string]any `json:"context,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
}

// Active reports whether the session accepts new user messages.
func (s *ChatSession) Active() bool {
	return s.State == SessionStateActive
}

// ChatMessage is one turn in a session. Within a session messages are
// strictly ordered by (CreatedAt, ID); that order is the transcript fed to
// the assistant.
type ChatMessage struct {
	ID          uuid.UUID   `json:"id"`
	SessionID   uuid.UUID   `json:"session_id"`
	Role        ChatRole    `json:"role"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`

	// Payload carries a chart configuration or tabular preview when
	// ContentType is chart or data.
	Payload map[string]any `json:"payload,omitempty"`
	// Query is the originating structured query text, if any.
	Query string `json:"query,omitempty"`
	// ProcessingTime is how long reply generation took, for assistant and
	// system messages.
	ProcessingTime time.Duration `json:"processing_time,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// IsFromUser returns true if the message is a user turn.
func (m *ChatMessage) IsFromUser() bool {
	return m.Role == ChatRoleUser
}
