package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/models"
	"github.com/songo-inc/songo-engine/pkg/services"
)

// CreateSessionRequest for POST body. Context snapshots what the user was
// viewing when the session started.
type CreateSessionRequest struct {
	UserID  string         `json:"user_id"`
	Context map[string]any `json:"context"`
}

// PostMessageRequest for POST body.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// MessageResponse is the API shape of one chat message.
type MessageResponse struct {
	ID               string         `json:"id"`
	SessionID        string         `json:"session_id"`
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ContentType      string         `json:"content_type"`
	Payload          map[string]any `json:"payload,omitempty"`
	ProcessingTimeMs int64          `json:"processing_time_ms,omitempty"`
	CreatedAt        string         `json:"created_at"`
}

func toMessageResponse(m *models.ChatMessage) MessageResponse {
	return MessageResponse{
		ID:               m.ID.String(),
		SessionID:        m.SessionID.String(),
		Role:             string(m.Role),
		Content:          m.Content,
		ContentType:      string(m.ContentType),
		Payload:          m.Payload,
		ProcessingTimeMs: m.ProcessingTime.Milliseconds(),
		CreatedAt:        m.CreatedAt.Format(time.RFC3339),
	}
}

// ListMessagesResponse wraps the transcript in order.
type ListMessagesResponse struct {
	Messages []MessageResponse `json:"messages"`
}

// ListSessionsResponse wraps a user's sessions, most recently active first.
type ListSessionsResponse struct {
	Sessions []*models.ChatSession `json:"sessions"`
}

// ChatHandler handles chat session and message HTTP requests.
type ChatHandler struct {
	chatService services.ChatService
	logger      *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService services.ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// RegisterRoutes registers the chat handler's routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat/sessions", h.CreateSession)
	mux.HandleFunc("GET /api/chat/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/chat/sessions/{id}", h.GetSession)
	mux.HandleFunc("DELETE /api/chat/sessions/{id}", h.DeactivateSession)
	mux.HandleFunc("POST /api/chat/sessions/{id}/messages", h.PostMessage)
	mux.HandleFunc("GET /api/chat/sessions/{id}/messages", h.ListMessages)
}

func (h *ChatHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_session_id", "Invalid session ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// CreateSession handles POST /api/chat/sessions.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	session, err := h.chatService.CreateSession(r.Context(), userID, req.Context)
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to create session"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, session); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListSessions handles GET /api/chat/sessions?user_id={uid}.
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("user_id"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_user_id", "A valid user_id query parameter is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sessions, err := h.chatService.ListSessions(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list sessions", zap.String("user_id", userID.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list sessions"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if sessions == nil {
		sessions = []*models.ChatSession{}
	}
	if err := WriteJSON(w, http.StatusOK, ListSessionsResponse{Sessions: sessions}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetSession handles GET /api/chat/sessions/{id}.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	session, err := h.chatService.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "session_not_found", "Session not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to get session", zap.String("session_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get session"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, session); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// DeactivateSession handles DELETE /api/chat/sessions/{id}.
// Sessions are never hard-deleted; deletion deactivates. Idempotent.
func (h *ChatHandler) DeactivateSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.chatService.DeactivateSession(r.Context(), id); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "session_not_found", "Session not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to deactivate session", zap.String("session_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to deactivate session"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PostMessage handles POST /api/chat/sessions/{id}/messages.
// Returns 202 with the stored user message; the reply is generated in the
// background and appears in the transcript once ready.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	msg, err := h.chatService.PostUserMessage(r.Context(), id, req.Content)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "session_not_found", "Session not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrInvalidSessionState) {
			if err := ErrorResponse(w, http.StatusConflict, "session_not_active", "Session is not accepting messages"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to post message", zap.String("session_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_message", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, toMessageResponse(msg)); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListMessages handles GET /api/chat/sessions/{id}/messages.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	messages, err := h.chatService.GetMessages(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "session_not_found", "Session not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		h.logger.Error("Failed to list messages", zap.String("session_id", id.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to list messages"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := ListMessagesResponse{Messages: make([]MessageResponse, len(messages))}
	for i, m := range messages {
		response.Messages[i] = toMessageResponse(m)
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
