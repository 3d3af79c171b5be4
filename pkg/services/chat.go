package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/songo-inc/songo-engine/pkg/apperrors"
	"github.com/songo-inc/songo-engine/pkg/assistant"
	"github.com/songo-inc/songo-engine/pkg/models"
	"github.com/songo-inc/songo-engine/pkg/repositories"
	"github.com/songo-inc/songo-engine/pkg/workqueue"
)

const systemPromptTemplate = `You are an analytics assistant embedded in a business intelligence tool.
Answer questions about the user's data concisely.

When a chart would help, embed exactly one fenced block tagged "chart" containing a JSON chart configuration.
When tabular results would help, embed exactly one fenced block tagged "data" containing a JSON object.
Include a "data_source_id" field in the directive when the answer is backed by one of the user's data sources; the engine attaches the synced rows itself.

The user is currently viewing:
%s`

// groundingRowLimit caps how many synced rows are attached to a grounded
// chart or data reply.
const groundingRowLimit = 20

const interruptedReplyContent = "Reply generation was interrupted. Please resend your message."

const failedReplyContent = "Reply generation failed. Please try again."

// ChatService manages chat sessions and their message exchange. Posting a
// user message moves the session to awaiting_reply and schedules reply
// generation in the background; every accepted user message gets exactly one
// assistant or system follow-up.
type ChatService interface {
	// CreateSession starts a new active session for a user. sessionContext
	// captures what the user was viewing and is fed to the assistant.
	CreateSession(ctx context.Context, userID uuid.UUID, sessionContext map[string]any) (*models.ChatSession, error)

	// GetSession retrieves a session.
	GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error)

	// ListSessions retrieves a user's sessions, most recently active first.
	ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error)

	// PostUserMessage appends a user message to an active session and
	// schedules reply generation. Returns apperrors.ErrInvalidSessionState
	// when the session is not active.
	PostUserMessage(ctx context.Context, sessionID uuid.UUID, content string) (*models.ChatMessage, error)

	// GetMessages retrieves the transcript in order.
	GetMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error)

	// DeactivateSession terminally deactivates a session. Idempotent.
	DeactivateSession(ctx context.Context, sessionID uuid.UUID) error

	// RecoverStaleSessions returns sessions stuck in awaiting_reply to
	// active, appending a system notice so the pending user message still
	// gets its follow-up. Call once at startup.
	RecoverStaleSessions(ctx context.Context) error
}

type chatService struct {
	chats      repositories.ChatRepository
	records    repositories.SyncedRecordRepository
	client     assistant.Client
	classifier Classifier
	queue      *workqueue.Queue
	timeout    time.Duration
	logger     *zap.Logger
}

// NewChatService creates a chat service.
func NewChatService(
	chats repositories.ChatRepository,
	records repositories.SyncedRecordRepository,
	client assistant.Client,
	classifier Classifier,
	queue *workqueue.Queue,
	timeout time.Duration,
	logger *zap.Logger,
) ChatService {
	return &chatService{
		chats:      chats,
		records:    records,
		client:     client,
		classifier: classifier,
		queue:      queue,
		timeout:    timeout,
		logger:     logger.Named("chat"),
	}
}

func (s *chatService) CreateSession(ctx context.Context, userID uuid.UUID, sessionContext map[string]any) (*models.ChatSession, error) {
	session := &models.ChatSession{
		UserID:  userID,
		State:   models.SessionStateActive,
		Context: sessionContext,
	}
	if err := s.chats.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("session created",
		zap.String("session_id", session.ID.String()),
		zap.String("user_id", userID.String()))

	return session, nil
}

func (s *chatService) GetSession(ctx context.Context, id uuid.UUID) (*models.ChatSession, error) {
	return s.chats.GetSession(ctx, id)
}

func (s *chatService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.ChatSession, error) {
	return s.chats.ListSessionsByUser(ctx, userID)
}

func (s *chatService) PostUserMessage(ctx context.Context, sessionID uuid.UUID, content string) (*models.ChatMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("message content must not be empty")
	}

	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Active() {
		return nil, apperrors.ErrInvalidSessionState
	}

	// The conditional transition is the gate: of two concurrent posts only
	// one moves the session to awaiting_reply.
	ok, err := s.chats.TransitionState(ctx, sessionID, models.SessionStateActive, models.SessionStateAwaitingReply)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrInvalidSessionState
	}

	msg := &models.ChatMessage{
		SessionID:   sessionID,
		Role:        models.ChatRoleUser,
		Content:     content,
		ContentType: models.ContentTypeText,
	}
	if err := s.chats.AppendMessage(ctx, msg); err != nil {
		// Roll the state back so the session is not stranded awaiting a
		// reply that will never be generated.
		if _, rbErr := s.chats.TransitionState(ctx, sessionID, models.SessionStateAwaitingReply, models.SessionStateActive); rbErr != nil {
			s.logger.Error("failed to roll back session state",
				zap.String("session_id", sessionID.String()),
				zap.Error(rbErr))
		}
		return nil, err
	}

	s.queue.Enqueue(newReplyTask(sessionID, s))

	s.logger.Info("user message accepted",
		zap.String("session_id", sessionID.String()),
		zap.Int("content_len", len(content)))

	return msg, nil
}

func (s *chatService) GetMessages(ctx context.Context, sessionID uuid.UUID) ([]*models.ChatMessage, error) {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.chats.ListMessages(ctx, sessionID)
}

func (s *chatService) DeactivateSession(ctx context.Context, sessionID uuid.UUID) error {
	if _, err := s.chats.GetSession(ctx, sessionID); err != nil {
		return err
	}

	changed, err := s.chats.Deactivate(ctx, sessionID)
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("session deactivated",
			zap.String("session_id", sessionID.String()))
	}
	return nil
}

func (s *chatService) RecoverStaleSessions(ctx context.Context) error {
	ids, err := s.chats.ResetStaleAwaiting(ctx)
	if err != nil {
		return err
	}

	for _, id := range ids {
		notice := &models.ChatMessage{
			SessionID:   id,
			Role:        models.ChatRoleSystem,
			Content:     interruptedReplyContent,
			ContentType: models.ContentTypeError,
		}
		if err := s.chats.AppendMessage(ctx, notice); err != nil {
			s.logger.Error("failed to append interruption notice",
				zap.String("session_id", id.String()),
				zap.Error(err))
		}
	}

	if len(ids) > 0 {
		s.logger.Warn("recovered sessions stuck awaiting reply",
			zap.Int("count", len(ids)))
	}
	return nil
}

// generateReply produces the follow-up for the newest user message. Exactly
// one message is appended per invocation: an assistant reply on success, a
// system error notice otherwise. The session returns to active either way,
// including when a storage error interrupts generation.
func (s *chatService) generateReply(ctx context.Context, sessionID uuid.UUID) error {
	start := time.Now()

	session, err := s.chats.GetSession(ctx, sessionID)
	if err != nil {
		s.recoverAfterInternalError(ctx, sessionID, start)
		return fmt.Errorf("load session: %w", err)
	}
	if session.State != models.SessionStateAwaitingReply {
		// Deactivated or already recovered while queued. Nothing to do.
		s.logger.Warn("skipping reply generation, session no longer awaiting",
			zap.String("session_id", sessionID.String()),
			zap.String("state", string(session.State)))
		return nil
	}

	transcript, err := s.chats.ListMessages(ctx, sessionID)
	if err != nil {
		s.recoverAfterInternalError(ctx, sessionID, start)
		return fmt.Errorf("load transcript: %w", err)
	}

	completion, genErr := s.complete(ctx, session, transcript)

	followUp := &models.ChatMessage{
		SessionID:      sessionID,
		Query:          latestUserContent(transcript),
		ProcessingTime: time.Since(start),
	}
	if genErr != nil {
		s.logger.Error("reply generation failed",
			zap.String("session_id", sessionID.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(genErr))

		followUp.Role = models.ChatRoleSystem
		followUp.Content = failedReplyContent
		followUp.ContentType = models.ContentTypeError
	} else {
		classified := s.classifier.Classify(completion.Content)
		s.groundPayload(ctx, sessionID, &classified)
		followUp.Role = models.ChatRoleAssistant
		followUp.Content = classified.Content
		followUp.ContentType = classified.ContentType
		followUp.Payload = classified.Payload
	}

	// Winning the awaiting_reply -> active transition is the right to append
	// the follow-up. A session deactivated or recovered while the provider
	// call was in flight loses this race and the reply is dropped.
	won, err := s.chats.TransitionState(ctx, sessionID, models.SessionStateAwaitingReply, models.SessionStateActive)
	if err != nil {
		s.recoverAfterInternalError(ctx, sessionID, start)
		return fmt.Errorf("return session to active: %w", err)
	}
	if !won {
		s.logger.Warn("dropping reply, session left awaiting state",
			zap.String("session_id", sessionID.String()))
		return genErr
	}

	if err := s.chats.AppendMessage(ctx, followUp); err != nil {
		// The session is already back to active, so a failed append leaves
		// it usable and the user can resend.
		return fmt.Errorf("append follow-up: %w", err)
	}

	if genErr == nil {
		s.logger.Info("reply generated",
			zap.String("session_id", sessionID.String()),
			zap.String("content_type", string(followUp.ContentType)),
			zap.Duration("elapsed", followUp.ProcessingTime))
	}

	return genErr
}

// recoverAfterInternalError returns a session to active after a storage error
// interrupted reply generation, so it is never stranded in awaiting_reply
// until the next restart. The conditional transition leaves deactivated
// sessions untouched; when it wins, a system notice stands in for the reply.
func (s *chatService) recoverAfterInternalError(ctx context.Context, sessionID uuid.UUID, start time.Time) {
	won, err := s.chats.TransitionState(ctx, sessionID, models.SessionStateAwaitingReply, models.SessionStateActive)
	if err != nil {
		s.logger.Error("failed to return session to active after error",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
		return
	}
	if !won {
		return
	}

	notice := &models.ChatMessage{
		SessionID:      sessionID,
		Role:           models.ChatRoleSystem,
		Content:        failedReplyContent,
		ContentType:    models.ContentTypeError,
		ProcessingTime: time.Since(start),
	}
	if err := s.chats.AppendMessage(ctx, notice); err != nil {
		s.logger.Error("failed to append failure notice",
			zap.String("session_id", sessionID.String()),
			zap.Error(err))
	}
}

// latestUserContent returns the content of the newest user message, the one
// the generated follow-up answers.
func latestUserContent(transcript []*models.ChatMessage) string {
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == models.ChatRoleUser {
			return transcript[i].Content
		}
	}
	return ""
}

// groundPayload attaches synced rows to a chart or data directive that names
// a data source. A grounding failure degrades to the bare directive rather
// than failing the reply.
func (s *chatService) groundPayload(ctx context.Context, sessionID uuid.UUID, classified *Classification) {
	if classified.ContentType != models.ContentTypeChart && classified.ContentType != models.ContentTypeData {
		return
	}

	raw, ok := classified.Payload["data_source_id"].(string)
	if !ok {
		return
	}
	dataSourceID, err := uuid.Parse(raw)
	if err != nil {
		s.logger.Warn("directive references unparseable data source id",
			zap.String("session_id", sessionID.String()),
			zap.String("data_source_id", raw))
		return
	}

	records, err := s.records.ListByDataSource(ctx, dataSourceID)
	if err != nil {
		s.logger.Warn("failed to ground reply against synced records",
			zap.String("session_id", sessionID.String()),
			zap.String("data_source_id", dataSourceID.String()),
			zap.Error(err))
		return
	}

	rows := make([]map[string]any, 0, groundingRowLimit)
	for _, r := range records {
		if len(rows) == groundingRowLimit {
			break
		}
		rows = append(rows, r.Fields)
	}
	classified.Payload["rows"] = rows
	classified.Payload["row_count"] = len(records)
}

func (s *chatService) complete(ctx context.Context, session *models.ChatSession, transcript []*models.ChatMessage) (*assistant.Completion, error) {
	contextJSON, err := json.Marshal(session.Context)
	if err != nil {
		contextJSON = []byte("{}")
	}

	req := assistant.Request{
		System: fmt.Sprintf(systemPromptTemplate, contextJSON),
	}
	for _, m := range transcript {
		switch m.Role {
		case models.ChatRoleUser:
			req.Messages = append(req.Messages, assistant.Message{Role: assistant.RoleUser, Content: m.Content})
		case models.ChatRoleAssistant:
			req.Messages = append(req.Messages, assistant.Message{Role: assistant.RoleAssistant, Content: m.Content})
		}
		// System notices are bookkeeping, not conversation.
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return s.client.Complete(callCtx, req)
}

// replyTask adapts reply generation to the work queue. The key ensures one
// in-flight generation per session.
type replyTask struct {
	workqueue.BaseTask
	sessionID uuid.UUID
	svc       *chatService
}

func newReplyTask(sessionID uuid.UUID, svc *chatService) *replyTask {
	return &replyTask{
		BaseTask: workqueue.NewBaseTask(
			fmt.Sprintf("reply %s", sessionID),
			fmt.Sprintf("reply:%s", sessionID),
			workqueue.KindAssistant,
		),
		sessionID: sessionID,
		svc:       svc,
	}
}

func (t *replyTask) Execute(ctx context.Context, _ workqueue.TaskEnqueuer) error {
	return t.svc.generateReply(ctx, t.sessionID)
}

var _ ChatService = (*chatService)(nil)
var _ workqueue.Task = (*replyTask)(nil)
