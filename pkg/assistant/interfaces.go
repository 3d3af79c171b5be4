// Package assistant provides generative reply clients for chat sessions.
package assistant

import (
	"context"
)

// Role identifies the author of a transcript turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the transcript sent to the provider.
type Message struct {
	Role    Role
	Content string
}

// Request carries everything one completion call needs. Messages must
// alternate in transcript order; System carries session context rendered as
// instructions.
type Request struct {
	System   string
	Messages []Message
}

// Completion is one generated reply with usage stats.
type Completion struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Client generates one reply for a transcript.
type Client interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}
