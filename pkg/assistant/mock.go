package assistant

import (
	"context"
	"sync"
)

// MockClient is a configurable fake assistant for tests.
type MockClient struct {
	mu sync.Mutex

	CompleteFunc func(ctx context.Context, req Request) (*Completion, error)

	CompleteCalls []Request
}

// NewMockClient creates a mock that echoes the last user turn by default.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}

	content := "ok"
	if n := len(req.Messages); n > 0 {
		content = req.Messages[n-1].Content
	}
	return &Completion{Content: content}, nil
}

// CompleteCallCount returns how many completions were requested.
func (m *MockClient) CompleteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}
