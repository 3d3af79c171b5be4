package source

import (
	"context"
	"sync"
)

// MockClient is a configurable fake record API client for tests.
type MockClient struct {
	mu sync.Mutex

	FetchFunc          func(ctx context.Context, query QueryDescriptor) ([]Record, error)
	TestConnectionFunc func(ctx context.Context) error

	FetchCalls          []QueryDescriptor
	TestConnectionCalls int
}

// NewMockClient creates a mock that returns empty results by default.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Fetch(ctx context.Context, query QueryDescriptor) ([]Record, error) {
	m.mu.Lock()
	m.FetchCalls = append(m.FetchCalls, query)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, query)
	}
	return nil, nil
}

func (m *MockClient) TestConnection(ctx context.Context) error {
	m.mu.Lock()
	m.TestConnectionCalls++
	m.mu.Unlock()

	if m.TestConnectionFunc != nil {
		return m.TestConnectionFunc(ctx)
	}
	return nil
}

// FetchCallCount returns how many fetches were made.
func (m *MockClient) FetchCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.FetchCalls)
}
