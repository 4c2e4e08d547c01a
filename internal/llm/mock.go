package llm

import (
	"context"
	"sync"
)

// MockCompleter is a test double for Completer. CompleteFunc takes precedence over Response.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, req Request) (string, error)
	Response     string
	Err          error

	mu    sync.Mutex
	calls []Request
}

// Complete records req and returns the configured reply.
func (m *MockCompleter) Complete(ctx context.Context, req Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// Calls returns the requests seen so far.
func (m *MockCompleter) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}
