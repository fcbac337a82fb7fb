package notify

import (
	"context"
	"sync"
)

// Memory records notifications in memory for tests and local runs.
type Memory struct {
	mu   sync.Mutex
	msgs []CompletionMessage
}

// NewMemory constructs an empty in-memory notifier.
func NewMemory() *Memory {
	return &Memory{}
}

// RunCompleted implements Notifier.
func (m *Memory) RunCompleted(_ context.Context, msg CompletionMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

// Messages returns a copy of every recorded message.
func (m *Memory) Messages() []CompletionMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionMessage(nil), m.msgs...)
}
