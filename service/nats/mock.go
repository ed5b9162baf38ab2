package nats

import (
	"context"
	"sync"
)

// MockPublisher keeps published events in memory instead of sending them to
// JetStream.
type MockPublisher struct {
	mu     sync.Mutex
	events []*RecordEvent
	err    error
	closed bool
}

var _ Publisher = (*MockPublisher)(nil)

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// FailWith makes every later PublishRecord return err. nil restores success.
func (m *MockPublisher) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *MockPublisher) PublishRecord(ctx context.Context, event *RecordEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *MockPublisher) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Events returns the events published so far, optionally only those on
// subject. An empty subject returns everything.
func (m *MockPublisher) Events(subject string) []*RecordEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*RecordEvent
	for _, e := range m.events {
		if subject == "" || e.Subject() == subject {
			out = append(out, e)
		}
	}
	return out
}
