package guard

import (
	"context"
	"sync"
)

type state int

const (
	sending state = iota + 1
	sent
)

// Memory is a process-local Guard, used when Redis is not configured.
type Memory struct {
	mu    sync.Mutex
	items map[string]state
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]state)}
}

func (m *Memory) Begin(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.items[key] {
	case sent:
		return ErrAlreadySent
	case sending:
		return ErrInProgress
	}
	m.items[key] = sending
	return nil
}

func (m *Memory) MarkSent(_ context.Context, key string) error {
	m.mu.Lock()
	m.items[key] = sent
	m.mu.Unlock()
	return nil
}

func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.items[key] == sending {
		delete(m.items, key)
	}
	return nil
}
