package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	session   Session
	expiresAt time.Time
}

// Memory: сессии в памяти процесса; истёкшие удаляются при чтении и записи
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]entry
	now     func() time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[int64]entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[userID]
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, userID)
		return nil, nil
	}
	s := e.session
	return &s, nil
}

func (m *Memory) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.evictLocked(now)

	stored := *s
	stored.UpdatedAt = now
	m.entries[s.UserID] = entry{session: stored, expiresAt: now.Add(m.ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
	return nil
}

// Len: число живых сессий
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(m.now())
	return len(m.entries)
}

func (m *Memory) evictLocked(now time.Time) {
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
		}
	}
}
