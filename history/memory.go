package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps history in process. Sessions idle longer than the TTL
// are dropped lazily on access.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

type memorySession struct {
	entries   []Entry
	touchedAt time.Time
}

// NewMemoryStore creates a store. A zero ttl keeps history forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*memorySession), ttl: ttl, now: time.Now}
}

func (s *MemoryStore) expired(ms *memorySession) bool {
	return s.ttl > 0 && s.now().Sub(ms.touchedAt) > s.ttl
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, sessionID string, e Entry) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ms, ok := s.sessions[sessionID]
	if !ok || s.expired(ms) {
		ms = &memorySession{}
		s.sessions[sessionID] = ms
	}
	ms.entries = append(ms.entries, e)
	ms.touchedAt = s.now()
	return nil
}

// Turns implements Store.
func (s *MemoryStore) Turns(_ context.Context, sessionID string) ([]Entry, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.sessions[sessionID]
	if !ok || s.expired(ms) {
		return nil, ErrNotFound
	}
	return append([]Entry(nil), ms.entries...), nil
}

// Sessions implements Store.
func (s *MemoryStore) Sessions(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id, ms := range s.sessions {
		if !s.expired(ms) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}
