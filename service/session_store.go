package service

import (
	"context"
	"sync"
	"time"

	"github.com/daureny/rag-chatbot-be/types"
)

const (
	// MaxHistory caps the number of retained question/answer pairs per
	// session.
	MaxHistory = 15

	// SessionMaxAge is how long an idle session survives.
	SessionMaxAge = 86400 * time.Second
)

// SessionStore keeps per-session dialog history. Sessions expire lazily:
// CleanExpired is called before each use rather than by a background sweeper.
type SessionStore interface {
	History(ctx context.Context, sessionID string) ([]types.QAPair, error)
	Append(ctx context.Context, sessionID string, pair types.QAPair) error
	Clear(ctx context.Context, sessionID string) (bool, error)
	Touch(ctx context.Context, sessionID string) error
	CleanExpired(ctx context.Context) error
	ActiveCount(ctx context.Context) (int, error)
}

// MemorySessionStore is the in-process SessionStore used when no MongoDB is
// configured.
type MemorySessionStore struct {
	mu           sync.RWMutex
	histories    map[string][]types.QAPair
	lastActivity map[string]time.Time

	now func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		histories:    make(map[string][]types.QAPair),
		lastActivity: make(map[string]time.Time),
		now:          time.Now,
	}
}

func (s *MemorySessionStore) History(ctx context.Context, sessionID string) ([]types.QAPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.histories[sessionID]
	out := make([]types.QAPair, len(history))
	copy(out, history)
	return out, nil
}

func (s *MemorySessionStore) Append(ctx context.Context, sessionID string, pair types.QAPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.histories[sessionID], pair)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	s.histories[sessionID] = history
	s.lastActivity[sessionID] = s.now()
	return nil
}

func (s *MemorySessionStore) Clear(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[sessionID]; !ok {
		return false, nil
	}
	s.histories[sessionID] = nil
	s.lastActivity[sessionID] = s.now()
	return true, nil
}

func (s *MemorySessionStore) Touch(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[sessionID]; !ok {
		s.histories[sessionID] = nil
	}
	s.lastActivity[sessionID] = s.now()
	return nil
}

func (s *MemorySessionStore) CleanExpired(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-SessionMaxAge)
	for sessionID, lastActive := range s.lastActivity {
		if lastActive.Before(cutoff) {
			delete(s.histories, sessionID)
			delete(s.lastActivity, sessionID)
		}
	}
	return nil
}

func (s *MemorySessionStore) ActiveCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.histories), nil
}
