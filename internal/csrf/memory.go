package csrf

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	token     string
	expiresAt time.Time
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memorySession)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || !now.Before(sess.expiresAt) {
		return "", ErrNoToken
	}
	return sess.token, nil
}

func (s *MemoryStore) SetIfAbsent(_ context.Context, sessionID string, token string, expiresAt time.Time, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok && now.Before(sess.expiresAt) {
		return sess.token, nil
	}
	s.sessions[sessionID] = memorySession{token: token, expiresAt: expiresAt}
	return token, nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !now.Before(sess.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
