package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)

// MemoryStore is the default in-process backend. State does not survive a
// restart, which is acceptable: handles are short-lived and session
// tracking is purely informational.
type MemoryStore struct {
	mu       sync.RWMutex
	handles  map[string]time.Time // id -> expiry of the tombstone
	sessions map[string]*TrackedSession
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		handles:  make(map[string]time.Time),
		sessions: make(map[string]*TrackedSession),
	}
}

// ConsumeHandle marks the handle spent, failing on reuse
func (s *MemoryStore) ConsumeHandle(_ context.Context, id string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, used := s.handles[id]; used {
		return ErrHandleUsed
	}
	s.handles[id] = expiresAt
	return nil
}

// PurgeExpiredHandles drops tombstones past their expiry
func (s *MemoryStore) PurgeExpiredHandles(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, expiresAt := range s.handles {
		if now.After(expiresAt) {
			delete(s.handles, id)
			purged++
		}
	}
	return purged, nil
}

// TrackSession upserts a tracked session
func (s *MemoryStore) TrackSession(_ context.Context, sess TrackedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sess.SessionID]; ok {
		existing.LastSeenAt = sess.LastSeenAt
		return nil
	}
	copied := sess
	s.sessions[sess.SessionID] = &copied
	return nil
}

// ListSessions returns tracked sessions, newest first
func (s *MemoryStore) ListSessions(_ context.Context) ([]TrackedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]TrackedSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// PurgeStaleSessions drops sessions last seen before olderThan
func (s *MemoryStore) PurgeStaleSessions(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, sess := range s.sessions {
		if sess.LastSeenAt.Before(olderThan) {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged, nil
}

// RemoveSession forgets a tracked session
func (s *MemoryStore) RemoveSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// Close is a no-op for the memory backend
func (s *MemoryStore) Close() error {
	return nil
}
