package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/somalab/autonomic-monitory/internal/record"
)

// MemoryStore - in-memory реализация CacheStore и Repository.
// Используется как деградированный режим при недоступности
// Redis/PostgreSQL и в тестах.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	latest   map[string]*record.Record
	archive  map[string][]*record.Record
}

// NewMemoryStore создает пустое in-memory хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		latest:   make(map[string]*record.Record),
		archive:  make(map[string][]*record.Record),
	}
}

// ===== CacheStore =====

func (s *MemoryStore) SetSession(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy := *session
	s.sessions[session.ID] = &copy
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	copy := *session
	return &copy, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.latest, sessionID)
	delete(s.archive, sessionID)
	return nil
}

func (s *MemoryStore) SetLatestRecord(ctx context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[rec.SessionID] = rec
	return nil
}

func (s *MemoryStore) GetLatestRecord(ctx context.Context, sessionID string) (*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.latest[sessionID]
	if !ok {
		return nil, fmt.Errorf("no record for session: %s", sessionID)
	}
	return rec, nil
}

// ===== Repository =====

func (s *MemoryStore) SaveSession(ctx context.Context, session *Session) error {
	return s.SetSession(ctx, session)
}

func (s *MemoryStore) ListSessions(ctx context.Context, limit, offset int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		copy := *session
		all = append(all, &copy)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartedAt.After(all[j].StartedAt)
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (s *MemoryStore) InsertRecord(ctx context.Context, rec *record.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive[rec.SessionID] = append(s.archive[rec.SessionID], rec)
	return nil
}

func (s *MemoryStore) ListRecords(ctx context.Context, sessionID string, limit, offset int) ([]*record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.archive[sessionID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*record.Record, end-offset)
	copy(out, all[offset:end])
	return out, nil
}
