package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process transcript store for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	events   map[string][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		events:   make(map[string][]Event),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &Session{
		SessionID: sessionID,
		UserID:    userID,
		StartTime: time.Now().UTC(),
	}
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *sess
	return &c, nil
}

func (s *InMemoryStore) UpdateSession(_ context.Context, sessionID string, upd SessionUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if upd.EndTime != nil {
		sess.EndTime = upd.EndTime
	}
	if upd.DurationSeconds != nil {
		sess.DurationSeconds = upd.DurationSeconds
	}
	if upd.Summary != nil {
		sess.Summary = upd.Summary
	}
	return nil
}

func (s *InMemoryStore) LogEvent(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	s.events[ev.SessionID] = append(s.events[ev.SessionID], ev)
	return nil
}

func (s *InMemoryStore) SessionEvents(_ context.Context, sessionID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[sessionID]
	out := make([]Event, len(src))
	copy(out, src)
	// Stable sort keeps insertion order for equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
