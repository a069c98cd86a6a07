package store

import (
	"context"
	"errors"
	"time"
)

// EventType classifies transcript entries.
type EventType string

const (
	EventUserMessage  EventType = "user_message"
	EventAIResponse   EventType = "ai_response"
	EventFunctionCall EventType = "function_call"
	EventSystem       EventType = "system_event"
)

var ErrNotFound = errors.New("session not found")

// Session is the persisted metadata record for one connection's lifetime.
// End fields are written once at teardown.
type Session struct {
	SessionID       string     `json:"session_id"`
	UserID          string     `json:"user_id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds *int       `json:"duration_seconds,omitempty"`
	Summary         *string    `json:"session_summary,omitempty"`
}

// Event is one immutable transcript entry.
type Event struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"event_type"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
}

// SessionUpdate carries the teardown fields; nil fields are left untouched.
type SessionUpdate struct {
	EndTime         *time.Time
	DurationSeconds *int
	Summary         *string
}

// Store persists session metadata and the append-only event log.
type Store interface {
	CreateSession(ctx context.Context, sessionID, userID string) error
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, sessionID string, upd SessionUpdate) error
	LogEvent(ctx context.Context, ev Event) error
	SessionEvents(ctx context.Context, sessionID string) ([]Event, error)
	Close() error
}
