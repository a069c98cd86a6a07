package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/NeethishS/Echo-Session/internal/logger"
	"github.com/NeethishS/Echo-Session/internal/observability"
	"github.com/NeethishS/Echo-Session/internal/protocol"
	"github.com/NeethishS/Echo-Session/internal/store"
)

const welcomeMessage = "Connected to AI assistant. How can I help you today?"

type entry struct {
	conn      Conn
	writeMu   sync.Mutex
	history   *History
	lifecycle *stateless.StateMachine
}

// Registry is the in-memory mapping from session id to live connection
// handle and conversation state. It is the only component with real
// lifecycle logic; everything it persists goes through the transcript store.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	store        store.Store
	summarizer   Summarizer
	metrics      *observability.Metrics
	systemPrompt string
}

func NewRegistry(st store.Store, metrics *observability.Metrics, systemPrompt string) *Registry {
	return &Registry{
		entries:      make(map[string]*entry),
		store:        st,
		metrics:      metrics,
		systemPrompt: systemPrompt,
	}
}

// SetSummarizer wires the post-session summarizer after construction; the
// summarizer itself sends through this registry.
func (r *Registry) SetSummarizer(s Summarizer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summarizer = s
}

// Connect validates the session id, registers the connection handle, creates
// the session record, logs the session-start event and greets the client.
// A persistence failure is reported to the client but does not tear the
// transport down.
func (r *Registry) Connect(ctx context.Context, conn Conn, sessionID, userID string) error {
	if _, err := uuid.Parse(sessionID); err != nil {
		return ErrInvalidSessionID
	}

	e := &entry{
		conn:      conn,
		history:   NewHistory(r.systemPrompt),
		lifecycle: newLifecycle(),
	}

	r.mu.Lock()
	r.entries[sessionID] = e
	active := len(r.entries)
	r.mu.Unlock()

	if err := e.lifecycle.Fire(triggerRegistered); err != nil {
		logger.L.Error("lifecycle transition failed", "session_id", sessionID, "error", err)
	}
	r.metrics.SetActiveSessions(active)
	r.metrics.IncSessionEvent("connected")

	if err := r.initSession(ctx, sessionID, userID); err != nil {
		logger.L.Error("session initialization failed", "session_id", sessionID, "error", err)
		r.metrics.IncProviderError("store", "create_session")
		r.Send(sessionID, protocol.Error(fmt.Sprintf("Session initialization failed: %v", err)))
		return nil
	}

	r.Send(sessionID, protocol.System(welcomeMessage))
	return nil
}

func (r *Registry) initSession(ctx context.Context, sessionID, userID string) error {
	if err := r.store.CreateSession(ctx, sessionID, userID); err != nil {
		return err
	}
	if err := r.store.LogEvent(ctx, store.Event{
		SessionID: sessionID,
		Type:      store.EventSystem,
		Content:   "Session started",
		Metadata:  map[string]any{"user_id": userID},
	}); err != nil {
		return err
	}
	r.metrics.IncTranscriptEvent(string(store.EventSystem))
	return nil
}

// Disconnect removes the connection handle (subsequent sends become no-ops),
// runs the summarizer synchronously, then releases the in-memory history.
// Errors from summarization are logged, never propagated.
func (r *Registry) Disconnect(ctx context.Context, sessionID string) {
	r.mu.Lock()
	e, ok := r.entries[sessionID]
	if ok {
		delete(r.entries, sessionID)
	}
	active := len(r.entries)
	r.mu.Unlock()
	if !ok {
		return
	}

	if err := e.lifecycle.Fire(triggerTeardown); err != nil {
		logger.L.Error("lifecycle transition failed", "session_id", sessionID, "error", err)
	}
	r.metrics.SetActiveSessions(active)
	r.metrics.IncSessionEvent("disconnected")

	if r.summarizer != nil {
		if err := r.summarizer.Summarize(ctx, sessionID); err != nil {
			logger.L.Error("post-session processing failed", "session_id", sessionID, "error", err)
		}
	}

	e.history = nil
	if err := e.lifecycle.Fire(triggerReleased); err != nil {
		logger.L.Error("lifecycle transition failed", "session_id", sessionID, "error", err)
	}
	r.metrics.IncSessionEvent("closed")
}

// Send delivers one message to the session's connection, best-effort. When
// no live handle exists the message is silently dropped.
func (r *Registry) Send(sessionID string, msg any) {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.writeMu.Lock()
	err := e.conn.WriteJSON(msg)
	e.writeMu.Unlock()
	if err != nil {
		logger.L.Warn("websocket write failed", "session_id", sessionID, "error", err)
		return
	}
	if t, known := protocol.TypeOf(msg); known {
		r.metrics.IncWSMessage("outbound", string(t))
	}
}

// History returns the live conversation history for a session, or false when
// the session is gone.
func (r *Registry) History(sessionID string) (*History, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[sessionID]
	if !ok || e.history == nil {
		return nil, false
	}
	return e.history, true
}

// Status reports a session's lifecycle state; unknown ids are closed.
func (r *Registry) Status(sessionID string) Status {
	r.mu.RLock()
	e, ok := r.entries[sessionID]
	r.mu.RUnlock()
	if !ok {
		return StatusClosed
	}
	return e.lifecycle.MustState().(Status)
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
