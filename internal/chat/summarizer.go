package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NeethishS/Echo-Session/internal/llm"
	"github.com/NeethishS/Echo-Session/internal/logger"
	"github.com/NeethishS/Echo-Session/internal/observability"
	"github.com/NeethishS/Echo-Session/internal/store"
)

const noConversationSummary = "No conversation occurred in this session."

// Summarizer turns a finished session's transcript into a short summary and
// closes out the session record. It runs synchronously inside teardown and
// never lets an error escape in a way that would break the transport layer:
// every failure path still attempts the end_time update.
type Summarizer struct {
	store         store.Store
	engine        llm.Client
	metrics       *observability.Metrics
	summaryTokens int

	now func() time.Time
}

func NewSummarizer(st store.Store, engine llm.Client, metrics *observability.Metrics, summaryTokens int) *Summarizer {
	return &Summarizer{
		store:         st,
		engine:        engine,
		metrics:       metrics,
		summaryTokens: summaryTokens,
		now:           time.Now,
	}
}

func (s *Summarizer) Summarize(ctx context.Context, sessionID string) error {
	started := time.Now()
	defer func() { s.metrics.ObserveSummarize(time.Since(started)) }()

	sess, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		// Never created or already torn down elsewhere.
		return nil
	}
	if err != nil {
		return s.fallback(ctx, sessionID, err)
	}
	if sess.EndTime != nil {
		// Teardown already completed; keep the operation idempotent.
		return nil
	}

	events, err := s.store.SessionEvents(ctx, sessionID)
	if err != nil {
		return s.fallback(ctx, sessionID, err)
	}

	if len(events) == 0 {
		endTime := s.now().UTC()
		duration := clampDuration(sess.StartTime, endTime)
		summary := noConversationSummary
		return s.store.UpdateSession(ctx, sessionID, store.SessionUpdate{
			EndTime:         &endTime,
			DurationSeconds: &duration,
			Summary:         &summary,
		})
	}

	summary, err := s.engine.Completion(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: buildSummaryPrompt(events)},
	}, s.summaryTokens)
	if err != nil {
		s.metrics.IncProviderError("llm", "summarize")
		return s.fallback(ctx, sessionID, err)
	}

	endTime := s.now().UTC()
	duration := clampDuration(sess.StartTime, endTime)
	if err := s.store.UpdateSession(ctx, sessionID, store.SessionUpdate{
		EndTime:         &endTime,
		DurationSeconds: &duration,
		Summary:         &summary,
	}); err != nil {
		return fmt.Errorf("update session after summary: %w", err)
	}

	if err := s.store.LogEvent(ctx, store.Event{
		SessionID: sessionID,
		Type:      store.EventSystem,
		Content:   "Session ended and summary generated",
		Metadata: map[string]any{
			"duration_seconds": duration,
			"event_count":      len(events),
		},
	}); err != nil {
		logger.L.Warn("failed to log summary completion event", "session_id", sessionID, "error", err)
	} else {
		s.metrics.IncTranscriptEvent(string(store.EventSystem))
	}
	return nil
}

// fallback still records end_time so a session is never left open in the
// store; if even that fails the error is logged and swallowed.
func (s *Summarizer) fallback(ctx context.Context, sessionID string, cause error) error {
	logger.L.Error("post-session summary failed", "session_id", sessionID, "error", cause)
	endTime := s.now().UTC()
	summary := fmt.Sprintf("Summary generation failed: %v", cause)
	if err := s.store.UpdateSession(ctx, sessionID, store.SessionUpdate{
		EndTime: &endTime,
		Summary: &summary,
	}); err != nil {
		logger.L.Error("failed to update session end time", "session_id", sessionID, "error", err)
	}
	return nil
}

// clampDuration computes whole seconds between start and end, treating a
// missing start as end (clock skew or malformed rows must not produce a
// negative duration).
func clampDuration(start, end time.Time) int {
	if start.IsZero() {
		return 0
	}
	d := int(end.Sub(start).Seconds())
	if d < 0 {
		return 0
	}
	return d
}

// buildSummaryPrompt renders the transcript and the summary instructions.
// Only user and assistant turns contribute narrative lines; function calls
// appear as bracketed markers and other event types are omitted.
func buildSummaryPrompt(events []store.Event) string {
	var b strings.Builder
	b.WriteString("Conversation History:\n\n")
	for _, ev := range events {
		switch ev.Type {
		case store.EventUserMessage:
			fmt.Fprintf(&b, "User: %s\n", ev.Content)
		case store.EventAIResponse:
			fmt.Fprintf(&b, "AI: %s\n", ev.Content)
		case store.EventFunctionCall:
			fmt.Fprintf(&b, "[Function Call: %s]\n", ev.Content)
		}
	}

	b.WriteString(`
Please provide a concise summary of this conversation session. Include:
1. Main topics discussed
2. Key questions asked by the user
3. Important information provided
4. Overall conversation outcome

Keep the summary brief (3-5 sentences).`)
	return b.String()
}
