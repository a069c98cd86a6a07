package llm

import "context"

// Role tags one conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one ordered turn sent to the completion engine.
type Message struct {
	Role    Role
	Content string
}

// Stream yields response fragments in arrival order. Recv returns io.EOF
// when the stream is exhausted.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Client is the completion engine contract; it is easy to mock in tests.
type Client interface {
	// StreamCompletion starts a streamed completion over the full turn history.
	StreamCompletion(ctx context.Context, messages []Message) (Stream, error)
	// Completion returns a full response in one shot (used for summaries).
	Completion(ctx context.Context, messages []Message, maxTokens int) (string, error)
}
