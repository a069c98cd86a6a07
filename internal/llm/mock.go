package llm

import (
	"context"
	"io"
	"strings"
	"sync"
)

// MockClient is a deterministic completion engine for local use without an
// API key and for tests. Zero value behavior: streams echo the last user
// turn word by word, completions return a fixed summary line. Tests can
// script responses and inject failures through the exported fields.
type MockClient struct {
	mu       sync.Mutex
	requests [][]Message

	// StreamChunks, when set, is emitted verbatim for every stream.
	StreamChunks []string
	// StreamErr is returned by Recv after the scripted chunks, instead of io.EOF.
	StreamErr error
	// OpenErr causes StreamCompletion itself to fail.
	OpenErr error

	CompleteText string
	CompleteErr  error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) StreamCompletion(_ context.Context, messages []Message) (Stream, error) {
	c.record(messages)
	if c.OpenErr != nil {
		return nil, c.OpenErr
	}
	chunks := c.StreamChunks
	if chunks == nil {
		chunks = echoChunks(messages)
	}
	return &mockStream{chunks: chunks, err: c.StreamErr}, nil
}

func (c *MockClient) Completion(_ context.Context, messages []Message, _ int) (string, error) {
	c.record(messages)
	if c.CompleteErr != nil {
		return "", c.CompleteErr
	}
	if c.CompleteText != "" {
		return c.CompleteText, nil
	}
	return "The user chatted with a simulated assistant.", nil
}

// Requests returns a copy of every turn history the client has seen.
func (c *MockClient) Requests() [][]Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]Message, len(c.requests))
	copy(out, c.requests)
	return out
}

func (c *MockClient) record(messages []Message) {
	snapshot := make([]Message, len(messages))
	copy(snapshot, messages)
	c.mu.Lock()
	c.requests = append(c.requests, snapshot)
	c.mu.Unlock()
}

func echoChunks(messages []Message) []string {
	last := ""
	for _, m := range messages {
		if m.Role == RoleUser {
			last = m.Content
		}
	}
	words := strings.Fields("You said: " + last)
	chunks := make([]string, 0, len(words))
	for i, w := range words {
		if i > 0 {
			w = " " + w
		}
		chunks = append(chunks, w)
	}
	return chunks
}

type mockStream struct {
	chunks []string
	i      int
	err    error
}

func (s *mockStream) Recv() (string, error) {
	if s.i < len(s.chunks) {
		chunk := s.chunks[s.i]
		s.i++
		return chunk, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *mockStream) Close() error { return nil }
