package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeethishS/Echo-Session/internal/llm"
	"github.com/NeethishS/Echo-Session/internal/protocol"
	"github.com/NeethishS/Echo-Session/internal/session"
	"github.com/NeethishS/Echo-Session/internal/store"
)

const testSessionID = "11111111-1111-1111-1111-111111111111"

type fakeConn struct {
	mu       sync.Mutex
	messages []any
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, v)
	return nil
}

func (c *fakeConn) sent() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.messages))
	copy(out, c.messages)
	return out
}

// afterWelcome drops the connect-time system greeting so tests assert only
// on the turn under test.
func (c *fakeConn) afterWelcome() []any {
	msgs := c.sent()
	if len(msgs) > 0 {
		if m, ok := msgs[0].(protocol.SystemMessage); ok && strings.Contains(m.Content, "Connected") {
			return msgs[1:]
		}
	}
	return msgs
}

func newTestRouter(t *testing.T, engine llm.Client) (*Router, *fakeConn, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	registry := session.NewRegistry(st, nil, "You are a helpful assistant.")
	router := NewRouter(registry, st, engine, NewFunctionRegistry(), nil)

	conn := &fakeConn{}
	require.NoError(t, registry.Connect(context.Background(), conn, testSessionID, "alice"))
	return router, conn, st
}

func eventsOfType(t *testing.T, st store.Store, typ store.EventType) []store.Event {
	t.Helper()
	events, err := st.SessionEvents(context.Background(), testSessionID)
	require.NoError(t, err)
	var out []store.Event
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func typingValues(msgs []any) []bool {
	var out []bool
	for _, m := range msgs {
		if ti, ok := m.(protocol.TypingIndicator); ok {
			out = append(out, ti.Content)
		}
	}
	return out
}

func TestHandlePlainChatTurn(t *testing.T) {
	engine := &llm.MockClient{StreamChunks: []string{"Hel", "lo ", "world"}}
	router, conn, st := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, "hi")

	userEvents := eventsOfType(t, st, store.EventUserMessage)
	require.Len(t, userEvents, 1)
	assert.Equal(t, "hi", userEvents[0].Content)

	aiEvents := eventsOfType(t, st, store.EventAIResponse)
	require.Len(t, aiEvents, 1)
	assert.Equal(t, "Hello world", aiEvents[0].Content)

	msgs := conn.afterWelcome()
	assert.Equal(t, []bool{true, false}, typingValues(msgs))

	var chunks []string
	completeSeen := false
	for _, m := range msgs {
		switch msg := m.(type) {
		case protocol.ResponseChunk:
			assert.False(t, completeSeen, "chunk relayed after ai_response_complete")
			chunks = append(chunks, msg.Content)
		case protocol.ResponseComplete:
			completeSeen = true
		}
	}
	assert.True(t, completeSeen)
	require.NotEmpty(t, chunks)
	// Relayed chunks concatenate to exactly the logged response.
	assert.Equal(t, aiEvents[0].Content, strings.Join(chunks, ""))
}

func TestHandleJSONEnvelope(t *testing.T) {
	engine := &llm.MockClient{StreamChunks: []string{"ok"}}
	router, _, st := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, `{"type":"user_message","content":"what time is it"}`)

	userEvents := eventsOfType(t, st, store.EventUserMessage)
	require.Len(t, userEvents, 1)
	assert.Equal(t, "what time is it", userEvents[0].Content)
}

func TestHandleForwardsHistoryWithSystemPrompt(t *testing.T) {
	engine := &llm.MockClient{StreamChunks: []string{"fine"}}
	router, _, _ := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, "how are you")
	router.Handle(context.Background(), testSessionID, "and now?")

	reqs := engine.Requests()
	require.Len(t, reqs, 2)

	first := reqs[0]
	require.Len(t, first, 2)
	assert.Equal(t, llm.RoleSystem, first[0].Role)
	assert.Equal(t, llm.RoleUser, first[1].Role)

	// Second request carries the assistant turn from the first response.
	second := reqs[1]
	require.Len(t, second, 4)
	assert.Equal(t, llm.RoleAssistant, second[2].Role)
	assert.Equal(t, "fine", second[2].Content)
	assert.Equal(t, "and now?", second[3].Content)
}

func TestHandleStreamOpenFailure(t *testing.T) {
	engine := &llm.MockClient{OpenErr: errors.New("api unreachable")}
	router, conn, st := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, "hi")

	assert.Empty(t, eventsOfType(t, st, store.EventAIResponse))

	msgs := conn.afterWelcome()
	// Typing is cleared even on failure, so the client never hangs.
	assert.Equal(t, []bool{true, false}, typingValues(msgs))

	last := msgs[len(msgs)-1]
	errMsg, ok := last.(protocol.ErrorMessage)
	require.True(t, ok)
	assert.Contains(t, errMsg.Content, "api unreachable")
}

func TestHandleMidStreamFailure(t *testing.T) {
	engine := &llm.MockClient{StreamChunks: []string{"partial "}, StreamErr: errors.New("stream cut")}
	router, conn, st := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, "hi")

	// No partial ai_response event is written.
	assert.Empty(t, eventsOfType(t, st, store.EventAIResponse))

	msgs := conn.afterWelcome()
	assert.Equal(t, []bool{true, false}, typingValues(msgs))

	sawChunk := false
	for _, m := range msgs {
		if _, ok := m.(protocol.ResponseComplete); ok {
			t.Fatalf("ai_response_complete sent on a failed stream")
		}
		if _, ok := m.(protocol.ResponseChunk); ok {
			sawChunk = true
		}
	}
	assert.True(t, sawChunk, "fragments before the failure should still be relayed")
}

func TestFunctionCallWithoutNameSendsUsage(t *testing.T) {
	engine := llm.NewMockClient()
	router, conn, st := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, "/function")

	require.Len(t, eventsOfType(t, st, store.EventUserMessage), 1)
	assert.Empty(t, eventsOfType(t, st, store.EventFunctionCall))

	msgs := conn.afterWelcome()
	require.Len(t, msgs, 1)
	usage, ok := msgs[0].(protocol.SystemMessage)
	require.True(t, ok)
	assert.Contains(t, usage.Content, "Usage: /function")
	assert.Contains(t, usage.Content, "get_weather")
}

func TestFunctionCallGetWeather(t *testing.T) {
	engine := &llm.MockClient{StreamChunks: []string{"Nice weather!"}}
	router, conn, st := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, "/function get_weather")

	// Exactly one user_message (the synthesized narration is not re-logged),
	// one function_call, and a subsequent ai_response.
	assert.Len(t, eventsOfType(t, st, store.EventUserMessage), 1)

	fnEvents := eventsOfType(t, st, store.EventFunctionCall)
	require.Len(t, fnEvents, 1)
	assert.Equal(t, "Calling function: get_weather", fnEvents[0].Content)
	assert.Equal(t, "get_weather", fnEvents[0].Metadata["function"])

	require.Len(t, eventsOfType(t, st, store.EventAIResponse), 1)

	var fnResult *protocol.FunctionResult
	for _, m := range conn.afterWelcome() {
		if fr, ok := m.(protocol.FunctionResult); ok {
			fnResult = &fr
			break
		}
	}
	require.NotNil(t, fnResult)
	assert.Equal(t, "get_weather", fnResult.Function)
	result, ok := fnResult.Result.(FunctionResult)
	require.True(t, ok)
	assert.NotEmpty(t, result.Result)

	// The model narrates the function output.
	reqs := engine.Requests()
	require.Len(t, reqs, 1)
	lastTurn := reqs[0][len(reqs[0])-1]
	assert.Contains(t, lastTurn.Content, "Function get_weather returned:")
}

func TestFunctionCallUnknownNameEchoesParameters(t *testing.T) {
	engine := &llm.MockClient{StreamChunks: []string{"done"}}
	router, conn, _ := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, `/function frobnicate {"a": 1}`)

	var fnResult *protocol.FunctionResult
	for _, m := range conn.afterWelcome() {
		if fr, ok := m.(protocol.FunctionResult); ok {
			fnResult = &fr
			break
		}
	}
	require.NotNil(t, fnResult)
	result := fnResult.Result.(FunctionResult)
	assert.Equal(t, "Function frobnicate executed", result.Result)
	assert.Equal(t, float64(1), result.Data["a"])
}

func TestFunctionCallRejectsMalformedParameters(t *testing.T) {
	engine := llm.NewMockClient()
	router, conn, st := newTestRouter(t, engine)

	router.Handle(context.Background(), testSessionID, "/function get_weather {not json")

	assert.Empty(t, eventsOfType(t, st, store.EventFunctionCall))

	msgs := conn.afterWelcome()
	require.NotEmpty(t, msgs)
	errMsg, ok := msgs[len(msgs)-1].(protocol.ErrorMessage)
	require.True(t, ok)
	assert.Contains(t, errMsg.Content, "Function call failed")
}

func TestSplitFunctionCommand(t *testing.T) {
	tests := []struct {
		in         string
		wantName   string
		wantParams string
	}{
		{"/function", "", ""},
		{"/function   ", "", ""},
		{"/function get_weather", "get_weather", ""},
		{`/function get_weather {"city": "Oslo"}`, "get_weather", `{"city": "Oslo"}`},
		{`/function search_database {"q": "a b c"}`, "search_database", `{"q": "a b c"}`},
	}
	for _, tc := range tests {
		name, params := splitFunctionCommand(tc.in)
		assert.Equal(t, tc.wantName, name, "input %q", tc.in)
		assert.Equal(t, tc.wantParams, params, "input %q", tc.in)
	}
}
