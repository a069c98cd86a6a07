package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeethishS/Echo-Session/internal/chat"
	"github.com/NeethishS/Echo-Session/internal/config"
	"github.com/NeethishS/Echo-Session/internal/llm"
	"github.com/NeethishS/Echo-Session/internal/session"
	"github.com/NeethishS/Echo-Session/internal/store"
)

const testSessionID = "11111111-1111-1111-1111-111111111111"

func newTestServer(t *testing.T, engine llm.Client) (*httptest.Server, *store.InMemoryStore) {
	t.Helper()

	cfg := config.Config{
		ReadTimeout:    30 * time.Second,
		AllowAnyOrigin: true,
	}
	st := store.NewInMemoryStore()
	registry := session.NewRegistry(st, nil, "")
	registry.SetSummarizer(chat.NewSummarizer(st, engine, nil, 512))
	router := chat.NewRouter(registry, st, engine, chat.NewFunctionRegistry(), nil)

	srv := New(cfg, registry, router, st, nil, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockClient())

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "echosession", body["service"])
}

func TestGetSessionNotFound(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockClient())

	resp, err := http.Get(ts.URL + "/api/session/" + testSessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSessionMetadata(t *testing.T) {
	ts, st := newTestServer(t, llm.NewMockClient())
	require.NoError(t, st.CreateSession(context.Background(), testSessionID, "alice"))

	resp, err := http.Get(ts.URL + "/api/session/" + testSessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sess store.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sess))
	assert.Equal(t, testSessionID, sess.SessionID)
	assert.Equal(t, "alice", sess.UserID)
}

func TestGetSessionEventsEmpty(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockClient())

	resp, err := http.Get(ts.URL + "/api/session/" + testSessionID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		SessionID string        `json:"session_id"`
		Events    []store.Event `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testSessionID, body.SessionID)
	assert.NotNil(t, body.Events)
	assert.Empty(t, body.Events)
}

func TestWebSocketRejectsMalformedSessionID(t *testing.T) {
	ts, st := newTestServer(t, llm.NewMockClient())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/session/not-a-uuid"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	_, getErr := st.GetSession(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, getErr, store.ErrNotFound)
}

func TestWebSocketChatRoundTrip(t *testing.T) {
	engine := &llm.MockClient{StreamChunks: []string{"Hel", "lo"}}
	ts, st := newTestServer(t, engine)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/session/"+testSessionID+"?user_id=alice"), nil)
	require.NoError(t, err)

	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "system", welcome["type"])
	assert.Contains(t, welcome["content"], "Connected to AI assistant")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))

	var types []string
	var chunks []string
	for {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		typ := msg["type"].(string)
		types = append(types, typ)
		if typ == "ai_response_chunk" {
			chunks = append(chunks, msg["content"].(string))
		}
		if typ == "ai_response_complete" {
			break
		}
	}

	assert.Equal(t, "typing", types[0])
	assert.Contains(t, types, "ai_response_chunk")
	assert.Equal(t, "Hello", strings.Join(chunks, ""))

	// Disconnect triggers the post-session summarizer.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		sess, err := st.GetSession(context.Background(), testSessionID)
		return err == nil && sess.EndTime != nil
	}, 2*time.Second, 20*time.Millisecond)

	sess, err := st.GetSession(context.Background(), testSessionID)
	require.NoError(t, err)
	require.NotNil(t, sess.DurationSeconds)
	assert.GreaterOrEqual(t, *sess.DurationSeconds, 0)
	require.NotNil(t, sess.Summary)
	assert.NotEmpty(t, *sess.Summary)

	events, err := st.SessionEvents(context.Background(), testSessionID)
	require.NoError(t, err)
	var userMsgs, aiMsgs int
	for _, ev := range events {
		switch ev.Type {
		case store.EventUserMessage:
			userMsgs++
		case store.EventAIResponse:
			aiMsgs++
		}
	}
	assert.Equal(t, 1, userMsgs)
	assert.Equal(t, 1, aiMsgs)
}

func TestDocumentsEndpointsUnavailableWithoutRetrieval(t *testing.T) {
	ts, _ := newTestServer(t, llm.NewMockClient())

	resp, err := http.Post(ts.URL+"/api/documents/search", "application/json", strings.NewReader(`{"query":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
