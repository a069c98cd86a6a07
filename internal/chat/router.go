package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/NeethishS/Echo-Session/internal/llm"
	"github.com/NeethishS/Echo-Session/internal/logger"
	"github.com/NeethishS/Echo-Session/internal/observability"
	"github.com/NeethishS/Echo-Session/internal/protocol"
	"github.com/NeethishS/Echo-Session/internal/session"
	"github.com/NeethishS/Echo-Session/internal/store"
)

const functionCommandPrefix = "/function"

// Router classifies each inbound client message and dispatches it to the
// function-call path or the streaming chat path. Handling failures are
// reported to the client; the connection is never closed here.
type Router struct {
	registry  *session.Registry
	store     store.Store
	engine    llm.Client
	functions *FunctionRegistry
	metrics   *observability.Metrics
}

func NewRouter(registry *session.Registry, st store.Store, engine llm.Client, functions *FunctionRegistry, metrics *observability.Metrics) *Router {
	return &Router{
		registry:  registry,
		store:     st,
		engine:    engine,
		functions: functions,
		metrics:   metrics,
	}
}

// Handle processes one inbound text frame. The user message is logged before
// any downstream processing so the transcript stays authoritative even when
// a later step fails.
func (rt *Router) Handle(ctx context.Context, sessionID, raw string) {
	msgType, content := protocol.ParseClientMessage(raw)
	rt.metrics.IncWSMessage("inbound", msgType)

	if err := rt.logEvent(ctx, sessionID, store.EventUserMessage, content, nil); err != nil {
		logger.L.Error("failed to log user message", "session_id", sessionID, "error", err)
		rt.metrics.IncProviderError("store", "log_event")
		rt.registry.Send(sessionID, protocol.Error(fmt.Sprintf("Error processing message: %v", err)))
		return
	}

	if strings.HasPrefix(strings.ToLower(content), functionCommandPrefix) {
		rt.handleFunctionCall(ctx, sessionID, content)
		return
	}

	rt.streamResponse(ctx, sessionID, content)
}

// streamResponse relays a streamed completion to the client fragment by
// fragment, preserving arrival order, and logs one ai_response event with
// the full accumulated content once the stream is exhausted. On failure the
// typing indicator is always cleared before the error is reported and no
// partial ai_response event is written.
func (rt *Router) streamResponse(ctx context.Context, sessionID, userText string) {
	rt.registry.Send(sessionID, protocol.Typing(true))

	history, ok := rt.registry.History(sessionID)
	if !ok {
		// Session already torn down; nothing to relay to.
		return
	}
	history.AppendUser(userText)

	stream, err := rt.engine.StreamCompletion(ctx, history.Turns())
	if err != nil {
		rt.failStream(sessionID, "stream_open", err)
		return
	}
	defer stream.Close()

	var full strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			rt.failStream(sessionID, "stream_recv", err)
			return
		}
		full.WriteString(chunk)
		rt.registry.Send(sessionID, protocol.Chunk(chunk))
	}

	rt.registry.Send(sessionID, protocol.Typing(false))
	rt.registry.Send(sessionID, protocol.Complete())

	response := full.String()
	history.AppendAssistant(response)

	if err := rt.logEvent(ctx, sessionID, store.EventAIResponse, response, nil); err != nil {
		logger.L.Error("failed to log ai response", "session_id", sessionID, "error", err)
		rt.metrics.IncProviderError("store", "log_event")
		rt.registry.Send(sessionID, protocol.Error(fmt.Sprintf("Error generating response: %v", err)))
	}
}

func (rt *Router) failStream(sessionID, op string, err error) {
	logger.L.Error("completion stream failed", "session_id", sessionID, "op", op, "error", err)
	rt.metrics.IncProviderError("llm", op)
	rt.registry.Send(sessionID, protocol.Typing(false))
	rt.registry.Send(sessionID, protocol.Error(fmt.Sprintf("Error generating response: %v", err)))
}

// handleFunctionCall parses "/function <name> [json-params]", runs the
// simulated function and narrates the result through the streaming path.
// The synthesized narration text is not logged as a user_message.
func (rt *Router) handleFunctionCall(ctx context.Context, sessionID, text string) {
	name, rawParams := splitFunctionCommand(text)
	if name == "" {
		usage := fmt.Sprintf("Usage: /function <function_name> [parameters]\nAvailable functions: %s",
			strings.Join(rt.functions.Names(), ", "))
		rt.registry.Send(sessionID, protocol.System(usage))
		return
	}

	params := map[string]any{}
	if rawParams != "" {
		if err := json.Unmarshal([]byte(rawParams), &params); err != nil {
			rt.registry.Send(sessionID, protocol.Error(fmt.Sprintf("Function call failed: %v", err)))
			return
		}
	}

	meta := map[string]any{"function": name, "parameters": params}
	if err := rt.logEvent(ctx, sessionID, store.EventFunctionCall, fmt.Sprintf("Calling function: %s", name), meta); err != nil {
		logger.L.Error("failed to log function call", "session_id", sessionID, "error", err)
		rt.metrics.IncProviderError("store", "log_event")
		rt.registry.Send(sessionID, protocol.Error(fmt.Sprintf("Function call failed: %v", err)))
		return
	}

	result := rt.functions.Call(name, params)
	rt.registry.Send(sessionID, protocol.FunctionResult{
		Type:     protocol.TypeFunctionResult,
		Function: name,
		Result:   result,
	})

	rt.streamResponse(ctx, sessionID, fmt.Sprintf("Function %s returned: %s", name, result.Result))
}

func (rt *Router) logEvent(ctx context.Context, sessionID string, typ store.EventType, content string, meta map[string]any) error {
	err := rt.store.LogEvent(ctx, store.Event{
		SessionID: sessionID,
		Type:      typ,
		Content:   content,
		Metadata:  meta,
	})
	if err == nil {
		rt.metrics.IncTranscriptEvent(string(typ))
	}
	return err
}

// splitFunctionCommand splits off the command token and function name,
// leaving the remainder intact so JSON parameters survive embedded spaces.
func splitFunctionCommand(text string) (name, params string) {
	rest := strings.TrimSpace(text)
	i := strings.IndexFunc(rest, unicode.IsSpace)
	if i < 0 {
		return "", ""
	}
	rest = strings.TrimSpace(rest[i:])
	if rest == "" {
		return "", ""
	}
	j := strings.IndexFunc(rest, unicode.IsSpace)
	if j < 0 {
		return rest, ""
	}
	return rest[:j], strings.TrimSpace(rest[j:])
}
