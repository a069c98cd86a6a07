package protocol

import "encoding/json"

// MessageType identifies websocket payload variants sent to the client.
type MessageType string

const (
	TypeSystem             MessageType = "system"
	TypeError              MessageType = "error"
	TypeTyping             MessageType = "typing"
	TypeAIResponseChunk    MessageType = "ai_response_chunk"
	TypeAIResponseComplete MessageType = "ai_response_complete"
	TypeFunctionResult     MessageType = "function_result"
)

// DefaultInboundType is assumed when a client message carries no type.
const DefaultInboundType = "user_message"

type SystemMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type TypingIndicator struct {
	Type    MessageType `json:"type"`
	Content bool        `json:"content"`
}

type ResponseChunk struct {
	Type    MessageType `json:"type"`
	Content string      `json:"content"`
}

type ResponseComplete struct {
	Type    MessageType `json:"type"`
	Content bool        `json:"content"`
}

type FunctionResult struct {
	Type     MessageType `json:"type"`
	Function string      `json:"function"`
	Result   any         `json:"result"`
}

func System(content string) SystemMessage {
	return SystemMessage{Type: TypeSystem, Content: content}
}

func Error(content string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Content: content}
}

func Typing(generating bool) TypingIndicator {
	return TypingIndicator{Type: TypeTyping, Content: generating}
}

func Chunk(content string) ResponseChunk {
	return ResponseChunk{Type: TypeAIResponseChunk, Content: content}
}

func Complete() ResponseComplete {
	return ResponseComplete{Type: TypeAIResponseComplete, Content: true}
}

// TypeOf reports the message type of an outbound payload, for metrics.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case SystemMessage:
		return m.Type, true
	case ErrorMessage:
		return m.Type, true
	case TypingIndicator:
		return m.Type, true
	case ResponseChunk:
		return m.Type, true
	case ResponseComplete:
		return m.Type, true
	case FunctionResult:
		return m.Type, true
	default:
		return "", false
	}
}

// ClientMessage is the optional JSON envelope a client may wrap its text in.
type ClientMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// ParseClientMessage resolves an inbound text frame into its type and
// content. Raw non-JSON text (or a JSON object without a content field) is
// treated as the content itself with the default type, so plain clients work
// without an envelope.
func ParseClientMessage(raw string) (msgType, content string) {
	var msg ClientMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return DefaultInboundType, raw
	}
	content = msg.Content
	if content == "" {
		content = raw
	}
	msgType = msg.Type
	if msgType == "" {
		msgType = DefaultInboundType
	}
	return msgType, content
}
