package session

import "github.com/NeethishS/Echo-Session/internal/llm"

// History is the in-memory, role-tagged turn sequence mirroring what is sent
// to the completion engine. It lives exactly as long as the registry entry
// and is confined to the session's handler goroutine, so it carries no lock.
type History struct {
	turns []llm.Message
}

func NewHistory(systemPrompt string) *History {
	h := &History{}
	if systemPrompt != "" {
		h.turns = append(h.turns, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	}
	return h
}

func (h *History) AppendUser(content string) {
	h.turns = append(h.turns, llm.Message{Role: llm.RoleUser, Content: content})
}

// AppendAssistant records the full accumulated response. Callers append it
// only after the stream has finished so roles keep alternating correctly.
func (h *History) AppendAssistant(content string) {
	h.turns = append(h.turns, llm.Message{Role: llm.RoleAssistant, Content: content})
}

// Turns returns a copy of the history for a completion request.
func (h *History) Turns() []llm.Message {
	out := make([]llm.Message, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h *History) Len() int {
	return len(h.turns)
}
