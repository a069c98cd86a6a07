package chat

import (
	"fmt"
	"sort"
	"sync"
)

// FunctionResult is the structured output of one simulated function call.
type FunctionResult struct {
	Result string         `json:"result"`
	Data   map[string]any `json:"data,omitempty"`
}

// FunctionHandler produces a result for a named function invocation.
type FunctionHandler func(params map[string]any) FunctionResult

// FunctionRegistry maps function names to handlers. The built-ins are
// simulated stand-ins for a real tool dispatcher; callers can register
// additional handlers without touching the router.
type FunctionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]FunctionHandler
}

func NewFunctionRegistry() *FunctionRegistry {
	r := &FunctionRegistry{handlers: make(map[string]FunctionHandler)}
	r.Register("get_weather", func(map[string]any) FunctionResult {
		return FunctionResult{
			Result: "The weather is sunny with a temperature of 72°F",
			Data:   map[string]any{"temperature": 72, "condition": "sunny"},
		}
	})
	r.Register("get_user_info", func(map[string]any) FunctionResult {
		return FunctionResult{
			Result: "User information retrieved successfully",
			Data:   map[string]any{"name": "Test User", "email": "user@example.com"},
		}
	})
	r.Register("search_database", func(map[string]any) FunctionResult {
		return FunctionResult{
			Result: "Found 5 matching records",
			Data:   map[string]any{"count": 5, "records": []string{"Record 1", "Record 2", "Record 3"}},
		}
	})
	return r
}

func (r *FunctionRegistry) Register(name string, h FunctionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names lists registered functions in sorted order.
func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call invokes the named handler. Unknown names echo their parameters back
// rather than failing.
func (r *FunctionRegistry) Call(name string, params map[string]any) FunctionResult {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return FunctionResult{
			Result: fmt.Sprintf("Function %s executed", name),
			Data:   params,
		}
	}
	return h(params)
}
