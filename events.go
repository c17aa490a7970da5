package copilot

import (
	"encoding/json"
	"slices"
)

// State is the Conversation's loop state.
type State string

const (
	StateIdle           State = "idle"
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
)

// RenderedToolCall is the observable state of one tool call.
type RenderedToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
	Running   bool
	Error     string
	Response  *CallToolResult
}

// Snapshot is an immutable copy of the conversation handed to observers.
type Snapshot struct {
	State      State
	Generating bool
	History    []Message
	// ToolCalls holds every call since the last Clear, in dispatch order.
	ToolCalls []RenderedToolCall
}

// LastAssistant returns the last assistant message, if any.
func (s Snapshot) LastAssistant() (Message, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Role == RoleAssistant {
			return s.History[i], true
		}
	}
	return Message{}, false
}

// RunningToolCalls counts calls still in flight.
func (s Snapshot) RunningToolCalls() int {
	n := 0
	for _, tc := range s.ToolCalls {
		if tc.Running {
			n++
		}
	}
	return n
}

// ToolCall looks up a rendered call by id.
func (s Snapshot) ToolCall(id string) (RenderedToolCall, bool) {
	i := slices.IndexFunc(s.ToolCalls, func(tc RenderedToolCall) bool { return tc.ID == id })
	if i < 0 {
		return RenderedToolCall{}, false
	}
	return s.ToolCalls[i], true
}

// Observer receives a snapshot after every state change.
type Observer func(Snapshot)
