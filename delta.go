package copilot

// DeltaKind describes the kind of a MessageDelta.
type DeltaKind string

const (
	DeltaText     DeltaKind = "text"
	DeltaToolCall DeltaKind = "tool_call"
	DeltaUsage    DeltaKind = "usage"
	DeltaStop     DeltaKind = "stop"
)

// MessageDelta is one classified chunk of a provider stream.
// It must never be appended into the conversation history.
type MessageDelta interface {
	deltaKind() DeltaKind
}

// TextDelta streams user-visible assistant text.
type TextDelta struct {
	Delta string
}

func (TextDelta) deltaKind() DeltaKind { return DeltaText }

// ToolCallDelta streams tool call construction.
// Index identifies the call within the turn; CallID and Name are usually only
// present on the first fragment.
type ToolCallDelta struct {
	Index     int
	CallID    string
	Name      string
	ArgsDelta string
}

func (ToolCallDelta) deltaKind() DeltaKind { return DeltaToolCall }

// UsageDelta reports token usage, typically once near the end of a stream.
type UsageDelta struct {
	Usage Usage
}

func (UsageDelta) deltaKind() DeltaKind { return DeltaUsage }

// StopDelta reports the provider's finish reason.
type StopDelta struct {
	Reason StopReason
}

func (StopDelta) deltaKind() DeltaKind { return DeltaStop }

// KindOf returns the kind of d, or "" for nil.
func KindOf(d MessageDelta) DeltaKind {
	if d == nil {
		return ""
	}
	return d.deltaKind()
}
