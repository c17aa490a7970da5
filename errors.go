package copilot

import (
	"errors"
	"fmt"
)

var (
	ErrNoProvider       = errors.New("copilot: provider is required")
	ErrEmptyInput       = errors.New("copilot: input is empty")
	ErrGenerating       = errors.New("copilot: a response is already being generated")
	ErrToolsUnavailable = errors.New("copilot: tools are not loaded or the LLM is disabled")
)

// ArgumentError reports missing or malformed tool arguments.
type ArgumentError struct {
	Tool   string
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, e.Reason)
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s argument is required", e.Field)
	}
	return fmt.Sprintf("%s argument %s", e.Field, e.Reason)
}

// UnsafeOperationError reports a query rejected by the destructive statement denylist.
type UnsafeOperationError struct {
	Keyword string
}

func (e *UnsafeOperationError) Error() string {
	return "Dangerous operations (DROP, DELETE, TRUNCATE, ALTER) are not allowed"
}

// ToolExecutionError wraps a backend failure. Its message is the backend's
// message so it can be shown verbatim in the conversation.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tool %s failed", e.Tool)
	}
	return e.Err.Error()
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// StreamError reports an LLM transport failure.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return "stream failed"
	}
	return e.Err.Error()
}

func (e *StreamError) Unwrap() error { return e.Err }

// ToolNotFoundError reports a call to a tool no backend provides.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("no MCP client found for tool: %s", e.Name)
}
