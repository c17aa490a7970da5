package copilot

import (
	"context"
	"encoding/json"
	"strings"
)

// ToolDescriptor is the declarative tool schema exposed to the LLM.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// RequiredFields returns the "required" list of the input schema.
func (d ToolDescriptor) RequiredFields() []string {
	switch req := d.InputSchema["required"].(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	ArgsJSON json.RawMessage `json:"arguments,omitempty"`
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextContent returns a text content block.
func TextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// CallToolResult is what a tool backend returns, in MCP shape.
type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// Text joins the text of every block.
func (r *CallToolResult) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, c := range r.Content {
		b.WriteString(c.Text)
	}
	return b.String()
}

// ToolResult is the normalized outcome of one tool call.
type ToolResult struct {
	CallID  string
	Name    string
	Text    string
	IsError bool
	Raw     *CallToolResult
}

// ToolSource lists and executes tools.
type ToolSource interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args json.RawMessage) (*CallToolResult, error)
}

// LocalToolSource is a ToolSource whose tool names are known without I/O.
type LocalToolSource interface {
	ToolSource
	IsTool(name string) bool
}
