package testutil

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"github.com/inspirepan/copilot"
)

// ToolHandler answers one call of a FakeSource tool.
type ToolHandler func(ctx context.Context, args json.RawMessage) (*copilot.CallToolResult, error)

// FakeSource is an in-memory tool source that records every call it serves.
type FakeSource struct {
	Tools    []copilot.ToolDescriptor
	Handlers map[string]ToolHandler
	ListErr  error

	mu    sync.Mutex
	calls []string
}

func (f *FakeSource) ListTools(context.Context) ([]copilot.ToolDescriptor, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Tools, nil
}

func (f *FakeSource) CallTool(ctx context.Context, name string, args json.RawMessage) (*copilot.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
	h, ok := f.Handlers[name]
	if !ok {
		return &copilot.CallToolResult{Content: []copilot.Content{copilot.TextContent("ok")}}, nil
	}
	return h(ctx, args)
}

// IsTool makes FakeSource usable as a local source.
func (f *FakeSource) IsTool(name string) bool {
	return slices.ContainsFunc(f.Tools, func(d copilot.ToolDescriptor) bool { return d.Name == name })
}

// Calls returns the names of every call served so far.
func (f *FakeSource) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// TextResult wraps text in a successful result.
func TextResult(text string) *copilot.CallToolResult {
	return &copilot.CallToolResult{Content: []copilot.Content{copilot.TextContent(text)}}
}
