package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// Invoker executes single tool calls through a Registry. It never returns an
// error: every failure becomes a ToolResult with IsError set.
type Invoker struct {
	registry *Registry
	logger   *slog.Logger
}

// NewInvoker creates an Invoker. A nil logger uses slog.Default().
func NewInvoker(registry *Registry, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{registry: registry, logger: logger}
}

// CallTool runs one call and normalizes its outcome.
func (inv *Invoker) CallTool(ctx context.Context, call ToolCall) ToolResult {
	start := time.Now()
	res, err := inv.callTool(ctx, call)
	if err != nil {
		inv.logger.Warn("tool call failed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration", time.Since(start),
			"error", err,
		)
		return ToolResult{CallID: call.ID, Name: call.Name, IsError: true, Text: err.Error(), Raw: res}
	}

	text := res.Text()
	inv.logger.Debug("tool call finished",
		"tool", call.Name,
		"call_id", call.ID,
		"duration", time.Since(start),
		"is_error", res.IsError,
	)
	return ToolResult{CallID: call.ID, Name: call.Name, Text: text, IsError: res.IsError, Raw: res}
}

func (inv *Invoker) callTool(ctx context.Context, call ToolCall) (*CallToolResult, error) {
	if inv.registry == nil {
		return nil, &ToolNotFoundError{Name: call.Name}
	}
	src, err := inv.registry.Resolve(call.Name)
	if err != nil {
		return nil, err
	}

	args, err := normalizeArgs(call)
	if err != nil {
		return nil, err
	}
	if d, ok := inv.registry.Descriptor(call.Name); ok {
		if err := validateRequired(d, args); err != nil {
			return nil, err
		}
	}

	res, err := src.CallTool(ctx, call.Name, args)
	if err != nil {
		var argErr *ArgumentError
		var unsafeErr *UnsafeOperationError
		var notFound *ToolNotFoundError
		var execErr *ToolExecutionError
		switch {
		case errors.As(err, &argErr), errors.As(err, &unsafeErr), errors.As(err, &notFound), errors.As(err, &execErr):
			return nil, err
		default:
			return nil, &ToolExecutionError{Tool: call.Name, Err: err}
		}
	}
	if res == nil {
		res = &CallToolResult{}
	}
	return res, nil
}

// normalizeArgs checks that the arguments form a JSON object. Empty
// arguments are treated as {}.
func normalizeArgs(call ToolCall) (json.RawMessage, error) {
	raw := bytes.TrimSpace(call.ArgsJSON)
	if len(raw) == 0 {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, &ArgumentError{Tool: call.Name, Reason: "arguments must be a JSON object: " + err.Error()}
	}
	if obj == nil {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(raw), nil
}

func validateRequired(d ToolDescriptor, args json.RawMessage) error {
	required := d.RequiredFields()
	if len(required) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return &ArgumentError{Tool: d.Name, Reason: err.Error()}
	}
	for _, field := range required {
		v, ok := obj[field]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return &ArgumentError{Tool: d.Name, Field: field}
		}
	}
	return nil
}
