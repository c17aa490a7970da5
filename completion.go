package copilot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Completion is the folded result of one provider stream.
type Completion struct {
	Content    string
	ToolCalls  []ToolCall
	Usage      *Usage
	StopReason StopReason
}

type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// completionFold keeps the two accumulators of a streaming round: the
// content buffer and the per-call argument buffers.
type completionFold struct {
	content    strings.Builder
	toolCalls  map[int]*toolCallAccumulator
	usage      *Usage
	stopReason StopReason
}

func newCompletionFold() *completionFold {
	return &completionFold{toolCalls: make(map[int]*toolCallAccumulator)}
}

// apply folds one delta and reports whether the content buffer changed.
func (f *completionFold) apply(d MessageDelta) bool {
	switch d := d.(type) {
	case TextDelta:
		if d.Delta == "" {
			return false
		}
		f.content.WriteString(d.Delta)
		return true
	case ToolCallDelta:
		acc, ok := f.toolCalls[d.Index]
		if !ok {
			acc = &toolCallAccumulator{}
			f.toolCalls[d.Index] = acc
		}
		if d.CallID != "" {
			acc.id = d.CallID
		}
		if d.Name != "" {
			acc.name = d.Name
		}
		acc.args.WriteString(d.ArgsDelta)
	case UsageDelta:
		u := d.Usage
		f.usage = &u
	case StopDelta:
		f.stopReason = d.Reason
	}
	return false
}

func (f *completionFold) result() Completion {
	c := Completion{
		Content:    f.content.String(),
		Usage:      f.usage,
		StopReason: f.stopReason,
	}

	// stable by tool index
	idxs := make([]int, 0, len(f.toolCalls))
	for idx := range f.toolCalls {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		acc := f.toolCalls[idx]
		if acc.name == "" {
			continue
		}
		id := acc.id
		if id == "" {
			id = fmt.Sprintf("call_%d", idx)
		}
		args := strings.TrimSpace(acc.args.String())
		if args == "" {
			args = "{}"
		}
		c.ToolCalls = append(c.ToolCalls, ToolCall{ID: id, Name: acc.name, ArgsJSON: json.RawMessage(args)})
	}

	if c.StopReason == "" {
		if len(c.ToolCalls) > 0 {
			c.StopReason = StopToolUse
		} else {
			c.StopReason = StopStop
		}
	}
	return c
}

// StreamCompletion opens one provider stream and folds it into a Completion.
// onContent, when set, receives the whole accumulated content after every
// content delta. On a transport failure the partial Completion is returned
// together with a *StreamError.
func StreamCompletion(ctx context.Context, provider Provider, req ProviderRequest, onContent func(string)) (Completion, error) {
	if provider == nil {
		return Completion{}, ErrNoProvider
	}

	stream, err := provider.Stream(ctx, req)
	if err != nil {
		return Completion{}, &StreamError{Err: err}
	}
	defer stream.Close()

	fold := newCompletionFold()
	for {
		d, err := stream.Next(ctx)
		if d != nil && fold.apply(d) && onContent != nil {
			onContent(fold.content.String())
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			partial := fold.result()
			partial.StopReason = StopError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				partial.StopReason = StopAborted
			}
			return partial, &StreamError{Err: err}
		}
	}
	return fold.result(), nil
}
