package anthropic

import (
	"context"
	"io"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/providers/base"
)

// EventSource is the subset of the SDK's SSE stream the Stream reads from.
type EventSource interface {
	Next() bool
	Current() anthropic.MessageStreamEventUnion
	Err() error
	Close() error
}

// Stream implements copilot.ProviderStream over Messages API events.
type Stream struct {
	src   EventSource
	debug *base.DebugLogger

	mu          sync.Mutex
	done        bool
	err         error
	pending     []copilot.MessageDelta
	inputTokens int
}

// NewStream wraps src. debug may be nil.
func NewStream(src EventSource, debug *base.DebugLogger) *Stream {
	return &Stream{src: src, debug: debug}
}

func (s *Stream) Next(ctx context.Context) (copilot.MessageDelta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if len(s.pending) > 0 {
			d := s.pending[0]
			s.pending = s.pending[1:]
			s.debug.Record("delta", d)
			return d, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			s.err = err
			return nil, err
		}

		if !s.src.Next() {
			if err := s.src.Err(); err != nil {
				s.err = err
				return nil, err
			}
			s.done = true
			continue
		}
		event := s.src.Current()
		s.debug.Record("event", event.RawJSON())
		s.processEvent(event)
	}
}

func (s *Stream) Close() error {
	_ = s.debug.Close()
	return s.src.Close()
}

func (s *Stream) processEvent(event anthropic.MessageStreamEventUnion) {
	switch ev := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		s.inputTokens = int(ev.Message.Usage.InputTokens)
	case anthropic.ContentBlockStartEvent:
		if tu, ok := ev.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
			s.pending = append(s.pending, copilot.ToolCallDelta{
				Index:  int(ev.Index),
				CallID: tu.ID,
				Name:   tu.Name,
			})
		}
	case anthropic.ContentBlockDeltaEvent:
		switch d := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if d.Text != "" {
				s.pending = append(s.pending, copilot.TextDelta{Delta: d.Text})
			}
		case anthropic.InputJSONDelta:
			if d.PartialJSON != "" {
				s.pending = append(s.pending, copilot.ToolCallDelta{Index: int(ev.Index), ArgsDelta: d.PartialJSON})
			}
		}
	case anthropic.MessageDeltaEvent:
		out := int(ev.Usage.OutputTokens)
		s.pending = append(s.pending, copilot.UsageDelta{Usage: copilot.Usage{
			InputTokens:      s.inputTokens,
			OutputTokens:     out,
			CachedReadTokens: int(ev.Usage.CacheReadInputTokens),
			TotalTokens:      s.inputTokens + out,
		}})
		if ev.Delta.StopReason != "" {
			s.pending = append(s.pending, copilot.StopDelta{Reason: mapStopReason(ev.Delta.StopReason)})
		}
	}
}

func mapStopReason(reason anthropic.StopReason) copilot.StopReason {
	switch reason {
	case anthropic.StopReasonMaxTokens:
		return copilot.StopLength
	case anthropic.StopReasonToolUse:
		return copilot.StopToolUse
	default:
		return copilot.StopStop
	}
}

var (
	_ copilot.Provider       = (*Provider)(nil)
	_ copilot.ProviderStream = (*Stream)(nil)
)
