package chatcompletion

import (
	"context"
	"io"
	"sync"

	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/providers/base"
	"github.com/openai/openai-go/v3"
)

// ChunkSource is the subset of the SDK's SSE stream the Stream reads from.
type ChunkSource interface {
	Next() bool
	Current() openai.ChatCompletionChunk
	Err() error
	Close() error
}

// Stream implements copilot.ProviderStream over Chat Completions chunks.
type Stream struct {
	src   ChunkSource
	debug *base.DebugLogger

	mu      sync.Mutex
	done    bool
	err     error
	pending []copilot.MessageDelta
}

// NewStream wraps src. debug may be nil.
func NewStream(src ChunkSource, debug *base.DebugLogger) *Stream {
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

		chunk := s.src.Current()
		s.debug.Record("chunk", chunk.RawJSON())
		s.pending = append(s.pending, ClassifyChunk(chunk)...)
	}
}

func (s *Stream) Close() error {
	_ = s.debug.Close()
	return s.src.Close()
}

// ClassifyChunk splits one chunk into deltas. A single chunk may carry
// usage, text, tool call fragments and a finish reason at once.
func ClassifyChunk(chunk openai.ChatCompletionChunk) []copilot.MessageDelta {
	var out []copilot.MessageDelta

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			out = append(out, copilot.TextDelta{Delta: choice.Delta.Content})
		}
		for _, tc := range choice.Delta.ToolCalls {
			out = append(out, copilot.ToolCallDelta{
				Index:     int(tc.Index),
				CallID:    tc.ID,
				Name:      tc.Function.Name,
				ArgsDelta: tc.Function.Arguments,
			})
		}
		if choice.FinishReason != "" {
			out = append(out, copilot.StopDelta{Reason: mapFinishReason(choice.FinishReason)})
		}
	}

	if chunk.Usage.TotalTokens > 0 {
		out = append(out, copilot.UsageDelta{Usage: copilot.Usage{
			InputTokens:      int(chunk.Usage.PromptTokens),
			OutputTokens:     int(chunk.Usage.CompletionTokens),
			TotalTokens:      int(chunk.Usage.TotalTokens),
			CachedReadTokens: int(chunk.Usage.PromptTokensDetails.CachedTokens),
		}})
	}
	return out
}

func mapFinishReason(reason string) copilot.StopReason {
	switch reason {
	case "length":
		return copilot.StopLength
	case "tool_calls", "function_call":
		return copilot.StopToolUse
	default:
		return copilot.StopStop
	}
}

var _ copilot.ProviderStream = (*Stream)(nil)
