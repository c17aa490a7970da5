package testutil

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/inspirepan/copilot"
)

// Step is one scripted stream: deltas emitted in order, then Err (io.EOF when
// nil). When Block is set the stream waits on it before its first delta.
type Step struct {
	Deltas []copilot.MessageDelta
	Err    error
	Block  <-chan struct{}
}

// Text is a Step streaming content in the given pieces.
func Text(pieces ...string) Step {
	var s Step
	for _, p := range pieces {
		s.Deltas = append(s.Deltas, copilot.TextDelta{Delta: p})
	}
	return s
}

// ToolCalls is a Step requesting the given calls, one index each.
func ToolCalls(calls ...copilot.ToolCall) Step {
	var s Step
	for i, c := range calls {
		s.Deltas = append(s.Deltas, copilot.ToolCallDelta{Index: i, CallID: c.ID, Name: c.Name, ArgsDelta: string(c.ArgsJSON)})
	}
	s.Deltas = append(s.Deltas, copilot.StopDelta{Reason: copilot.StopToolUse})
	return s
}

// ScriptedProvider replays Steps, one per Stream call, and records requests.
type ScriptedProvider struct {
	mu       sync.Mutex
	steps    []Step
	requests []copilot.ProviderRequest
}

// NewScriptedProvider creates a provider replaying steps.
func NewScriptedProvider(steps ...Step) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

func (p *ScriptedProvider) Stream(_ context.Context, req copilot.ProviderRequest) (copilot.ProviderStream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.steps) == 0 {
		return nil, errors.New("scripted provider: no more steps")
	}
	step := p.steps[0]
	p.steps = p.steps[1:]
	return &scriptedStream{step: step}, nil
}

// Requests returns every request seen so far.
func (p *ScriptedProvider) Requests() []copilot.ProviderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]copilot.ProviderRequest(nil), p.requests...)
}

type scriptedStream struct {
	step    Step
	i       int
	started bool
}

func (s *scriptedStream) Next(ctx context.Context) (copilot.MessageDelta, error) {
	if !s.started {
		s.started = true
		if s.step.Block != nil {
			select {
			case <-s.step.Block:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.i < len(s.step.Deltas) {
		d := s.step.Deltas[s.i]
		s.i++
		return d, nil
	}
	if s.step.Err != nil {
		return nil, s.step.Err
	}
	return nil, io.EOF
}

func (s *scriptedStream) Close() error { return nil }
