package copilot

import "context"

// ProviderRequest is the provider-agnostic generation input.
type ProviderRequest struct {
	SystemPrompt string
	History      []Message
	Tools        []ToolDescriptor
}

// ProviderStream yields classified deltas until io.EOF.
type ProviderStream interface {
	Next(ctx context.Context) (MessageDelta, error)
	Close() error
}

// Provider opens one streaming completion per call.
type Provider interface {
	Stream(ctx context.Context, req ProviderRequest) (ProviderStream, error)
}
