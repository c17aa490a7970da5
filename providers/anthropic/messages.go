package anthropic

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/providers/base"
)

const defaultMaxTokens = 4096

// Config configures the Anthropic Messages API provider.
type Config struct {
	base.Config
}

// Option is a functional option for this provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTemperature sets the temperature.
func WithTemperature(t float64) Option {
	return func(c *Config) { c.Temperature = &t }
}

// WithMaxOutputTokens sets the max output tokens.
func WithMaxOutputTokens(n int) Option {
	return func(c *Config) { c.MaxOutputTokens = &n }
}

// WithDebug enables JSONL debug logging to the specified file path.
func WithDebug(path string) Option {
	return func(c *Config) { c.DebugPath = path }
}

// WithRequestTimeout bounds each streaming request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// Provider streams completions from the Anthropic Messages API.
type Provider struct {
	model  string
	cfg    Config
	client anthropic.Client
}

// New creates a Provider. The SDK reads ANTHROPIC_API_KEY and
// ANTHROPIC_BASE_URL itself; explicit options override them.
func New(model string, opts ...Option) *Provider {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}

	var clientOpts []option.RequestOption
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.RequestTimeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	return &Provider{model: model, cfg: cfg, client: anthropic.NewClient(clientOpts...)}
}

// Stream opens one streaming completion.
func (p *Provider) Stream(ctx context.Context, req copilot.ProviderRequest) (copilot.ProviderStream, error) {
	params := BuildParams(req)
	params.Model = anthropic.Model(p.model)
	params.MaxTokens = defaultMaxTokens
	if p.cfg.MaxOutputTokens != nil {
		params.MaxTokens = int64(*p.cfg.MaxOutputTokens)
	}
	if p.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*p.cfg.Temperature)
	}

	debug, err := base.OpenDebugLogger(p.cfg.DebugPath, "anthropic", p.model)
	if err != nil {
		return nil, err
	}
	debug.Record("request", params)

	return NewStream(p.client.Messages.NewStreaming(ctx, params), debug), nil
}

// BuildParams converts a provider request to Messages API params. Runs of
// tool messages are merged into one user turn of tool_result blocks.
func BuildParams(req copilot.ProviderRequest) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	var pendingResults []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(pendingResults) > 0 {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range req.History {
		switch msg.Role {
		case copilot.RoleUser:
			flush()
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case copilot.RoleAssistant:
			flush()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.ArgsJSON
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			if len(blocks) > 0 {
				params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
			}
		case copilot.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, msg.IsError))
		}
	}
	flush()

	for _, d := range req.Tools {
		schema := anthropic.ToolInputSchemaParam{Properties: d.InputSchema["properties"]}
		schema.Required = d.RequiredFields()
		tool := anthropic.ToolUnionParamOfTool(schema, d.Name)
		if d.Description != "" && tool.OfTool != nil {
			tool.OfTool.Description = anthropic.String(d.Description)
		}
		params.Tools = append(params.Tools, tool)
	}
	return params
}
