package chatcompletion

import (
	"context"
	"time"

	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/providers/base"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Config configures the OpenAI Chat Completions provider.
type Config struct {
	base.Config
}

// Option is a functional option for this provider.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL sets a custom base URL, e.g. a local OpenAI-compatible server.
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

// WithRequestTimeout bounds each streaming request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

// WithDebug enables JSONL debug logging to the specified file path.
func WithDebug(path string) Option {
	return func(c *Config) { c.DebugPath = path }
}

// Provider streams completions from the Chat Completions API.
type Provider struct {
	name   string
	model  string
	cfg    Config
	client openai.Client
	// cacheControl marks the system prompt and last user turn as cacheable.
	cacheControl bool
}

// New creates a Provider. It reads OPENAI_API_KEY and OPENAI_BASE_URL from
// the environment when not set explicitly.
func New(model string, opts ...Option) *Provider {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	base.ApplyEnvDefaults(&cfg.Config, "OPENAI_API_KEY", "OPENAI_BASE_URL")
	return NewWithClient("chatcompletion", model, cfg, ClientOptions(cfg.Config)...)
}

// ClientOptions translates the shared configuration into SDK request options.
func ClientOptions(cfg base.Config) []option.RequestOption {
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
	for k, v := range cfg.ExtraHeaders {
		clientOpts = append(clientOpts, option.WithHeader(k, v))
	}
	return clientOpts
}

// NewWithClient creates a Provider for an OpenAI-compatible gateway. name
// tags debug records.
func NewWithClient(name, model string, cfg Config, clientOpts ...option.RequestOption) *Provider {
	return &Provider{
		name:   name,
		model:  model,
		cfg:    cfg,
		client: openai.NewClient(clientOpts...),
	}
}

// WithCacheControl returns a copy of p that marks prompts as cacheable.
func (p *Provider) WithCacheControl(enabled bool) *Provider {
	cp := *p
	cp.cacheControl = enabled
	return &cp
}

// Model returns the configured model name.
func (p *Provider) Model() string { return p.model }

// Stream opens one streaming completion.
func (p *Provider) Stream(ctx context.Context, req copilot.ProviderRequest) (copilot.ProviderStream, error) {
	params := BuildParams(req, p.cacheControl)
	params.Model = p.model
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	if p.cfg.Temperature != nil {
		params.Temperature = openai.Float(*p.cfg.Temperature)
	}
	if p.cfg.MaxOutputTokens != nil {
		params.MaxTokens = openai.Int(int64(*p.cfg.MaxOutputTokens))
	}

	debug, err := base.OpenDebugLogger(p.cfg.DebugPath, p.name, p.model)
	if err != nil {
		return nil, err
	}
	debug.Record("request", params)

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	return NewStream(stream, debug), nil
}

var _ copilot.Provider = (*Provider)(nil)
