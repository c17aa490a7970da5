// Package openrouter points the Chat Completions provider at OpenRouter.
package openrouter

import (
	"os"
	"strings"
	"time"

	"github.com/inspirepan/copilot/providers/base"
	cc "github.com/inspirepan/copilot/providers/chatcompletion"
	"github.com/openai/openai-go/v3/option"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// Routing is OpenRouter's "provider" request field. Zero fields are omitted.
type Routing struct {
	Order  []string `json:"order,omitempty"`
	Only   []string `json:"only,omitempty"`
	Ignore []string `json:"ignore,omitempty"`
	// Sort is one of "price", "throughput" or "latency".
	Sort string `json:"sort,omitempty"`
}

func (r Routing) empty() bool {
	return len(r.Order) == 0 && len(r.Only) == 0 && len(r.Ignore) == 0 && r.Sort == ""
}

type settings struct {
	base.Config
	routing Routing
}

// Option configures the provider.
type Option func(*settings)

// WithAPIKey sets the API key. OPENROUTER_API_KEY is used otherwise.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.APIKey = key }
}

// WithBaseURL overrides the OpenRouter endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.BaseURL = url }
}

// WithMaxOutputTokens caps the completion length.
func WithMaxOutputTokens(n int) Option {
	return func(s *settings) { s.MaxOutputTokens = &n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(s *settings) { s.Temperature = &t }
}

// WithRequestTimeout bounds each streaming request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *settings) { s.RequestTimeout = d }
}

// WithDebug writes request and chunk JSONL to path.
func WithDebug(path string) Option {
	return func(s *settings) { s.DebugPath = path }
}

// WithAppTitle sets the X-Title attribution header.
func WithAppTitle(title string) Option {
	return func(s *settings) { s.SetExtraHeader("X-Title", title) }
}

// WithRouting replaces the provider routing preferences.
func WithRouting(r Routing) Option {
	return func(s *settings) { s.routing = r }
}

// WithProviderOrder sets the preferred upstream order.
func WithProviderOrder(providers ...string) Option {
	return func(s *settings) { s.routing.Order = providers }
}

// New creates a Chat Completions provider for OpenRouter. Usage accounting is
// always requested; Claude and Gemini models get prompt cache markers.
func New(model string, opts ...Option) *cc.Provider {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.APIKey == "" {
		s.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if s.BaseURL == "" {
		s.BaseURL = defaultBaseURL
	}

	clientOpts := append(cc.ClientOptions(s.Config),
		option.WithJSONSet("usage", map[string]any{"include": true}))
	if !s.routing.empty() {
		clientOpts = append(clientOpts, option.WithJSONSet("provider", s.routing))
	}

	lower := strings.ToLower(model)
	cacheable := strings.Contains(lower, "claude") || strings.Contains(lower, "gemini")
	return cc.NewWithClient("openrouter", model, cc.Config{Config: s.Config}, clientOpts...).
		WithCacheControl(cacheable)
}
