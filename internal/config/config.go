// Package config loads the copilot settings from copilot.yaml, COPILOT_*
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/providers/base"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appDir   = "sqlcopilot"
	fileName = "copilot"
	envPref  = "COPILOT"
)

// Providers lists the supported values of Config.Provider.
var Providers = []string{"openai", "openrouter", "anthropic"}

type Config struct {
	Provider     string `mapstructure:"provider" yaml:"provider"`
	MaxRounds    int    `mapstructure:"max_rounds" yaml:"max_rounds"`
	SystemPrompt string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	// DebugLog writes provider request/chunk records as JSONL when set.
	DebugLog string `mapstructure:"debug_log" yaml:"debug_log,omitempty"`

	OpenAI     ProviderConfig   `mapstructure:"openai" yaml:"openai"`
	OpenRouter ProviderConfig   `mapstructure:"openrouter" yaml:"openrouter"`
	Anthropic  ProviderConfig   `mapstructure:"anthropic" yaml:"anthropic"`
	Datasource DatasourceConfig `mapstructure:"datasource" yaml:"datasource"`
	MCP        MCPConfig        `mapstructure:"mcp" yaml:"mcp"`
}

// ProviderConfig is one provider block. Temperature 0 leaves the provider
// default in place.
type ProviderConfig struct {
	APIKey          string        `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL         string        `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Model           string        `mapstructure:"model" yaml:"model"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens" yaml:"max_output_tokens,omitempty"`
	Temperature     float64       `mapstructure:"temperature" yaml:"temperature,omitempty"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout,omitempty"`
}

// DatasourceConfig selects where the SQL tools run: "grafana" proxies
// through /api/ds/query, "sql" opens the database directly.
type DatasourceConfig struct {
	Kind    string        `mapstructure:"kind" yaml:"kind"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Grafana GrafanaConfig `mapstructure:"grafana" yaml:"grafana"`
	SQL     SQLConfig     `mapstructure:"sql" yaml:"sql"`
}

type GrafanaConfig struct {
	URL     string `mapstructure:"url" yaml:"url"`
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
	OrgID   int64  `mapstructure:"org_id" yaml:"org_id,omitempty"`
	UID     string `mapstructure:"uid" yaml:"uid,omitempty"`
	Name    string `mapstructure:"name" yaml:"name,omitempty"`
	Dialect string `mapstructure:"dialect" yaml:"dialect"`
}

type SQLConfig struct {
	Dialect string `mapstructure:"dialect" yaml:"dialect"`
	DSN     string `mapstructure:"dsn" yaml:"dsn,omitempty"`
}

// MCPConfig points at the Grafana MCP server. An empty Grafana target runs
// the copilot with the local SQL tools only.
type MCPConfig struct {
	Grafana      string   `mapstructure:"grafana" yaml:"grafana,omitempty"`
	AllowedTools []string `mapstructure:"allowed_tools" yaml:"allowed_tools"`
}

func defaults() map[string]any {
	return map[string]any{
		"provider":                     "openai",
		"max_rounds":                   copilot.DefaultMaxRounds,
		"system_prompt":                "",
		"debug_log":                    "",
		"openai.api_key":               "",
		"openai.base_url":              "",
		"openai.model":                 "gpt-4.1",
		"openai.max_output_tokens":     0,
		"openai.temperature":           0.0,
		"openai.request_timeout":       "0s",
		"openrouter.api_key":           "",
		"openrouter.base_url":          "",
		"openrouter.model":             "anthropic/claude-sonnet-4.5",
		"openrouter.max_output_tokens": 0,
		"openrouter.temperature":       0.0,
		"openrouter.request_timeout":   "0s",
		"anthropic.api_key":            "",
		"anthropic.base_url":           "",
		"anthropic.model":              "claude-sonnet-4-5",
		"anthropic.max_output_tokens":  4096,
		"anthropic.temperature":        0.0,
		"anthropic.request_timeout":    "0s",
		"datasource.kind":              "grafana",
		"datasource.timeout":           "30s",
		"datasource.grafana.url":       "http://localhost:3000",
		"datasource.grafana.token":     "",
		"datasource.grafana.org_id":    0,
		"datasource.grafana.uid":       "",
		"datasource.grafana.name":      "PostgreSQL",
		"datasource.grafana.dialect":   "postgres",
		"datasource.sql.dialect":       "postgres",
		"datasource.sql.dsn":           "",
		"mcp.grafana":                  "",
		"mcp.allowed_tools":            slices.Clone(copilot.GrafanaAllowedTools),
	}
}

// Load reads the configuration. path selects an explicit file; otherwise
// copilot.yaml is looked up in the config dir and the working directory, and
// a missing file is not an error. A .env file in the working directory is
// loaded first.
func Load(path string) (*Config, error) {
	if err := base.LoadEnv(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := newViper()
	v.SetEnvPrefix(envPref)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		v.SetConfigName(fileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.resolveCredentials()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveCredentials expands $VAR references and falls back to the
// providers' conventional environment variables.
func (c *Config) resolveCredentials() {
	resolve := func(p *ProviderConfig, env string) {
		p.APIKey = expandEnv(p.APIKey)
		if p.APIKey == "" {
			p.APIKey = os.Getenv(env)
		}
		p.BaseURL = expandEnv(p.BaseURL)
	}
	resolve(&c.OpenAI, "OPENAI_API_KEY")
	resolve(&c.OpenRouter, "OPENROUTER_API_KEY")
	resolve(&c.Anthropic, "ANTHROPIC_API_KEY")

	c.Datasource.Grafana.Token = expandEnv(c.Datasource.Grafana.Token)
	if c.Datasource.Grafana.Token == "" {
		c.Datasource.Grafana.Token = os.Getenv("GRAFANA_SERVICE_ACCOUNT_TOKEN")
	}
	c.Datasource.SQL.DSN = expandEnv(c.Datasource.SQL.DSN)
}

// Validate rejects settings no component can act on.
func (c *Config) Validate() error {
	if !slices.Contains(Providers, c.Provider) {
		return fmt.Errorf("unknown provider %q (want one of %s)", c.Provider, strings.Join(Providers, ", "))
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("max_rounds must be positive, got %d", c.MaxRounds)
	}
	switch c.Datasource.Kind {
	case "grafana":
		if c.Datasource.Grafana.UID == "" && c.Datasource.Grafana.Name == "" {
			return errors.New("datasource.grafana needs a uid or a name")
		}
	case "sql":
		if c.Datasource.SQL.DSN == "" {
			return errors.New("datasource.sql.dsn is required")
		}
	case "none":
	default:
		return fmt.Errorf("unknown datasource kind %q", c.Datasource.Kind)
	}
	return nil
}

// ApplyOverrides applies command-line provider and model overrides. The
// model applies to the resulting provider.
func (c *Config) ApplyOverrides(provider, model string) {
	if provider != "" {
		c.Provider = provider
	}
	if model == "" {
		return
	}
	if p := c.Active(); p != nil {
		p.Model = model
	}
}

// Active returns the settings of the selected provider.
func (c *Config) Active() *ProviderConfig {
	switch c.Provider {
	case "openai":
		return &c.OpenAI
	case "openrouter":
		return &c.OpenRouter
	case "anthropic":
		return &c.Anthropic
	}
	return nil
}

func expandEnv(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return os.Getenv(s[2 : len(s)-1])
	}
	if strings.HasPrefix(s, "$") {
		return os.Getenv(s[1:])
	}
	return s
}

// Dir returns $XDG_CONFIG_HOME/sqlcopilot, or ~/.config/sqlcopilot.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDir), nil
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName+".yaml"), nil
}

// newViper returns a scoped viper instance seeded with defaults().
func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	return v
}

// Default returns the configuration used when no file or env is present.
// It is decoded from defaults() so the two cannot disagree.
func Default() *Config {
	var cfg Config
	if err := newViper().Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return &cfg
}

// Save writes cfg as YAML. Secrets are left out so the file can be shared;
// they are expected to come from the environment.
func Save(path string, cfg *Config) error {
	out := *cfg
	for _, p := range []*ProviderConfig{&out.OpenAI, &out.OpenRouter, &out.Anthropic} {
		p.APIKey = ""
	}
	out.Datasource.Grafana.Token = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
