package base

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv loads environment variables from the given .env files, or from .env
// in the current directory when none are given. Existing variables win.
func LoadEnv(filenames ...string) error {
	return godotenv.Load(filenames...)
}

// Config is the configuration shared by every provider.
type Config struct {
	APIKey  string
	BaseURL string

	// DebugPath writes JSONL debug records (request/chunk/delta) when set.
	DebugPath string

	MaxOutputTokens *int
	Temperature     *float64
	// RequestTimeout bounds a whole streaming request; zero means no bound.
	RequestTimeout time.Duration

	ExtraHeaders map[string]string
}

// ApplyEnvDefaults fills empty credentials from the environment.
func ApplyEnvDefaults(cfg *Config, apiKeyEnv, baseURLEnv string) {
	if cfg.APIKey == "" && apiKeyEnv != "" {
		cfg.APIKey = os.Getenv(apiKeyEnv)
	}
	if cfg.BaseURL == "" && baseURLEnv != "" {
		cfg.BaseURL = os.Getenv(baseURLEnv)
	}
}

// SetExtraHeader records a header sent with every request.
func (c *Config) SetExtraHeader(key, value string) {
	if c.ExtraHeaders == nil {
		c.ExtraHeaders = make(map[string]string)
	}
	c.ExtraHeaders[key] = value
}

