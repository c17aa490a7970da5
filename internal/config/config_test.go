package config

import (
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/inspirepan/copilot"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "copilot.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("provider=%q, want openai", cfg.Provider)
	}
	if cfg.MaxRounds != copilot.DefaultMaxRounds {
		t.Errorf("max_rounds=%d, want %d", cfg.MaxRounds, copilot.DefaultMaxRounds)
	}
	if cfg.Datasource.Timeout != 30*time.Second {
		t.Errorf("timeout=%s, want 30s", cfg.Datasource.Timeout)
	}
	if !slices.Equal(cfg.MCP.AllowedTools, copilot.GrafanaAllowedTools) {
		t.Errorf("allowed tools=%v", cfg.MCP.AllowedTools)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("api key=%q, want the OPENAI_API_KEY value", cfg.OpenAI.APIKey)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_KEY_FOR_TEST", "sk-ant-test")
	t.Setenv("COPILOT_MAX_ROUNDS", "3")
	t.Setenv("COPILOT_ANTHROPIC_MODEL", "claude-haiku-4-5")
	path := writeFile(t, `
provider: anthropic
anthropic:
  api_key: ${ANTHROPIC_KEY_FOR_TEST}
  model: claude-sonnet-4-5
  temperature: 0.2
  request_timeout: 90s
datasource:
  kind: sql
  timeout: 5s
  sql:
    dialect: sqlite
    dsn: file:demo.db
mcp:
  grafana: http+stream://localhost:8000/mcp
  allowed_tools: [search_dashboards]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "anthropic" || cfg.Anthropic.APIKey != "sk-ant-test" {
		t.Errorf("unexpected provider settings %+v", cfg.Anthropic)
	}
	if cfg.Anthropic.Model != "claude-haiku-4-5" {
		t.Errorf("env should override the file, model=%q", cfg.Anthropic.Model)
	}
	if cfg.Anthropic.Temperature != 0.2 || cfg.Anthropic.RequestTimeout != 90*time.Second {
		t.Errorf("temperature=%v timeout=%s", cfg.Anthropic.Temperature, cfg.Anthropic.RequestTimeout)
	}
	if cfg.MaxRounds != 3 {
		t.Errorf("max_rounds=%d, want 3", cfg.MaxRounds)
	}
	if cfg.Datasource.Kind != "sql" || cfg.Datasource.SQL.Dialect != "sqlite" || cfg.Datasource.Timeout != 5*time.Second {
		t.Errorf("unexpected datasource %+v", cfg.Datasource)
	}
	if cfg.MCP.Grafana != "http+stream://localhost:8000/mcp" || !slices.Equal(cfg.MCP.AllowedTools, []string{"search_dashboards"}) {
		t.Errorf("unexpected mcp %+v", cfg.MCP)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("an explicit missing file should fail")
	}

	path := writeFile(t, "provider: gemini\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), `unknown provider "gemini"`) {
		t.Errorf("expected unknown provider error, got %v", err)
	}

	path = writeFile(t, "datasource:\n  kind: sql\n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "dsn is required") {
		t.Errorf("expected dsn error, got %v", err)
	}
}

func TestDefault_MatchesLoad(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, env := range []string{"OPENAI_API_KEY", "OPENROUTER_API_KEY", "ANTHROPIC_API_KEY", "GRAFANA_SERVICE_ACCOUNT_TOKEN"} {
		t.Setenv(env, "")
	}

	loaded, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if def := Default(); !reflect.DeepEqual(def, loaded) {
		t.Errorf("Default() and Load() disagree:\n default: %+v\n loaded:  %+v", def, loaded)
	}

	def := Default()
	def.MCP.AllowedTools[0] = "changed"
	if copilot.GrafanaAllowedTools[0] == "changed" {
		t.Error("Default() shares the allow-list with the package variable")
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()

	cfg.ApplyOverrides("openrouter", "openai/gpt-4.1-mini")
	if cfg.Provider != "openrouter" {
		t.Fatalf("provider=%q, want openrouter", cfg.Provider)
	}
	if cfg.OpenRouter.Model != "openai/gpt-4.1-mini" {
		t.Fatalf("openrouter model=%q", cfg.OpenRouter.Model)
	}
	if cfg.OpenAI.Model != "gpt-4.1" {
		t.Fatalf("openai model changed unexpectedly: %q", cfg.OpenAI.Model)
	}

	cfg.ApplyOverrides("", "")
	if cfg.Provider != "openrouter" || cfg.OpenRouter.Model != "openai/gpt-4.1-mini" {
		t.Fatalf("empty overrides changed the config: %+v", cfg)
	}
}

func TestSave_OmitsSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg := Default()
	cfg.OpenAI.APIKey = "sk-secret"
	cfg.Datasource.Grafana.Token = "glsa_secret"
	cfg.MaxRounds = 4

	path := filepath.Join(t.TempDir(), "nested", "copilot.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret") {
		t.Errorf("secrets written to disk:\n%s", data)
	}
	if cfg.OpenAI.APIKey != "sk-secret" {
		t.Error("Save must not modify its argument")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.MaxRounds != 4 || loaded.Datasource.Timeout != 30*time.Second || loaded.Datasource.Grafana.Name != "PostgreSQL" {
		t.Errorf("unexpected reloaded config %+v", loaded)
	}
}
