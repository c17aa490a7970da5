// Package testutil provides common testing utilities for provider and
// conversation tests.
package testutil

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/inspirepan/copilot"
)

const DefaultTimeout = 60 * time.Second

// SkipIfNoEnv skips the test if the environment variable is not set.
func SkipIfNoEnv(t *testing.T, envVar string) {
	t.Helper()
	if os.Getenv(envVar) == "" {
		t.Skipf("skipping: %s not set", envVar)
	}
}

// TestConfig holds configuration for a live provider test run.
type TestConfig struct {
	Provider copilot.Provider
	Timeout  time.Duration
}

// DefaultConfig returns a TestConfig with default timeout.
func DefaultConfig(provider copilot.Provider) TestConfig {
	return TestConfig{
		Provider: provider,
		Timeout:  DefaultTimeout,
	}
}

// TestBasicTextGeneration checks that a provider streams non-empty text.
func TestBasicTextGeneration(t *testing.T, cfg TestConfig) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	var updates int
	comp, err := copilot.StreamCompletion(ctx, cfg.Provider, copilot.ProviderRequest{
		History: []copilot.Message{copilot.UserMessage("Write a haiku about SQL")},
	}, func(string) { updates++ })
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if strings.TrimSpace(comp.Content) == "" {
		t.Error("expected non-empty text response")
	}
	if updates == 0 {
		t.Error("expected at least one content update")
	}
	if comp.Usage == nil {
		t.Log("warning: usage info not returned")
	} else if comp.Usage.OutputTokens == 0 {
		t.Error("expected non-zero output tokens")
	}
}

// RowCountTool describes a single-argument tool that live models reliably call.
var RowCountTool = copilot.ToolDescriptor{
	Name:        "sql_get_table_row_count",
	Description: "Get the number of rows in a table",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tableName": map[string]any{"type": "string", "description": "Name of the table"},
		},
		"required": []string{"tableName"},
	},
}

// TestToolCalling checks a full tool round: the model asks for the tool, gets
// the result and answers with it.
func TestToolCalling(t *testing.T, cfg TestConfig) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	req := copilot.ProviderRequest{
		SystemPrompt: "Always use the tools to answer questions about the database.",
		History:      []copilot.Message{copilot.UserMessage("How many rows are in the users table?")},
		Tools:        []copilot.ToolDescriptor{RowCountTool},
	}
	comp, err := copilot.StreamCompletion(ctx, cfg.Provider, req, nil)
	if err != nil {
		t.Fatalf("StreamCompletion failed: %v", err)
	}
	if len(comp.ToolCalls) == 0 {
		t.Fatalf("expected a tool call, got content %q", comp.Content)
	}
	call := comp.ToolCalls[0]
	if call.Name != RowCountTool.Name {
		t.Fatalf("expected %s, got %s", RowCountTool.Name, call.Name)
	}

	asst := copilot.AssistantMessage(comp.Content)
	asst.ToolCalls = comp.ToolCalls
	req.History = append(req.History, asst)
	for _, c := range comp.ToolCalls {
		req.History = append(req.History, copilot.ToolMessage(c.ID, `Table "users" contains 1234 rows`))
	}

	final, err := copilot.StreamCompletion(ctx, cfg.Provider, req, nil)
	if err != nil {
		t.Fatalf("second StreamCompletion failed: %v", err)
	}
	if !strings.Contains(strings.ReplaceAll(final.Content, ",", ""), "1234") {
		t.Errorf("expected final answer to mention 1234, got %q", final.Content)
	}
}
