package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath   string
	providerFlag string
	modelFlag    string
	verbose      bool
	debugLogFlag string
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Chat with an LLM that can inspect your SQL datasources",
	Long: `copilot answers questions about your data by letting an LLM call
SQL tools (list tables, describe, count, sample, read-only queries) and,
when configured, the Grafana MCP server.

Examples:
  copilot chat                          # interactive session
  copilot chat "which table holds orders?"
  copilot tools                         # list the tools offered to the model
  copilot tools call sql_list_tables    # run one tool directly
  copilot serve-mcp                     # expose the SQL tools over MCP stdio
  copilot config init                   # write a starter copilot.yaml`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $XDG_CONFIG_HOME/sqlcopilot/copilot.yaml or ./copilot.yaml)")
	rootCmd.PersistentFlags().StringVarP(&providerFlag, "provider", "p", "", "LLM provider: openai, openrouter or anthropic")
	rootCmd.PersistentFlags().StringVarP(&modelFlag, "model", "m", "", "Model for the selected provider")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&debugLogFlag, "debug-log", "", "Write provider requests and chunks as JSONL to this file")
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func Execute() {
	// SIGINT is left to the chat loop, which uses it to cancel an answer.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
