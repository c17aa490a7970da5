package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/inspirepan/copilot"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cat, err := a.registry.ListTools(cmd.Context())
		if err != nil {
			return err
		}
		printTools(cmd.OutOrStdout(), cat, a.registry)
		return nil
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call <name> [json-arguments]",
	Short: "Run one tool directly, the way the model would",
	Long: `Run one tool and print its result.

Examples:
  copilot tools call sql_list_tables
  copilot tools call sql_get_sample_data '{"tableName":"orders","limit":5}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.registry.ListTools(ctx); err != nil {
			return err
		}
		call := copilot.ToolCall{ID: "cli", Name: args[0]}
		if len(args) == 2 {
			call.ArgsJSON = json.RawMessage(args[1])
		}
		res := copilot.NewInvoker(a.registry, a.logger).CallTool(ctx, call)
		out := cmd.OutOrStdout()
		if res.IsError {
			fmt.Fprintln(out, errorStyle.Render(res.Text))
			return fmt.Errorf("tool %s failed", call.Name)
		}
		fmt.Fprintln(out, res.Text)
		return nil
	},
}

func init() {
	toolsCmd.AddCommand(toolsCallCmd)
	rootCmd.AddCommand(toolsCmd)
}

func printTools(out io.Writer, cat copilot.Catalog, reg *copilot.Registry) {
	if !cat.Enabled {
		fmt.Fprintln(out, errorStyle.Render("LLM disabled: no tools are offered"))
		return
	}
	for _, t := range cat.Tools {
		origin := "grafana"
		if reg.IsLocalTool(t.Name) {
			origin = "sql"
		}
		desc, _, _ := strings.Cut(t.Description, "\n")
		fmt.Fprintf(out, "%s %s %s\n", toolCallStyle.Render(t.Name), mutedStyle.Render("["+origin+"]"), desc)
		if req := t.RequiredFields(); len(req) > 0 {
			fmt.Fprintln(out, mutedStyle.Render("    requires: "+strings.Join(req, ", ")))
		}
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("%d tools", len(cat.Tools))))
}
