package main

import (
	"fmt"
	"os"

	"github.com/inspirepan/copilot/internal/config"
	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or create the configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.ApplyOverrides(providerFlag, modelFlag)
		out := cmd.OutOrStdout()
		p := cfg.Active()
		fmt.Fprintf(out, "provider:   %s (%s)\n", cfg.Provider, p.Model)
		fmt.Fprintf(out, "api key:    %s\n", mask(p.APIKey))
		fmt.Fprintf(out, "max rounds: %d\n", cfg.MaxRounds)
		fmt.Fprintf(out, "datasource: %s (timeout %s)\n", cfg.Datasource.Kind, cfg.Datasource.Timeout)
		if cfg.MCP.Grafana != "" {
			fmt.Fprintf(out, "grafana mcp: %s (%d allowed tools)\n", cfg.MCP.Grafana, len(cfg.MCP.AllowedTools))
		}
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter copilot.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		path := configPath
		if path == "" {
			p, err := config.Path()
			if err != nil {
				return err
			}
			path = p
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("wrote "+path))
		return nil
	},
}

func mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
