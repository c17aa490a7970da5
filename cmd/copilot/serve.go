package main

import (
	"errors"
	"net/http"

	"github.com/inspirepan/copilot/sqltools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve-mcp",
	Short: "Serve the SQL tools as an MCP server",
	Long: `Serve the SQL tools over MCP so other agents can use them.

By default the server speaks MCP over stdin/stdout. With --http it serves
streamable HTTP on the given address instead.

Examples:
  copilot serve-mcp
  copilot serve-mcp --http :8090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.catalog == nil {
			return errors.New("no datasource configured: set datasource.kind to grafana or sql")
		}

		server := sqltools.NewMCPServer(a.catalog, Version)
		if serveAddr == "" {
			return server.Run(ctx, &mcp.StdioTransport{})
		}

		handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
		a.logger.Info("serving MCP over HTTP", "addr", serveAddr)
		srv := &http.Server{Addr: serveAddr, Handler: handler}
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "http", "", "Serve streamable HTTP on this address instead of stdio")
	rootCmd.AddCommand(serveCmd)
}
