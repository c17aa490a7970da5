package sqltools

import (
	"context"
	"errors"

	"github.com/inspirepan/copilot"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewMCPServer exposes the catalog as an MCP server. Tool failures are
// reported as isError results, not protocol errors.
func NewMCPServer(c *Catalog, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "sql-copilot", Version: version}, nil)
	for _, d := range Descriptors {
		server.AddTool(&mcp.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		}, c.mcpHandler(d.Name))
	}
	return server
}

func (c *Catalog) mcpHandler(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := c.CallTool(ctx, name, req.Params.Arguments)
		if err != nil {
			var notFound *copilot.ToolNotFoundError
			if errors.As(err, &notFound) {
				return nil, err
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}
		out := &mcp.CallToolResult{IsError: res.IsError}
		for _, block := range res.Content {
			out.Content = append(out.Content, &mcp.TextContent{Text: block.Text})
		}
		return out, nil
	}
}
