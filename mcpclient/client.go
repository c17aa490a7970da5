// Package mcpclient adapts a remote MCP server to copilot.ToolSource.
package mcpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inspirepan/copilot"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client connects lazily on first use and keeps one session open. A session
// whose connection fails is dropped and the next call reconnects.
type Client struct {
	name    string
	target  string
	dial    func() (mcp.Transport, error)
	version string
	logger  *slog.Logger

	mu      sync.Mutex
	client  *mcp.Client
	session *mcp.ClientSession
}

// Option configures a Client.
type Option func(*Client)

// WithTransport bypasses target parsing, e.g. for in-memory transports. The
// transport is used for every connection attempt.
func WithTransport(t mcp.Transport) Option {
	return func(c *Client) { c.dial = func() (mcp.Transport, error) { return t, nil } }
}

// WithDialer builds a fresh transport for each connection attempt.
func WithDialer(dial func() (mcp.Transport, error)) Option {
	return func(c *Client) { c.dial = dial }
}

// WithVersion sets the client version announced to the server.
func WithVersion(v string) Option {
	return func(c *Client) { c.version = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server described by target (see ParseTransport).
func New(name, target string, opts ...Option) *Client {
	c := &Client{name: name, target: target, version: "dev", logger: slog.Default()}
	c.dial = func() (mcp.Transport, error) { return ParseTransport(c.target, nil) }
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the server name.
func (c *Client) Name() string { return c.name }

func (c *Client) connect(ctx context.Context) (*mcp.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return c.session, nil
	}
	transport, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("mcp %s: %w", c.name, err)
	}
	if c.client == nil {
		c.client = mcp.NewClient(&mcp.Implementation{Name: "sql-copilot", Version: c.version}, nil)
	}
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to MCP server %s: %w", c.name, err)
	}
	c.logger.Info("connected to MCP server", "server", c.name)
	c.session = session
	return session, nil
}

// ListTools fetches every page of the server's tool list.
func (c *Client) ListTools(ctx context.Context) ([]copilot.ToolDescriptor, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	var tools []copilot.ToolDescriptor
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			c.dropIfBroken(ctx, session, err)
			return nil, fmt.Errorf("list tools from %s: %w", c.name, err)
		}
		tools = append(tools, toDescriptor(tool))
	}
	return tools, nil
}

// CallTool forwards a call. A result flagged isError is returned as-is, not
// as an error.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*copilot.CallToolResult, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	params := &mcp.CallToolParams{Name: name}
	if len(args) > 0 {
		params.Arguments = args
	}
	res, err := session.CallTool(ctx, params)
	if err != nil {
		c.dropIfBroken(ctx, session, err)
		return nil, err
	}
	return toResult(res), nil
}

// dropIfBroken forgets session unless err is an answer from the server or
// the caller's own cancellation.
func (c *Client) dropIfBroken(ctx context.Context, session *mcp.ClientSession, err error) {
	var wire *jsonrpc.Error
	if errors.As(err, &wire) || ctx.Err() != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != session {
		return
	}
	c.logger.Warn("dropping MCP session", "server", c.name, "error", err)
	_ = c.session.Close()
	c.session = nil
}

// Close ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func toDescriptor(t *mcp.Tool) copilot.ToolDescriptor {
	d := copilot.ToolDescriptor{Name: t.Name, Description: t.Description}
	if t.InputSchema != nil {
		// The schema arrives as any; normalize it to a plain map.
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			_ = json.Unmarshal(raw, &d.InputSchema)
		}
	}
	return d
}

func toResult(res *mcp.CallToolResult) *copilot.CallToolResult {
	out := &copilot.CallToolResult{IsError: res.IsError}
	for _, block := range res.Content {
		switch b := block.(type) {
		case *mcp.TextContent:
			out.Content = append(out.Content, copilot.TextContent(b.Text))
		default:
			if raw, err := json.Marshal(b); err == nil {
				out.Content = append(out.Content, copilot.Content{Type: "json", Text: string(raw)})
			}
		}
	}
	return out
}

var _ copilot.ToolSource = (*Client)(nil)
