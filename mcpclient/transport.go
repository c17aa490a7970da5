package mcpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	stdioSchemePrefix = "stdio://"
	sseSchemePrefix   = "sse://"
)

// ParseTransport builds a transport from a target string:
//
//	stdio://grafana-mcp -t stdio   command over stdio
//	sse://host:8000/sse             SSE, https assumed when no scheme
//	http+sse://host/sse             SSE
//	http+stream://host/mcp          streamable HTTP
//	http://host/sse                 SSE
//	grafana-mcp -t stdio            command over stdio
//
// httpClient may be nil.
func ParseTransport(target string, httpClient *http.Client) (mcp.Transport, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("transport target is empty")
	}

	lowered := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lowered, stdioSchemePrefix):
		return stdioTransport(target[len(stdioSchemePrefix):])
	case strings.HasPrefix(lowered, sseSchemePrefix):
		endpoint, err := normalizeHTTPURL(target[len(sseSchemePrefix):], true)
		if err != nil {
			return nil, fmt.Errorf("invalid SSE endpoint: %w", err)
		}
		return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}, nil
	}

	if streamable, endpoint, ok, err := parseHintedHTTP(target); err != nil {
		return nil, err
	} else if ok {
		if streamable {
			return &mcp.StreamableClientTransport{Endpoint: endpoint, HTTPClient: httpClient}, nil
		}
		return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}, nil
	}

	if strings.HasPrefix(lowered, "http://") || strings.HasPrefix(lowered, "https://") {
		endpoint, err := normalizeHTTPURL(target, false)
		if err != nil {
			return nil, fmt.Errorf("invalid SSE endpoint: %w", err)
		}
		return &mcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient}, nil
	}

	return stdioTransport(target)
}

// The command outlives any single request, so it is not bound to a context;
// closing the session terminates it.
func stdioTransport(cmdline string) (mcp.Transport, error) {
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return nil, fmt.Errorf("stdio command is empty")
	}
	// #nosec G204 -- the command comes from the operator's configuration
	return &mcp.CommandTransport{Command: exec.Command(parts[0], parts[1:]...)}, nil
}

// parseHintedHTTP recognizes "http+<hint>://" and "https+<hint>://".
func parseHintedHTTP(target string) (streamable bool, endpoint string, matched bool, err error) {
	u, parseErr := url.Parse(target)
	if parseErr != nil || u.Scheme == "" {
		return false, "", false, nil
	}
	base, hint, ok := strings.Cut(strings.ToLower(u.Scheme), "+")
	if !ok || (base != "http" && base != "https") {
		return false, "", false, nil
	}
	switch hint {
	case "sse":
	case "stream", "streamable", "http":
		streamable = true
	default:
		return false, "", true, fmt.Errorf("unsupported HTTP transport hint %q", hint)
	}
	normalized := *u
	normalized.Scheme = base
	endpoint, err = normalizeHTTPURL(normalized.String(), false)
	if err != nil {
		return false, "", true, fmt.Errorf("invalid endpoint: %w", err)
	}
	return streamable, endpoint, true, nil
}

func normalizeHTTPURL(raw string, guessScheme bool) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("endpoint is empty")
	}
	if guessScheme && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	parsed.Scheme = scheme
	return parsed.String(), nil
}
