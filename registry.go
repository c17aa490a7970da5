package copilot

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// GrafanaAllowedTools scopes the Grafana MCP server down to the dashboard and
// datasource tools the copilot needs.
var GrafanaAllowedTools = []string{
	"search_dashboards",
	"get_dashboard_by_uid",
	"update_dashboard",
	"get_dashboard_panel_queries",
	"list_datasources",
	"get_datasource_by_uid",
	"get_datasource_by_name",
}

// Catalog is the merged tool list offered to the model.
type Catalog struct {
	Enabled bool
	Tools   []ToolDescriptor
}

type remoteSource struct {
	name   string
	source ToolSource
	allow  []string
}

func (r remoteSource) allowed(tool string) bool {
	return len(r.allow) == 0 || slices.Contains(r.allow, tool)
}

// Registry merges a local tool catalog with remote tool sources and routes
// calls by tool name.
type Registry struct {
	local   LocalToolSource
	remotes []remoteSource
	enabled func(ctx context.Context) (bool, error)
	logger  *slog.Logger

	mu          sync.RWMutex
	descriptors map[string]ToolDescriptor
	routes      map[string]ToolSource
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRemote adds a remote source. When allow is non-empty only the listed
// tool names are exposed.
func WithRemote(name string, source ToolSource, allow ...string) RegistryOption {
	return func(r *Registry) {
		if source == nil {
			return
		}
		r.remotes = append(r.remotes, remoteSource{name: name, source: source, allow: allow})
	}
}

// WithEnabledCheck sets the LLM capability check consulted by ListTools.
func WithEnabledCheck(fn func(ctx context.Context) (bool, error)) RegistryOption {
	return func(r *Registry) { r.enabled = fn }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry creates a Registry. local may be nil.
func NewRegistry(local LocalToolSource, opts ...RegistryOption) *Registry {
	r := &Registry{
		local:       local,
		logger:      slog.Default(),
		descriptors: make(map[string]ToolDescriptor),
		routes:      make(map[string]ToolSource),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListTools enumerates every source. A disabled LLM yields an empty,
// disabled catalog rather than an error; a failing remote source is skipped.
func (r *Registry) ListTools(ctx context.Context) (Catalog, error) {
	if r.enabled != nil {
		ok, err := r.enabled(ctx)
		if err != nil {
			r.logger.Warn("llm capability check failed", "error", err)
		}
		if err != nil || !ok {
			return Catalog{Enabled: false}, nil
		}
	}

	var tools []ToolDescriptor
	descriptors := make(map[string]ToolDescriptor)
	routes := make(map[string]ToolSource)

	add := func(d ToolDescriptor, src ToolSource) {
		if _, dup := descriptors[d.Name]; dup {
			return
		}
		descriptors[d.Name] = d
		routes[d.Name] = src
		tools = append(tools, d)
	}

	if r.local != nil {
		local, err := r.local.ListTools(ctx)
		if err != nil {
			return Catalog{}, err
		}
		for _, d := range local {
			add(d, r.local)
		}
	}

	for _, rs := range r.remotes {
		remote, err := rs.source.ListTools(ctx)
		if err != nil {
			r.logger.Warn("remote tool source unavailable", "source", rs.name, "error", err)
			continue
		}
		exposed := 0
		for _, d := range remote {
			if !rs.allowed(d.Name) {
				continue
			}
			add(d, rs.source)
			exposed++
		}
		r.logger.Debug("listed remote tools", "source", rs.name, "listed", len(remote), "exposed", exposed)
	}

	r.mu.Lock()
	r.descriptors = descriptors
	r.routes = routes
	r.mu.Unlock()

	return Catalog{Enabled: true, Tools: tools}, nil
}

// IsLocalTool reports whether name belongs to the local catalog.
func (r *Registry) IsLocalTool(name string) bool {
	return r.local != nil && r.local.IsTool(name)
}

// Resolve returns the source serving name: the local catalog first, then the
// remote source that listed it.
func (r *Registry) Resolve(name string) (ToolSource, error) {
	if r.IsLocalTool(name) {
		return r.local, nil
	}
	r.mu.RLock()
	src, ok := r.routes[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &ToolNotFoundError{Name: name}
	}
	return src, nil
}

// Descriptor returns the descriptor seen by the last ListTools.
func (r *Registry) Descriptor(name string) (ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[name]
	return d, ok
}
