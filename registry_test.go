package copilot_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/internal/testutil"
)

func names(tools []copilot.ToolDescriptor) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.Name
	}
	return out
}

func TestRegistry_MergesLocalAndAllowedRemote(t *testing.T) {
	local := &testutil.FakeSource{Tools: []copilot.ToolDescriptor{rowCountTool, {Name: "search_dashboards"}}}
	grafana := &testutil.FakeSource{Tools: []copilot.ToolDescriptor{
		{Name: "search_dashboards", Description: "remote copy"},
		{Name: "list_datasources"},
		{Name: "delete_dashboard"},
	}}
	reg := copilot.NewRegistry(local, copilot.WithRemote("grafana", grafana, copilot.GrafanaAllowedTools...))

	cat, err := reg.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if !cat.Enabled {
		t.Fatal("catalog should be enabled")
	}
	got := names(cat.Tools)
	want := []string{rowCountTool.Name, "search_dashboards", "list_datasources"}
	if len(got) != len(want) {
		t.Fatalf("got tools %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tool %d: got %s, want %s", i, got[i], want[i])
		}
	}

	src, err := reg.Resolve("search_dashboards")
	if err != nil || src != copilot.ToolSource(local) {
		t.Errorf("duplicate name should route to the local catalog, got %v %v", src, err)
	}
	src, err = reg.Resolve("list_datasources")
	if err != nil || src != copilot.ToolSource(grafana) {
		t.Errorf("list_datasources should route to grafana, got %v %v", src, err)
	}
	if _, err := reg.Resolve("delete_dashboard"); err == nil {
		t.Error("filtered tool must not resolve")
	}
}

func TestRegistry_SkipsFailingRemote(t *testing.T) {
	local := &testutil.FakeSource{Tools: []copilot.ToolDescriptor{rowCountTool}}
	down := &testutil.FakeSource{ListErr: errors.New("dial tcp: connection refused")}
	reg := copilot.NewRegistry(local, copilot.WithRemote("grafana", down))

	cat, err := reg.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if got := names(cat.Tools); len(got) != 1 || got[0] != rowCountTool.Name {
		t.Errorf("expected only local tools, got %v", got)
	}
}

func TestRegistry_LocalFailureIsAnError(t *testing.T) {
	local := &testutil.FakeSource{ListErr: errors.New("boom")}
	if _, err := copilot.NewRegistry(local).ListTools(context.Background()); err == nil {
		t.Error("expected an error from the local catalog")
	}
}

func TestRegistry_EnabledCheck(t *testing.T) {
	local := &testutil.FakeSource{Tools: []copilot.ToolDescriptor{rowCountTool}}
	for _, tc := range []struct {
		name string
		ok   bool
		err  error
	}{
		{"disabled", false, nil},
		{"check failure", true, errors.New("settings unavailable")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			reg := copilot.NewRegistry(local, copilot.WithEnabledCheck(func(context.Context) (bool, error) {
				return tc.ok, tc.err
			}))
			cat, err := reg.ListTools(context.Background())
			if err != nil {
				t.Fatalf("ListTools: %v", err)
			}
			if cat.Enabled || len(cat.Tools) != 0 {
				t.Errorf("expected an empty disabled catalog, got %+v", cat)
			}
		})
	}
}

func TestInvoker_NormalizesFailures(t *testing.T) {
	local := &testutil.FakeSource{
		Tools: []copilot.ToolDescriptor{rowCountTool, {Name: "flaky"}, {Name: "echo"}},
		Handlers: map[string]testutil.ToolHandler{
			"flaky": func(context.Context, json.RawMessage) (*copilot.CallToolResult, error) {
				return &copilot.CallToolResult{
					Content: []copilot.Content{copilot.TextContent("permission denied")},
					IsError: true,
				}, nil
			},
			"echo": func(_ context.Context, args json.RawMessage) (*copilot.CallToolResult, error) {
				return testutil.TextResult(string(args)), nil
			},
		},
	}
	reg := copilot.NewRegistry(local)
	if _, err := reg.ListTools(context.Background()); err != nil {
		t.Fatal(err)
	}
	inv := copilot.NewInvoker(reg, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    copilot.ToolCall
		text    string
		isError bool
	}{
		{"unknown tool", copilot.ToolCall{ID: "1", Name: "nope"}, "no MCP client found for tool: nope", true},
		{"null required field", rowCountCall("2", `{"tableName":null}`), "tableName argument is required", true},
		{"backend isError", copilot.ToolCall{ID: "3", Name: "flaky"}, "permission denied", true},
		{"empty args", copilot.ToolCall{ID: "4", Name: "echo"}, "{}", false},
		{"args passed through", copilot.ToolCall{ID: "5", Name: "echo", ArgsJSON: json.RawMessage(`{"q":1}`)}, `{"q":1}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := inv.CallTool(ctx, tt.call)
			if res.CallID != tt.call.ID || res.IsError != tt.isError || res.Text != tt.text {
				t.Errorf("got %+v, want text %q isError %v", res, tt.text, tt.isError)
			}
		})
	}

	res := inv.CallTool(ctx, copilot.ToolCall{ID: "6", Name: "echo", ArgsJSON: json.RawMessage(`[1,2]`)})
	if !res.IsError || !strings.HasPrefix(res.Text, "invalid arguments for echo: arguments must be a JSON object") {
		t.Errorf("non-object arguments should fail, got %+v", res)
	}
}
