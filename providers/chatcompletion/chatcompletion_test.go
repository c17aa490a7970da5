package chatcompletion_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inspirepan/copilot"
	"github.com/inspirepan/copilot/internal/testutil"
	cc "github.com/inspirepan/copilot/providers/chatcompletion"
	"github.com/openai/openai-go/v3"
)

const envKey = "OPENAI_API_KEY"

func TestOpenAI_LiveTextGeneration(t *testing.T) {
	testutil.SkipIfNoEnv(t, envKey)

	testutil.TestBasicTextGeneration(t, testutil.DefaultConfig(cc.New("gpt-4o-mini")))
}

func TestOpenAI_LiveToolCalling(t *testing.T) {
	testutil.SkipIfNoEnv(t, envKey)

	testutil.TestToolCalling(t, testutil.DefaultConfig(cc.New("gpt-4o-mini")))
}

func mustChunk(t *testing.T, raw string) openai.ChatCompletionChunk {
	t.Helper()
	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(raw), &chunk); err != nil {
		t.Fatalf("unmarshal chunk: %v", err)
	}
	return chunk
}

func TestClassifyChunk_TextAndToolCallInSameChunk(t *testing.T) {
	chunk := mustChunk(t, `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"Looking","tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"sql_list_tables","arguments":"{"}}]},"finish_reason":null}]}`)

	deltas := cc.ClassifyChunk(chunk)
	if len(deltas) != 2 {
		t.Fatalf("expected 2 deltas, got %d: %#v", len(deltas), deltas)
	}
	text, ok := deltas[0].(copilot.TextDelta)
	if !ok || text.Delta != "Looking" {
		t.Fatalf("expected text delta, got %#v", deltas[0])
	}
	tc, ok := deltas[1].(copilot.ToolCallDelta)
	if !ok {
		t.Fatalf("expected tool call delta, got %#v", deltas[1])
	}
	if tc.Index != 0 || tc.CallID != "call_a" || tc.Name != "sql_list_tables" || tc.ArgsDelta != "{" {
		t.Errorf("unexpected tool call delta: %#v", tc)
	}
}

func TestClassifyChunk_FinishReasonAndUsage(t *testing.T) {
	chunk := mustChunk(t, `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`)

	deltas := cc.ClassifyChunk(chunk)
	var stop *copilot.StopDelta
	var usage *copilot.UsageDelta
	for _, d := range deltas {
		switch d := d.(type) {
		case copilot.StopDelta:
			stop = &d
		case copilot.UsageDelta:
			usage = &d
		}
	}
	if stop == nil || stop.Reason != copilot.StopToolUse {
		t.Errorf("expected tool_use stop, got %#v", stop)
	}
	if usage == nil || usage.Usage.InputTokens != 10 || usage.Usage.OutputTokens != 5 || usage.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage: %#v", usage)
	}
}

func TestClassifyChunk_EmptyChoicesIgnored(t *testing.T) {
	chunk := mustChunk(t, `{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[]}`)
	if deltas := cc.ClassifyChunk(chunk); len(deltas) != 0 {
		t.Errorf("expected no deltas, got %#v", deltas)
	}
}

type fakeChunks struct {
	chunks []openai.ChatCompletionChunk
	err    error
	i      int
	closed bool
}

func (f *fakeChunks) Next() bool {
	if f.i >= len(f.chunks) {
		return false
	}
	f.i++
	return true
}

func (f *fakeChunks) Current() openai.ChatCompletionChunk { return f.chunks[f.i-1] }
func (f *fakeChunks) Err() error                          { return f.err }
func (f *fakeChunks) Close() error                        { f.closed = true; return nil }

func TestStream_EndsWithEOF(t *testing.T) {
	src := &fakeChunks{chunks: []openai.ChatCompletionChunk{
		mustChunk(t, `{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"Hel"}}]}`),
		mustChunk(t, `{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`),
	}}
	s := cc.NewStream(src, nil)

	comp, err := copilot.StreamCompletion(context.Background(), providerFunc(func() copilot.ProviderStream { return s }), copilot.ProviderRequest{}, nil)
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if comp.Content != "Hello" {
		t.Errorf("expected Hello, got %q", comp.Content)
	}
	if comp.StopReason != copilot.StopStop {
		t.Errorf("expected stop, got %q", comp.StopReason)
	}
	if !src.closed {
		t.Error("expected source to be closed")
	}
}

func TestStream_TransportErrorSurfaces(t *testing.T) {
	src := &fakeChunks{
		chunks: []openai.ChatCompletionChunk{
			mustChunk(t, `{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"partial"}}]}`),
		},
		err: errors.New("connection reset"),
	}
	s := cc.NewStream(src, nil)

	d, err := s.Next(context.Background())
	if err != nil || d.(copilot.TextDelta).Delta != "partial" {
		t.Fatalf("expected partial text first, got %#v, %v", d, err)
	}
	if _, err := s.Next(context.Background()); err == nil || err.Error() != "connection reset" {
		t.Fatalf("expected connection reset, got %v", err)
	}
}

func TestStream_CancelledContext(t *testing.T) {
	s := cc.NewStream(&fakeChunks{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type providerFunc func() copilot.ProviderStream

func (f providerFunc) Stream(context.Context, copilot.ProviderRequest) (copilot.ProviderStream, error) {
	return f(), nil
}

func TestBuildParams_ReplaysToolRound(t *testing.T) {
	req := copilot.ProviderRequest{
		SystemPrompt: "sys",
		History: []copilot.Message{
			copilot.UserMessage("what tables?"),
			{Role: copilot.RoleAssistant, ToolCalls: []copilot.ToolCall{{ID: "call_1", Name: "sql_list_tables"}}},
			copilot.ToolMessage("call_1", "Found 1 tables in the database:\n- users"),
		},
		Tools: []copilot.ToolDescriptor{{Name: "sql_list_tables", Description: "List tables"}},
	}

	params := cc.BuildParams(req, false)
	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected system message first")
	}
	asst := params.Messages[2].OfAssistant
	if asst == nil || len(asst.ToolCalls) != 1 {
		t.Fatalf("expected assistant message with one tool call, got %#v", params.Messages[2])
	}
	fn := asst.ToolCalls[0].OfFunction
	if fn.ID != "call_1" || fn.Function.Name != "sql_list_tables" || fn.Function.Arguments != "{}" {
		t.Errorf("unexpected tool call: %#v", fn)
	}
	tool := params.Messages[3].OfTool
	if tool == nil || tool.ToolCallID != "call_1" {
		t.Fatalf("expected tool message for call_1, got %#v", params.Messages[3])
	}
	if len(params.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(params.Tools))
	}
}

func TestProvider_StreamsFromServer(t *testing.T) {
	chunks := []string{
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"role":"assistant","tool_calls":[{"index":0,"id":"call_x","type":"function","function":{"name":"sql_get_table_row_count","arguments":""}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"tableName\":"}}]}}]}`,
		`{"id":"c","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"users\"}"}}]},"finish_reason":"tool_calls"}]}`,
	}
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range chunks {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := cc.New("test-model", cc.WithAPIKey("test"), cc.WithBaseURL(srv.URL+"/v1"))
	comp, err := copilot.StreamCompletion(context.Background(), p, copilot.ProviderRequest{
		History: []copilot.Message{copilot.UserMessage("how many users?")},
	}, nil)
	if err != nil {
		t.Fatalf("StreamCompletion: %v", err)
	}
	if len(comp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %#v", comp.ToolCalls)
	}
	call := comp.ToolCalls[0]
	if call.ID != "call_x" || call.Name != "sql_get_table_row_count" || string(call.ArgsJSON) != `{"tableName":"users"}` {
		t.Errorf("unexpected call: %#v", call)
	}
	if gotBody["model"] != "test-model" || gotBody["stream"] != true {
		t.Errorf("unexpected request body: %v", gotBody)
	}
}

func TestBuildParams_SkipsEmptyAssistantTurns(t *testing.T) {
	params := cc.BuildParams(copilot.ProviderRequest{
		History: []copilot.Message{
			copilot.UserMessage("hi"),
			copilot.AssistantMessage(""),
			copilot.UserMessage("hello?"),
		},
	}, false)

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	for i, m := range params.Messages {
		if m.OfUser == nil {
			t.Errorf("message %d: expected a user message, got %#v", i, m)
		}
	}
}
