package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultMaxRounds bounds the number of tool rounds a single Send may run.
const DefaultMaxRounds = 10

// DefaultSystemPrompt is the copilot persona.
const DefaultSystemPrompt = `You are a helpful SQL and data analysis assistant with deep knowledge of Grafana, Prometheus, PostgreSQL, and the general observability ecosystem.

You have access to PostgreSQL database tools that allow you to:
- List tables
- Describe table schemas
- Execute SELECT queries
- Count rows
- Get sample data

Help users write SQL queries, analyze data, understand their database structure, and gain insights from their metrics.

Always use the available database tools to provide accurate and current information about the database structure and data.`

// Conversation owns the chat history and the tool-call map and runs the
// stream → tools → stream loop for each user turn.
//
// Observers are called synchronously after every change and must not call
// Send, Clear or Cancel from inside the callback.
type Conversation struct {
	provider     Provider
	registry     *Registry
	invoker      *Invoker
	systemPrompt string
	maxRounds    int
	logger       *slog.Logger
	observer     Observer

	mu        sync.Mutex
	history   []Message
	toolCalls map[string]*RenderedToolCall
	toolOrder []string
	state     State
	catalog   *Catalog
	cancel    context.CancelFunc
	// epoch changes on Clear so that writes from an abandoned round are dropped.
	epoch uint64

	notifyMu sync.Mutex
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithSystemPrompt overrides DefaultSystemPrompt.
func WithSystemPrompt(prompt string) ConversationOption {
	return func(c *Conversation) { c.systemPrompt = prompt }
}

// WithMaxRounds overrides DefaultMaxRounds. Values below 1 are ignored.
func WithMaxRounds(n int) ConversationOption {
	return func(c *Conversation) {
		if n > 0 {
			c.maxRounds = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ConversationOption {
	return func(c *Conversation) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers the view callback.
func WithObserver(o Observer) ConversationOption {
	return func(c *Conversation) { c.observer = o }
}

// NewConversation creates an idle conversation. Tools must be loaded with
// LoadTools before the first Send.
func NewConversation(provider Provider, registry *Registry, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		provider:     provider,
		registry:     registry,
		systemPrompt: DefaultSystemPrompt,
		maxRounds:    DefaultMaxRounds,
		logger:       slog.Default(),
		toolCalls:    make(map[string]*RenderedToolCall),
		state:        StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.invoker = NewInvoker(registry, c.logger)
	return c
}

// LoadTools fetches the tool catalog. Until it reports an enabled catalog,
// Send returns ErrToolsUnavailable.
func (c *Conversation) LoadTools(ctx context.Context) (Catalog, error) {
	if c.registry == nil {
		cat := Catalog{Enabled: true}
		c.mu.Lock()
		c.catalog = &cat
		c.mu.Unlock()
		return cat, nil
	}
	cat, err := c.registry.ListTools(ctx)
	if err != nil {
		return Catalog{}, fmt.Errorf("load tools: %w", err)
	}
	c.mu.Lock()
	c.catalog = &cat
	c.mu.Unlock()
	c.logger.Info("tools loaded", "enabled", cat.Enabled, "count", len(cat.Tools))
	return cat, nil
}

// Send runs one user turn to completion. It returns a guard error without
// touching the history when the input is blank, a generation is already in
// flight, or tools are unavailable. Stream failures are reported inside the
// conversation, not as a return value.
func (c *Conversation) Send(ctx context.Context, input string) error {
	if c.provider == nil {
		return ErrNoProvider
	}
	text := strings.TrimSpace(input)

	c.mu.Lock()
	if text == "" {
		c.mu.Unlock()
		return ErrEmptyInput
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrGenerating
	}
	if c.catalog == nil || !c.catalog.Enabled {
		c.mu.Unlock()
		return ErrToolsUnavailable
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	epoch := c.epoch
	tools := append([]ToolDescriptor(nil), c.catalog.Tools...)
	c.history = append(c.history, UserMessage(text), AssistantMessage(""))
	c.state = StateAwaitingModel
	c.mu.Unlock()
	c.publish()

	defer func() {
		cancel()
		c.finish(epoch)
	}()

	c.run(runCtx, epoch, tools)
	return nil
}

func (c *Conversation) run(ctx context.Context, epoch uint64, tools []ToolDescriptor) {
	for round := 1; ; round++ {
		req := ProviderRequest{
			SystemPrompt: c.systemPrompt,
			History:      c.modelHistory(),
			Tools:        tools,
		}

		c.logger.Debug("streaming completion", "round", round, "messages", len(req.History), "tools", len(tools))
		comp, err := StreamCompletion(ctx, c.provider, req, func(content string) {
			c.setAssistantContent(epoch, content)
		})
		if err != nil {
			c.logger.Warn("completion stream failed", "round", round, "error", err)
			c.failAssistant(epoch, comp.Content, err)
			return
		}
		if comp.Usage != nil {
			c.logger.Debug("completion usage", "round", round, "input_tokens", comp.Usage.InputTokens, "output_tokens", comp.Usage.OutputTokens)
		}
		c.setAssistantContent(epoch, comp.Content)

		if len(comp.ToolCalls) == 0 {
			return
		}

		assistantIdx, calls, ok := c.beginTools(epoch, comp.ToolCalls)
		if !ok {
			return
		}
		results := c.executeTools(ctx, epoch, assistantIdx, calls)
		if !c.appendToolMessages(epoch, results) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if round >= c.maxRounds {
			c.logger.Warn("tool round limit reached", "max_rounds", c.maxRounds)
			c.appendAssistant(epoch, fmt.Sprintf("Error: stopped after %d tool rounds without a final answer", c.maxRounds), StateIdle)
			return
		}
		// Fresh placeholder so the view can show a thinking indicator for the next round.
		c.appendAssistant(epoch, "", StateAwaitingModel)
	}
}

// modelHistory is the history sent to the provider, without the trailing
// empty assistant placeholder.
func (c *Conversation) modelHistory() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := c.history
	if n := len(h); n > 0 && h[n-1].Role == RoleAssistant && h[n-1].Content == "" && len(h[n-1].ToolCalls) == 0 {
		h = h[:n-1]
	}
	return cloneMessages(h)
}

func (c *Conversation) lastAssistantLocked() *Message {
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].Role == RoleAssistant {
			return &c.history[i]
		}
	}
	return nil
}

func (c *Conversation) setAssistantContent(epoch uint64, content string) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	if m := c.lastAssistantLocked(); m != nil {
		m.Content = content
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Conversation) failAssistant(epoch uint64, partial string, err error) {
	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = "request cancelled"
	}
	content := "Error: " + msg
	if partial != "" {
		content = partial + "\n\n" + content
	}
	c.setAssistantContent(epoch, content)
}

func (c *Conversation) appendAssistant(epoch uint64, content string, next State) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.history = append(c.history, AssistantMessage(content))
	c.state = next
	c.mu.Unlock()
	c.publish()
}

// beginTools records the calls on the current assistant message and marks
// them running. It returns the index of that message in the history and the
// calls as recorded: an id already present in the tool-call map is replaced
// so that every id maps to one rendered call and one tool message.
func (c *Conversation) beginTools(epoch uint64, calls []ToolCall) (int, []ToolCall, bool) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return 0, nil, false
	}
	calls = append([]ToolCall(nil), calls...)
	for i := range calls {
		if _, taken := c.toolCalls[calls[i].ID]; taken || calls[i].ID == "" {
			fresh := "call_" + uuid.NewString()
			c.logger.Debug("reassigned tool call id", "tool", calls[i].Name, "id", calls[i].ID, "new_id", fresh)
			calls[i].ID = fresh
		}
		c.toolCalls[calls[i].ID] = &RenderedToolCall{
			ID:        calls[i].ID,
			Name:      calls[i].Name,
			Arguments: calls[i].ArgsJSON,
			Running:   true,
		}
		c.toolOrder = append(c.toolOrder, calls[i].ID)
	}
	idx := -1
	for i := len(c.history) - 1; i >= 0; i-- {
		if c.history[i].Role == RoleAssistant {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.history = append(c.history, AssistantMessage(""))
		idx = len(c.history) - 1
	}
	c.history[idx].ToolCalls = append([]ToolCall(nil), calls...)
	c.state = StateExecutingTools
	c.mu.Unlock()
	c.publish()
	return idx, calls, true
}

func (c *Conversation) finishToolCall(epoch uint64, res ToolResult) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	if tc, ok := c.toolCalls[res.CallID]; ok {
		tc.Running = false
		if res.IsError {
			tc.Error = res.Text
		}
		tc.Response = res.Raw
	}
	c.mu.Unlock()
	c.publish()
}

// appendToolMessages appends one tool message per result, in the order of
// results (the model's call order).
func (c *Conversation) appendToolMessages(epoch uint64, results []ToolResult) bool {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return false
	}
	for _, res := range results {
		msg := ToolMessage(res.CallID, res.Text)
		msg.IsError = res.IsError
		c.history = append(c.history, msg)
	}
	c.state = StateAwaitingModel
	c.mu.Unlock()
	c.publish()
	return true
}

func (c *Conversation) finish(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.cancel = nil
	c.mu.Unlock()
	c.publish()
}

// Cancel aborts the in-flight round, if any.
func (c *Conversation) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Clear resets the history and the tool-call map. An in-flight round is
// cancelled and its remaining updates are discarded.
func (c *Conversation) Clear() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.epoch++
	c.history = nil
	c.toolCalls = make(map[string]*RenderedToolCall)
	c.toolOrder = nil
	c.state = StateIdle
	c.mu.Unlock()
	c.publish()
}

// Snapshot returns a copy of the observable state.
func (c *Conversation) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Conversation) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      c.state,
		Generating: c.state != StateIdle,
		History:    cloneMessages(c.history),
		ToolCalls:  make([]RenderedToolCall, 0, len(c.toolOrder)),
	}
	for _, id := range c.toolOrder {
		if tc, ok := c.toolCalls[id]; ok {
			s.ToolCalls = append(s.ToolCalls, *tc)
		}
	}
	return s
}

// History returns a copy of the conversation history.
func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneMessages(c.history)
}

// Generating reports whether a round is in flight.
func (c *Conversation) Generating() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != StateIdle
}

// RunningToolCalls counts tool calls still in flight.
func (c *Conversation) RunningToolCalls() int {
	return c.Snapshot().RunningToolCalls()
}

// Catalog returns the last loaded tool catalog.
func (c *Conversation) Catalog() (Catalog, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog == nil {
		return Catalog{}, false
	}
	return *c.catalog, true
}

func (c *Conversation) publish() {
	if c.observer == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.observer(c.Snapshot())
}
