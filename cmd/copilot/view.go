package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/inspirepan/copilot"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")). // cyan
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")) // magenta

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")). // bright black (gray)
			Italic(true)

	toolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("3")). // yellow
			Bold(true)

	toolOutputStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("4")) // blue

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")). // red
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")). // green
			Bold(true)
)

const maxToolOutput = 800

// termView renders conversation snapshots to a terminal as they arrive. It
// only ever appends: streamed assistant text is printed as a suffix of what
// was already shown.
type termView struct {
	out io.Writer

	mu       sync.Mutex
	cursor   int // history index being streamed
	printed  int // bytes of that message already printed
	started  map[string]bool
	finished map[string]bool
}

func newTermView(out io.Writer) *termView {
	v := &termView{out: out}
	v.reset()
	return v
}

func (v *termView) reset() {
	v.cursor = 0
	v.printed = 0
	v.started = make(map[string]bool)
	v.finished = make(map[string]bool)
}

// Observe is a copilot.Observer.
func (v *termView) Observe(s copilot.Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(s.History) < v.cursor {
		v.reset()
	}
	for i := v.cursor; i < len(s.History); i++ {
		m := s.History[i]
		if m.Role == copilot.RoleAssistant {
			v.printAssistant(m.Content)
		}
		if i == len(s.History)-1 {
			break
		}
		if v.printed > 0 {
			fmt.Fprintln(v.out)
		}
		v.cursor = i + 1
		v.printed = 0
	}

	for _, tc := range s.ToolCalls {
		if !v.started[tc.ID] {
			v.started[tc.ID] = true
			fmt.Fprintf(v.out, "%s %s %s\n", toolCallStyle.Render("Tool:"), tc.Name, mutedStyle.Render(string(tc.Arguments)))
		}
		if !tc.Running && !v.finished[tc.ID] {
			v.finished[tc.ID] = true
			v.printToolResult(tc)
		}
	}
}

func (v *termView) printAssistant(content string) {
	if len(content) <= v.printed {
		return
	}
	suffix := content[v.printed:]
	v.printed = len(content)

	// Stream failures are appended as "Error: ..." after any partial text.
	if before, errText, ok := strings.Cut(suffix, "Error: "); ok && strings.TrimSpace(before) == "" {
		fmt.Fprint(v.out, before+errorStyle.Render("Error: "+errText))
		return
	}
	fmt.Fprint(v.out, assistantStyle.Render(suffix))
}

func (v *termView) printToolResult(tc copilot.RenderedToolCall) {
	if tc.Error != "" {
		fmt.Fprintln(v.out, errorStyle.Render("  "+tc.Error))
		return
	}
	text := strings.TrimSpace(tc.Response.Text())
	text = truncate(text, maxToolOutput)
	if text != "" {
		fmt.Fprintln(v.out, toolOutputStyle.Render(text))
	}
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
