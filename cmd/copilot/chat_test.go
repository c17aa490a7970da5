package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/inspirepan/copilot"
)

func TestWatchInterrupts_QuitsWhenIdle(t *testing.T) {
	conv := copilot.NewConversation(nil, nil)
	sigs := make(chan os.Signal, 1)
	sigs <- os.Interrupt

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		watchInterrupts(context.Background(), sigs, conv, func() { close(quit) })
		close(done)
	}()

	select {
	case <-quit:
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt at the prompt did not quit")
	}
	<-done
}

func TestRepl_Commands(t *testing.T) {
	conv := copilot.NewConversation(nil, nil)
	var out bytes.Buffer
	listed := 0

	err := repl(context.Background(), conv, strings.NewReader("\n/clear\n/tools\n/exit\nnever asked\n"), &out, func() { listed++ })
	if err != nil {
		t.Fatalf("repl: %v", err)
	}
	if listed != 1 {
		t.Errorf("expected /tools to list once, got %d", listed)
	}
	if !strings.Contains(out.String(), "conversation cleared") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRepl_StopsWhenCancelled(t *testing.T) {
	conv := copilot.NewConversation(nil, nil)
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- repl(ctx, conv, r, io.Discard, func() {}) }()

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected a clean return, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("repl kept waiting for input after cancel")
	}
}
