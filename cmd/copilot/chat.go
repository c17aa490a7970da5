package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/inspirepan/copilot"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Chat with the copilot",
	Long: `Start an interactive chat. With a question argument, answer it and exit.

Inside the chat:
  /clear   start over
  /tools   list the tools offered to the model
  /exit    quit
Ctrl-C cancels the answer being generated.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	view := newTermView(out)
	conv, err := a.conversation(view.Observe)
	if err != nil {
		return err
	}
	cat, err := conv.LoadTools(ctx)
	if err != nil {
		return err
	}
	if !cat.Enabled {
		return fmt.Errorf("the LLM is not available: configure an API key for %s", a.cfg.Provider)
	}

	// Ctrl-C cancels a running answer; at the prompt it ends the session so
	// deferred cleanup still runs.
	ctx, quit := context.WithCancel(ctx)
	defer quit()
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go watchInterrupts(ctx, sigs, conv, quit)

	if len(args) > 0 {
		question := strings.Join(args, " ")
		fmt.Fprintln(out, userStyle.Render("> ")+question)
		return ask(ctx, conv, out, question)
	}

	fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("%s · %s · %d tools · /exit to quit", a.cfg.Provider, a.cfg.Active().Model, len(cat.Tools))))
	return repl(ctx, conv, cmd.InOrStdin(), out, func() { printTools(out, cat, a.registry) })
}

// watchInterrupts cancels a running answer on each signal, or calls quit
// when nothing is running.
func watchInterrupts(ctx context.Context, sigs <-chan os.Signal, conv *copilot.Conversation, quit func()) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigs:
		}
		if conv.Generating() {
			conv.Cancel()
			continue
		}
		quit()
		return
	}
}

// repl reads questions until EOF, /exit or ctx is done.
func repl(ctx context.Context, conv *copilot.Conversation, in io.Reader, out io.Writer, listTools func()) error {
	var scanErr error
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr = scanner.Err()
	}()

	for {
		fmt.Fprint(out, userStyle.Render("> "))
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return scanErr
			}
			line = strings.TrimSpace(l)
		}

		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			conv.Clear()
			fmt.Fprintln(out, mutedStyle.Render("conversation cleared"))
			continue
		case "/tools":
			listTools()
			continue
		}
		if err := ask(ctx, conv, out, line); err != nil {
			return err
		}
	}
}

func ask(ctx context.Context, conv *copilot.Conversation, out io.Writer, question string) error {
	err := conv.Send(ctx, question)
	fmt.Fprintln(out)
	return err
}
