// Package cli is the terminal front end of the chat page: it drives a
// session.Controller from lines of input and prints the transcript.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mortgage-copilot/internal/session"
	"mortgage-copilot/internal/workflow"
)

const help = `Commands:
  /stages        show the workflow timeline
  /stage N       jump to stage N without sending anything
  /s N           send suggestion N
  /help          show this help
  /quit          leave
Anything else is sent to the copilot.`

type REPL struct {
	ctrl    *session.Controller
	catalog *workflow.Catalog
	out     io.Writer
}

func NewREPL(ctrl *session.Controller, catalog *workflow.Catalog, out io.Writer) (*REPL, error) {
	if ctrl == nil || catalog == nil || out == nil {
		return nil, errors.New("cli: controller, catalog and output are required")
	}
	return &REPL{ctrl: ctrl, catalog: catalog, out: out}, nil
}

// Run prints the opening state and processes lines from in until EOF, /quit
// or ctx is cancelled.
func (r *REPL) Run(ctx context.Context, in io.Reader) error {
	state := r.ctrl.Snapshot()
	for _, m := range state.Messages {
		r.printMessage(m)
	}
	r.printPrompt(state)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		quit, err := r.handle(ctx, scanner.Text())
		if err != nil {
			fmt.Fprintf(r.out, "! %v\n", err)
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func (r *REPL) handle(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		return false, r.send(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprintln(r.out, help)
	case "/stages":
		r.printTimeline(r.ctrl.Snapshot().StageIndex)
	case "/stage":
		n, err := ordinal(arg)
		if err != nil {
			return false, err
		}
		if err := r.ctrl.SelectStage(n); err != nil {
			return false, fmt.Errorf("stage %s: %w", arg, err)
		}
		r.printPrompt(r.ctrl.Snapshot())
	case "/s":
		n, err := ordinal(arg)
		if err != nil {
			return false, err
		}
		suggestions := r.ctrl.Snapshot().Suggestions
		if n >= len(suggestions) {
			return false, fmt.Errorf("no suggestion %s", arg)
		}
		return false, r.send(ctx, suggestions[n])
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return false, nil
}

func (r *REPL) send(ctx context.Context, text string) error {
	turn, err := r.ctrl.Send(ctx, text)
	if err != nil {
		return err
	}
	r.printMessage(turn.Reply)
	r.printPrompt(r.ctrl.Snapshot())
	return nil
}

func (r *REPL) printMessage(m session.Message) {
	fmt.Fprintf(r.out, "%s> %s\n", m.Role, m.Content)
}

func (r *REPL) printPrompt(state session.State) {
	stage, err := r.catalog.Stage(state.StageIndex)
	if err == nil {
		fmt.Fprintf(r.out, "[%d/%d %s]\n", state.StageIndex+1, r.catalog.Len(), stage.Title)
	}
	for i, s := range state.Suggestions {
		fmt.Fprintf(r.out, "  %d) %s\n", i+1, s)
	}
}

func (r *REPL) printTimeline(current int) {
	for i, s := range r.catalog.Stages() {
		marker := " "
		switch {
		case i < current:
			marker = "x"
		case i == current:
			marker = ">"
		}
		fmt.Fprintf(r.out, " %s %d. %s: %s\n", marker, i+1, s.Title, s.Summary)
	}
}

// ordinal parses a 1-based number typed by the user into an index.
func ordinal(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("expected a number from 1, got %q", arg)
	}
	return n - 1, nil
}
