// File: cmd/deskpilot/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/deskpilot/cmd"
	"github.com/xkilldash9x/deskpilot/internal/observability"
)

const panicLogFile = "panic.log"

const prompt = "objective > "

// Function variables for dependency injection in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	// runObjective executes one objective through the regular command tree.
	runObjective = func(ctx context.Context, objective string) error {
		root := cmd.NewRootCommand()
		root.SetArgs([]string{"run", "--objective", objective})
		return root.ExecuteContext(ctx)
	}
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With arguments this binary behaves exactly like the CLI.
	if len(os.Args) > 1 {
		if err := cmd.Execute(ctx); err != nil && !errors.Is(err, context.Canceled) {
			osExit(1)
		}
		return
	}

	if err := repl(ctx, os.Stdin, os.Stdout, runObjective); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}
}

// repl reads one objective per line and runs each to termination before
// prompting again. It returns when the input ends, the user types exit or
// quit, or ctx is cancelled.
func repl(ctx context.Context, in io.Reader, out io.Writer, run func(context.Context, string) error) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
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
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nInterrupted.")
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = strings.TrimSpace(l)
		}

		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Fprintln(out, "Exiting deskpilot.")
			return nil
		}

		if err := runSafely(ctx, line, run); err != nil {
			fmt.Fprintf(out, "Objective ended: %v\n", err)
		}
		if ctx.Err() != nil {
			fmt.Fprintln(out, "Interrupted.")
			return nil
		}
	}
}

// runSafely keeps a panicking objective from taking the shell down.
func runSafely(ctx context.Context, objective string, run func(context.Context, string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			writePanicLog(r)
			err = fmt.Errorf("objective panicked: %v (details in %s)", r, panicLogFile)
		}
	}()
	return run(ctx, objective)
}

// handlePanic records a crash outside the interactive loop and exits non-zero.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		writePanicLog(r)
		fmt.Fprintf(os.Stderr, "deskpilot crashed: %v\nDetails logged to %s\n", r, panicLogFile)
		osExit(2)
	}
}

func writePanicLog(r interface{}) {
	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", msg)
	}
}
