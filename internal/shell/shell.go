// Package shell provides the command execution layer through which both
// provisioning pipelines drive their underlying subsystems. All subsystem
// invocations pass through a [Runner], so that callers remain testable and
// every mutating command is visible in the logs.
package shell

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Runner describes an implementation executing external commands.
type Runner interface {
	// Run executes a command and returns its combined output.
	Run(ctx context.Context, name string, args ...string) (string, error)

	// RunInput executes a command with input piped to its standard input and
	// returns its combined output.
	RunInput(ctx context.Context, input string, name string, args ...string) (string, error)

	// LookPath reports whether a command is resolvable on the system.
	LookPath(name string) (string, error)
}

// Exec is the principal [Runner] implementation, wrapping [exec.Cmd].
type Exec struct{}

// Run executes a command and returns its combined, whitespace-trimmed output.
// A non-zero exit wraps both the underlying error and any produced output, so
// the subsystem's own diagnostics survive into the error chain.
func (*Exec) Run(ctx context.Context, name string, args ...string) (string, error) {
	return run(ctx, "", name, args...)
}

// RunInput executes a command with input piped to its standard input and
// returns its combined, whitespace-trimmed output.
func (*Exec) RunInput(ctx context.Context, input string, name string, args ...string) (string, error) {
	return run(ctx, input, name, args...)
}

// LookPath wraps around [exec.LookPath].
func (*Exec) LookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("(shell) %w", err)
	}

	return path, nil
}

func run(ctx context.Context, input string, name string, args ...string) (string, error) {
	slog.Debug("Executing command.",
		"command", name,
		"args", strings.Join(args, " "),
	)

	cmd := exec.CommandContext(ctx, name, args...)
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}

	out, err := cmd.CombinedOutput()
	output := strings.TrimSpace(string(out))

	if err != nil {
		if output != "" {
			return output, fmt.Errorf("(shell) %s: %w: %s", name, err, output)
		}

		return output, fmt.Errorf("(shell) %s: %w", name, err)
	}

	return output, nil
}
