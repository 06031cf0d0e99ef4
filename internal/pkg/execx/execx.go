// Package execx runs local processes and captures their output.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command failed (exit %d): %s", e.ExitCode, e.Command)
}

// Run executes name with args. A zero timeout means no deadline beyond ctx.
func Run(ctx context.Context, timeout time.Duration, name string, args ...string) (Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)

	var outb, errb bytes.Buffer
	cmd.Stdout = &outb
	cmd.Stderr = &errb

	err := cmd.Run()

	res := Result{
		Stdout: outb.String(),
		Stderr: errb.String(),
	}
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, fmt.Errorf("command timeout after %s: %s", timeout, line)
	}

	if err == nil {
		return res, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitCode()
		return res, &ExitError{Command: line, ExitCode: res.ExitCode, Stderr: strings.TrimSpace(res.Stderr)}
	}

	res.ExitCode = -1
	return res, fmt.Errorf("command error: %s: %w", line, err)
}

// Shell splits a command line into words and runs it without a shell.
func Shell(ctx context.Context, timeout time.Duration, commandLine string) (Result, error) {
	words, err := Split(commandLine)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	if len(words) == 0 {
		return Result{ExitCode: -1}, fmt.Errorf("empty command")
	}
	return Run(ctx, timeout, words[0], words[1:]...)
}

// Split breaks a command line into words with POSIX quoting rules. Shell
// expansions are not performed.
func Split(commandLine string) ([]string, error) {
	parser := shellwords.NewParser()
	words, err := parser.Parse(commandLine)
	if err != nil {
		return nil, fmt.Errorf("parse command line %q: %w", commandLine, err)
	}
	// the parser stops at an unquoted ; & | < or >
	if parser.Position >= 0 {
		return nil, fmt.Errorf("shell operators are not supported in %q", commandLine)
	}
	return words, nil
}
