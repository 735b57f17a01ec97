package bridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// timeoutExitCode mirrors coreutils timeout(1)
const timeoutExitCode = 124

// RunOutput is the captured result of a finished CLI process
type RunOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	PID      int
	TimedOut bool
}

// Runner launches the CLI. It only returns an error when the process could not be run at all;
// a non-zero exit is reported through RunOutput.ExitCode.
type Runner interface {
	Run(ctx context.Context, name string, args []string, onStderrLine func(string)) (*RunOutput, error)
}

// ExecRunner runs the CLI with os/exec
type ExecRunner struct {
	Dir string
	Env []string
}

// Run executes the command and blocks until it exits
func (r ExecRunner) Run(ctx context.Context, name string, args []string, onStderrLine func(string)) (*RunOutput, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.WaitDelay = 5 * time.Second

	var stdout bytes.Buffer
	stderr := &lineWriter{onLine: onStderrLine}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	stderr.Flush()

	out := &RunOutput{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.Process != nil {
		out.PID = cmd.Process.Pid
	}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			out.ExitCode = timeoutExitCode
			out.TimedOut = true
		case errors.As(err, &exitErr):
			out.ExitCode = exitErr.ExitCode()
		default:
			// Command failed to start
			return nil, err
		}
	}

	return out, nil
}

// lineWriter buffers everything written to it and calls onLine for every complete line
type lineWriter struct {
	mu      sync.Mutex
	all     bytes.Buffer
	partial []byte
	onLine  func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.all.Write(p)
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSuffix(string(w.partial[:i]), "\r")
		w.partial = w.partial[i+1:]
		if w.onLine != nil {
			w.onLine(line)
		}
	}
	return len(p), nil
}

// Flush emits a trailing line that had no newline
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 && w.onLine != nil {
		w.onLine(string(w.partial))
	}
	w.partial = nil
}

func (w *lineWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.all.String()
}

// CLIError is returned when the CLI exits unsuccessfully
type CLIError struct {
	ExitCode int
	Stderr   string
	TimedOut bool
	Timeout  time.Duration
}

func (e *CLIError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("CLI error: timed out after %s", e.Timeout)
	}
	return fmt.Sprintf("CLI error: %s", strings.TrimSpace(e.Stderr))
}
