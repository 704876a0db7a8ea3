// Package cli runs shell commands on behalf of the execute-shell built-in
// tool, the "shell:" skill/scheduled-task command grammar, and the
// execute-applescript built-in (via /usr/bin/osascript). It keeps a
// timeout+output-truncation+OTel-instrumentation shape but drops any
// workdir-confinement sandbox: Lavis's tools operate across the whole
// desktop by design, not inside one project directory, so there is no
// single root to sandbox paths under.
package cli

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Request describes one shell invocation.
type Request struct {
	// Shell is the full command line, interpreted by /bin/sh -c (or
	// osascript -e for AppleScript bodies via RunAppleScript).
	Shell   string
	Timeout time.Duration
}

// Result is the outcome of a shell invocation.
type Result struct {
	OK         bool
	ExitCode   int
	Stdout     string
	Stderr     string
	DurationMS int64
	Truncated  bool
}

// Executor runs shell/AppleScript commands with a bounded timeout and
// truncated output capture.
type Executor interface {
	Run(ctx context.Context, req Request) (Result, error)
	RunAppleScript(ctx context.Context, script string, timeout time.Duration) (Result, error)
}

type executor struct {
	defaultTimeout time.Duration
	outLimit       int
}

// NewExecutor returns an Executor with a bounded default timeout and a
// 64KiB per-stream output cap.
func NewExecutor(defaultTimeout time.Duration) Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &executor{defaultTimeout: defaultTimeout, outLimit: 64 * 1024}
}

func (e *executor) Run(ctx context.Context, req Request) (Result, error) {
	if req.Shell == "" {
		return Result{}, errors.New("cli: command is required")
	}
	return e.run(ctx, exec.Command("/bin/sh", "-c", req.Shell), req.Timeout)
}

func (e *executor) RunAppleScript(ctx context.Context, script string, timeout time.Duration) (Result, error) {
	if script == "" {
		return Result{}, errors.New("cli: applescript body is required")
	}
	return e.run(ctx, exec.Command("osascript", "-e", script), timeout)
}

func (e *executor) run(ctx context.Context, c *exec.Cmd, timeout time.Duration) (Result, error) {
	tracer := otel.Tracer("tools/cli")
	meter := otel.Meter("tools/cli")
	ctx, span := tracer.Start(ctx, "run")
	defer span.End()

	cmdCounter, _ := meter.Int64Counter("cli.commands.total")
	durHist, _ := meter.Int64Histogram("cli.command.duration.ms")

	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c = exec.CommandContext(ctx, c.Path, c.Args[1:]...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	dur := time.Since(start)
	cmdCounter.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("command", c.Path)))
	durHist.Record(ctx, dur.Milliseconds(), otelmetric.WithAttributes(attribute.String("command", c.Path)))

	exit := 0
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exit = ee.ExitCode()
		} else if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			exit = 124
		} else {
			exit = 1
		}
	}
	span.SetAttributes(attribute.String("cli.command", c.Path), attribute.Int("cli.exit_code", exit), attribute.Int64("cli.duration_ms", dur.Milliseconds()))

	outS, trunc1 := truncate(stdout.String(), e.outLimit)
	errS, trunc2 := truncate(stderr.String(), e.outLimit)

	return Result{
		OK:         err == nil,
		ExitCode:   exit,
		Stdout:     outS,
		Stderr:     errS,
		DurationMS: dur.Milliseconds(),
		Truncated:  trunc1 || trunc2,
	}, nil
}

func truncate(s string, limit int) (string, bool) {
	if limit <= 0 || len(s) <= limit {
		return s, false
	}
	return s[:limit] + "\n[TRUNCATED]", true
}
