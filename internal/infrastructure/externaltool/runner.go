// Package externaltool runs the optional ML helper programs (classifier,
// document model, redactor, local inference, retraining) as subprocesses.
package externaltool

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

var commandContext = exec.CommandContext

const (
	defaultTimeout   = 60 * time.Second
	defaultMaxOutput = 4 << 20
	stderrLogLimit   = 2048
)

// Command is how a tool is launched: a binary on its own, or a script under
// an interpreter. A binary wins when both are set.
type Command struct {
	Binary      string
	Interpreter string
	Script      string
}

// Configured reports whether the command points at something on disk.
func (c Command) Configured() bool {
	if c.Binary != "" {
		return fileExists(c.Binary)
	}
	return c.Script != "" && fileExists(c.Script)
}

func (c Command) argv(args ...string) (string, []string) {
	if c.Binary != "" {
		return c.Binary, args
	}
	interpreter := c.Interpreter
	if interpreter == "" {
		interpreter = "python3"
	}
	return interpreter, append([]string{c.Script}, args...)
}

// Runner executes tools with a timeout, bounded stdout and capped stderr.
type Runner struct {
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger

	mu     sync.Mutex
	warned map[string]*sync.Once
}

func NewRunner(timeout time.Duration, maxOutput int, logger *slog.Logger) *Runner {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if maxOutput <= 0 {
		maxOutput = defaultMaxOutput
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		timeout:   timeout,
		maxOutput: maxOutput,
		logger:    logger,
		warned:    make(map[string]*sync.Once),
	}
}

// Output runs the tool and returns its stdout. A process that cannot start
// maps to ErrToolUnavailable; a non-zero exit or oversized output maps to
// ErrToolFailure.
func (r *Runner) Output(ctx context.Context, tool string, command Command, stdin []byte, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	name, argv := command.argv(args...)
	stdout := &limitedBuffer{limit: r.maxOutput}
	stderr := &limitedBuffer{limit: stderrLogLimit}

	cmd := commandContext(ctx, name, argv...) //nolint:gosec
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 5 * time.Second
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, domain.WrapError(domain.ErrToolUnavailable, tool, err)
	}
	err := cmd.Wait()
	duration := time.Since(start)

	if err != nil {
		r.logger.Warn("external_tool_failed",
			"tool", tool,
			"command", name,
			"args", argv,
			"duration_ms", duration.Milliseconds(),
			"stderr", strings.TrimSpace(stderr.String()),
			"error", err,
		)
		if ctx.Err() != nil {
			return nil, domain.WrapError(domain.ErrToolFailure, tool, fmt.Errorf("timed out after %s: %w", r.timeout, ctx.Err()))
		}
		return nil, domain.WrapError(domain.ErrToolFailure, tool, err)
	}
	if stdout.truncated {
		return nil, domain.WrapError(domain.ErrToolFailure, tool, fmt.Errorf("output exceeds %d bytes", r.maxOutput))
	}

	r.logger.Debug("external_tool_finished", "tool", tool, "duration_ms", duration.Milliseconds())
	return stdout.Bytes(), nil
}

// WarnOnce logs that a tool is not configured, once per tool per process.
func (r *Runner) WarnOnce(tool string, attrs ...any) {
	r.mu.Lock()
	once, ok := r.warned[tool]
	if !ok {
		once = &sync.Once{}
		r.warned[tool] = once
	}
	r.mu.Unlock()

	once.Do(func() {
		r.logger.Warn("external_tool_not_configured", append([]any{"tool", tool}, attrs...)...)
	})
}

// limitedBuffer keeps the first limit bytes and silently drops the rest so a
// chatty child never blocks on a full pipe.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte  { return b.buf.Bytes() }
func (b *limitedBuffer) String() string { return b.buf.String() }

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
