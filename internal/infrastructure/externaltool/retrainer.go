package externaltool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const toolRetrainer = "retrainer"

// Retrainer launches the training script. It has no timeout of its own and
// shares the console of the host process.
type Retrainer struct {
	command Command
	logger  *slog.Logger
}

func NewRetrainer(command Command, logger *slog.Logger) *Retrainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrainer{command: command, logger: logger}
}

func (r *Retrainer) Available() bool {
	return r.command.Configured()
}

func (r *Retrainer) Run(ctx context.Context) error {
	name, argv := r.command.argv()
	cmd := commandContext(ctx, name, argv...) //nolint:gosec
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return domain.WrapError(domain.ErrToolUnavailable, toolRetrainer, err)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Warn("retrain_exit_nonzero", "exit_code", exitErr.ExitCode(), "duration_ms", time.Since(start).Milliseconds())
		}
		return domain.WrapError(domain.ErrToolFailure, toolRetrainer, err)
	}
	r.logger.Info("retrain_process_exited", "duration_ms", time.Since(start).Milliseconds())
	return nil
}
