package externaltool

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const toolRedactor = "redactor"

// Redactor produces a masked copy of a document.
type Redactor struct {
	runner  *Runner
	command Command
}

func NewRedactor(runner *Runner, command Command) *Redactor {
	return &Redactor{runner: runner, command: command}
}

// Redact writes the masked copy to outputPath. The program may print a
// different location on stdout; that location wins only when it names an
// existing file, so status chatter on stdout falls back to outputPath.
func (r *Redactor) Redact(ctx context.Context, inputPath, outputPath string) (string, error) {
	if !r.command.Configured() {
		r.runner.WarnOnce(toolRedactor, "binary", r.command.Binary, "script", r.command.Script)
		return "", nil
	}

	raw, err := r.runner.Output(ctx, toolRedactor, r.command, nil, inputPath, outputPath)
	if err != nil {
		return "", err
	}

	if echoed := lastLine(string(raw)); echoed != "" && echoed != outputPath && fileExists(echoed) {
		return echoed, nil
	}
	if !fileExists(outputPath) {
		return "", domain.WrapError(domain.ErrToolFailure, toolRedactor, fmt.Errorf("redacted file %q not found", outputPath))
	}
	return outputPath, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
