package externaltool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const (
	toolLocalInference = "local_inference"

	LocalInferenceProvider = "local-inference"
	LocalInferenceRegion   = "local"
)

// LocalInference runs the text model in a subprocess. The request is sent
// as JSON on stdin; nothing leaves the host.
type LocalInference struct {
	runner  *Runner
	command Command
}

func NewLocalInference(runner *Runner, command Command) *LocalInference {
	return &LocalInference{runner: runner, command: command}
}

func (l *LocalInference) Infer(ctx context.Context, req domain.InferenceRequest) (*domain.InferenceOutput, error) {
	if !l.command.Configured() {
		l.runner.WarnOnce(toolLocalInference, "script", l.command.Script)
		return nil, nil
	}

	stdin, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode inference request: %w", err)
	}
	raw, err := l.runner.Output(ctx, toolLocalInference, l.command, stdin)
	if err != nil {
		return nil, err
	}
	var out domain.InferenceOutput
	if err := decodeOutput(toolLocalInference, "inference.json", inferenceSchema, raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (l *LocalInference) Describe() domain.Compliance {
	return domain.Compliance{Provider: LocalInferenceProvider, Region: LocalInferenceRegion}
}
