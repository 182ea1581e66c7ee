package externaltool

import (
	"context"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const toolDocumentModel = "document_model"

// DocumentModel runs the document-understanding program over a file.
type DocumentModel struct {
	runner  *Runner
	command Command
}

func NewDocumentModel(runner *Runner, command Command) *DocumentModel {
	return &DocumentModel{runner: runner, command: command}
}

func (d *DocumentModel) Analyze(ctx context.Context, filePath string) (*domain.InferenceOutput, error) {
	if filePath == "" {
		return nil, nil
	}
	if !d.command.Configured() {
		d.runner.WarnOnce(toolDocumentModel, "binary", d.command.Binary, "script", d.command.Script)
		return nil, nil
	}

	raw, err := d.runner.Output(ctx, toolDocumentModel, d.command, nil, filePath)
	if err != nil {
		return nil, err
	}
	var out domain.InferenceOutput
	if err := decodeOutput(toolDocumentModel, "inference.json", inferenceSchema, raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
