package externaltool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const toolClassifier = "classifier"

// Classifier asks the trained template classifier which candidate a text
// belongs to.
type Classifier struct {
	runner    *Runner
	command   Command
	modelPath string
}

func NewClassifier(runner *Runner, command Command, modelPath string) *Classifier {
	return &Classifier{runner: runner, command: command, modelPath: modelPath}
}

type classifierInput struct {
	Text         string  `json:"text"`
	CandidateIDs []int64 `json:"candidateIds"`
}

type classifierOutput struct {
	TemplateID *int64   `json:"templateId"`
	Score      *float64 `json:"score"`
}

// Classify returns nil without error when the model or script is missing or
// the classifier declines to pick a template.
func (c *Classifier) Classify(ctx context.Context, text string, candidateIDs []int64) (*domain.ClassifierVerdict, error) {
	if strings.TrimSpace(text) == "" || len(candidateIDs) == 0 {
		return nil, nil
	}
	if c.modelPath == "" || !fileExists(c.modelPath) || !c.command.Configured() {
		c.runner.WarnOnce(toolClassifier, "model_path", c.modelPath, "script", c.command.Script)
		return nil, nil
	}

	stdin, err := json.Marshal(classifierInput{Text: text, CandidateIDs: candidateIDs})
	if err != nil {
		return nil, fmt.Errorf("encode classifier input: %w", err)
	}
	raw, err := c.runner.Output(ctx, toolClassifier, c.command, stdin,
		"--model", c.modelPath,
		"--candidates", joinIDs(candidateIDs),
	)
	if err != nil {
		return nil, err
	}

	var out classifierOutput
	if err := decodeOutput(toolClassifier, "classifier.json", classifierSchema, raw, &out); err != nil {
		return nil, err
	}
	if out.TemplateID == nil {
		return nil, nil
	}
	verdict := &domain.ClassifierVerdict{TemplateID: *out.TemplateID}
	if out.Score != nil {
		verdict.Score = *out.Score
	}
	return verdict, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
