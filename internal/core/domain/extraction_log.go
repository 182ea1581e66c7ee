package domain

import "time"

type LogLevel string

const (
	LogInfo         LogLevel = "INFO"
	LogWarn         LogLevel = "WARN"
	LogError        LogLevel = "ERROR"
	LogAudit        LogLevel = "AUDIT"
	LogTrainingData LogLevel = "TRAINING_DATA"
)

// ExtractionLog is one immutable audit entry of a sample.
type ExtractionLog struct {
	ID        int64          `json:"id"`
	SampleID  string         `json:"sample_id"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
