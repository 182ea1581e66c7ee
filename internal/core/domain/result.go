package domain

// ExtractionResult is the structured payload persisted on a sample.
type ExtractionResult struct {
	Status           SampleStatus   `json:"status"`
	Fields           map[string]any `json:"fields,omitempty"`
	TextPreview      string         `json:"textPreview,omitempty"`
	TemplateID       *int64         `json:"templateId,omitempty"`
	TemplateVersion  *int           `json:"templateVersion,omitempty"`
	Score            *float64       `json:"score,omitempty"`
	ManualAssignment *bool          `json:"manualAssignment,omitempty"`

	Provider     string      `json:"provider,omitempty"`
	Confidence   *float64    `json:"confidence,omitempty"`
	ModelVersion *string     `json:"modelVersion,omitempty"`
	Compliance   *Compliance `json:"compliance,omitempty"`
	MLMetadata   *MLMetadata `json:"mlMetadata,omitempty"`
	Debug        any         `json:"debug,omitempty"`
}

type Compliance struct {
	Provider string `json:"provider"`
	Region   string `json:"region,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

type MLMetadata struct {
	Provider            string `json:"provider"`
	Sanitized           bool   `json:"sanitized"`
	OriginalContentHash string `json:"originalContentHash,omitempty"`
	RedactedFilePath    string `json:"redactedFilePath,omitempty"`
	RedactedFileHash    string `json:"redactedFileHash,omitempty"`
}

// Correction is a human correction of a sample's extraction.
type Correction struct {
	TemplateID *int64         `json:"templateId,omitempty"`
	Text       *string        `json:"text,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

type CorrectionResult struct {
	Success    bool        `json:"success"`
	MLMetadata *MLMetadata `json:"mlMetadata"`
}
