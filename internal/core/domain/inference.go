package domain

// ClassifierVerdict is the answer of the external template classifier.
type ClassifierVerdict struct {
	TemplateID int64   `json:"templateId"`
	Score      float64 `json:"score"`
}

// InferenceOutput is what any model tier returns.
type InferenceOutput struct {
	Status       string         `json:"status"`
	Fields       map[string]any `json:"fields"`
	Confidence   *float64       `json:"confidence"`
	ModelVersion *string        `json:"modelVersion"`
	Debug        any            `json:"debug,omitempty"`
}

type InferenceMetadata struct {
	SampleID       string  `json:"sampleId"`
	OrganizationID string  `json:"organizationId"`
	SubUnitID      *string `json:"subUnitId"`
	EntryID        *string `json:"entryId"`
	ContentHash    string  `json:"contentHash"`
}

// InferenceRequest carries already sanitized text to a text inference tier.
type InferenceRequest struct {
	Text     string            `json:"text"`
	Metadata InferenceMetadata `json:"metadata"`
}
