package domain

import "time"

type SampleStatus string

const (
	StatusPending         SampleStatus = "PENDING"
	StatusProcessing      SampleStatus = "PROCESSING"
	StatusPendingTemplate SampleStatus = "PENDING_TEMPLATE"
	StatusCompleted       SampleStatus = "COMPLETED"
	StatusFailed          SampleStatus = "FAILED"
)

// CarriesResult reports whether a sample in this status must hold an extraction result.
func (s SampleStatus) CarriesResult() bool {
	return s == StatusCompleted || s == StatusPendingTemplate
}

// Sample is one uploaded document under extraction.
type Sample struct {
	ID             string  `json:"id"`
	OrganizationID string  `json:"organization_id"`
	SubUnitID      *string `json:"sub_unit_id,omitempty"`
	EntryID        *string `json:"entry_id,omitempty"`

	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
	MimeType    string `json:"mime_type"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentHash string `json:"content_hash"`

	TemplateID *int64            `json:"template_id,omitempty"`
	Status     SampleStatus      `json:"status"`
	Result     *ExtractionResult `json:"extraction_result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentContent is the decoded text of a stored document.
type DocumentContent struct {
	Text    string
	Preview string
	// Path is the resolved location of the source file on disk.
	Path string
}

// PreviewLimit bounds the text surfaced to users and stored in payloads.
const PreviewLimit = 8000

// TextPreview returns the first PreviewLimit characters of text.
func TextPreview(text string) string {
	if len(text) <= PreviewLimit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= PreviewLimit {
		return text
	}
	return string(runes[:PreviewLimit])
}
