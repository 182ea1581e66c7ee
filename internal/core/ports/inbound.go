package ports

import (
	"context"
	"io"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

// UploadRequest describes one document upload.
type UploadRequest struct {
	OrganizationID string
	SubUnitID      *string
	EntryID        *string
	Filename       string
	MimeType       string
	Body           io.Reader
}

// SampleIngestor is the inbound contract for document upload.
type SampleIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Sample, error)
}

// SampleExtractor drives the extraction lifecycle of a sample.
type SampleExtractor interface {
	Process(ctx context.Context, sampleID string) error
	AssignTemplate(ctx context.Context, sampleID string, templateID int64, reprocess bool) (*domain.Sample, error)
	RecordCorrection(ctx context.Context, sampleID string, correction domain.Correction) (*domain.CorrectionResult, error)
}

// SampleReader is the read model for samples and their audit trail.
type SampleReader interface {
	GetByID(ctx context.Context, id string) (*domain.Sample, error)
	ListByEntry(ctx context.Context, entryID string, limit int) ([]domain.Sample, error)
	ListLogs(ctx context.Context, sampleID string, limit int) ([]domain.ExtractionLog, error)
}

// EntryExporter renders an entry's extraction results as a spreadsheet.
type EntryExporter interface {
	ExportEntry(ctx context.Context, entryID string) ([]byte, error)
}
