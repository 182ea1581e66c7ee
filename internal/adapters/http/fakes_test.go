package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/config"
	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

type ingestFake struct {
	err  error
	last ports.UploadRequest
	body string
}

func (f *ingestFake) Upload(_ context.Context, req ports.UploadRequest) (*domain.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	f.last = req
	f.body = string(raw)

	now := time.Now().UTC()
	return &domain.Sample{
		ID:             "s-1",
		OrganizationID: req.OrganizationID,
		SubUnitID:      req.SubUnitID,
		EntryID:        req.EntryID,
		Filename:       req.Filename,
		MimeType:       req.MimeType,
		SizeBytes:      int64(len(raw)),
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

type extractorFake struct {
	err error

	processed    []string
	assignedID   int64
	reprocess    bool
	correction   domain.Correction
	correctionOK bool
}

func (f *extractorFake) Process(_ context.Context, sampleID string) error {
	f.processed = append(f.processed, sampleID)
	return f.err
}

func (f *extractorFake) AssignTemplate(_ context.Context, sampleID string, templateID int64, reprocess bool) (*domain.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.assignedID = templateID
	f.reprocess = reprocess
	return &domain.Sample{ID: sampleID, TemplateID: &templateID, Status: domain.StatusCompleted}, nil
}

func (f *extractorFake) RecordCorrection(_ context.Context, _ string, correction domain.Correction) (*domain.CorrectionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.correction = correction
	f.correctionOK = true
	return &domain.CorrectionResult{Success: true, MLMetadata: &domain.MLMetadata{Provider: "template"}}, nil
}

type readerFake struct {
	err       error
	logLimit  int
	listLimit int
}

func (f *readerFake) GetByID(_ context.Context, id string) (*domain.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Sample{ID: id, Filename: "a.pdf", Status: domain.StatusCompleted}, nil
}

func (f *readerFake) ListByEntry(_ context.Context, entryID string, limit int) ([]domain.Sample, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.listLimit = limit
	return []domain.Sample{{ID: "s-1", EntryID: &entryID}, {ID: "s-2", EntryID: &entryID}}, nil
}

func (f *readerFake) ListLogs(_ context.Context, sampleID string, limit int) ([]domain.ExtractionLog, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.logLimit = limit
	return []domain.ExtractionLog{{ID: 2, SampleID: sampleID, Level: domain.LogAudit}, {ID: 1, SampleID: sampleID, Level: domain.LogInfo}}, nil
}

type exporterFake struct {
	err error
}

func (f exporterFake) ExportEntry(context.Context, string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("PK-workbook"), nil
}

type routerDeps struct {
	ingest    *ingestFake
	extractor *extractorFake
	reader    *readerFake
	exporter  exporterFake
}

func newTestRouter(cfg config.Config) (*routerDeps, http.Handler) {
	deps := &routerDeps{
		ingest:    &ingestFake{},
		extractor: &extractorFake{},
		reader:    &readerFake{},
	}
	return deps, NewRouter(cfg, deps.ingest, deps.extractor, deps.reader, deps.exporter).Handler()
}
