package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxExportSamples = 1000
)

// SampleQueryUseCase serves the read side: sample state, entry listings,
// audit trails and spreadsheet exports.
type SampleQueryUseCase struct {
	samples  ports.SampleRepository
	logs     ports.ExtractionLogRepository
	renderer ports.ResultRenderer
}

func NewSampleQueryUseCase(
	samples ports.SampleRepository,
	logs ports.ExtractionLogRepository,
	renderer ports.ResultRenderer,
) *SampleQueryUseCase {
	return &SampleQueryUseCase{
		samples:  samples,
		logs:     logs,
		renderer: renderer,
	}
}

func (uc *SampleQueryUseCase) GetByID(ctx context.Context, id string) (*domain.Sample, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get sample", errors.New("id is required"))
	}
	sample, err := uc.samples.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch sample by id: %w", err)
	}
	return sample, nil
}

func (uc *SampleQueryUseCase) ListByEntry(ctx context.Context, entryID string, limit int) ([]domain.Sample, error) {
	if strings.TrimSpace(entryID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list samples", errors.New("entryId is required"))
	}
	samples, err := uc.samples.ListByEntry(ctx, entryID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list samples by entry: %w", err)
	}
	return samples, nil
}

func (uc *SampleQueryUseCase) ListLogs(ctx context.Context, sampleID string, limit int) ([]domain.ExtractionLog, error) {
	if _, err := uc.GetByID(ctx, sampleID); err != nil {
		return nil, err
	}
	entries, err := uc.logs.ListBySample(ctx, sampleID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list extraction logs: %w", err)
	}
	return entries, nil
}

// ExportEntry renders every sample of an entry, including samples that have
// not produced a result yet.
func (uc *SampleQueryUseCase) ExportEntry(ctx context.Context, entryID string) ([]byte, error) {
	if uc.renderer == nil {
		return nil, domain.WrapError(domain.ErrToolUnavailable, "export entry", errors.New("no renderer configured"))
	}
	if strings.TrimSpace(entryID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export entry", errors.New("entryId is required"))
	}
	samples, err := uc.samples.ListByEntry(ctx, entryID, maxExportSamples)
	if err != nil {
		return nil, fmt.Errorf("list samples by entry: %w", err)
	}
	raw, err := uc.renderer.RenderSamples(samples)
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	return raw, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
