package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/fallback"
	"github.com/kirillkom/invoice-extraction/internal/core/matching"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

// auditActor identifies this pipeline in compliance audit entries.
const auditActor = "extraction-pipeline"

// TemplateMatcher selects a template and extracts its fields.
type TemplateMatcher interface {
	MatchTemplate(ctx context.Context, candidates []domain.Template, text string) *matching.Match
}

// FallbackExtractor produces a best-effort result when no template matches.
type FallbackExtractor interface {
	Extract(ctx context.Context, req fallback.Request) (*domain.ExtractionResult, error)
}

// StatusObserver is told about every settled sample status.
type StatusObserver interface {
	ObserveSampleStatus(status string)
}

// ProcessSampleUseCase owns the extraction lifecycle of one sample.
type ProcessSampleUseCase struct {
	samples   ports.SampleRepository
	templates ports.TemplateRepository
	logs      ports.ExtractionLogRepository
	reader    ports.ContentReader
	matcher   TemplateMatcher
	fallback  FallbackExtractor
	training  ports.TrainingSubmitter
	validator ports.EntryValidator
	logger    *slog.Logger
	observer  StatusObserver
	now       func() time.Time
}

func NewProcessSampleUseCase(
	samples ports.SampleRepository,
	templates ports.TemplateRepository,
	logs ports.ExtractionLogRepository,
	reader ports.ContentReader,
	matcher TemplateMatcher,
	fallbackExtractor FallbackExtractor,
	training ports.TrainingSubmitter,
	validator ports.EntryValidator,
	logger *slog.Logger,
) *ProcessSampleUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessSampleUseCase{
		samples:   samples,
		templates: templates,
		logs:      logs,
		reader:    reader,
		matcher:   matcher,
		fallback:  fallbackExtractor,
		training:  training,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

// WithStatusObserver registers observer for terminal status transitions.
func (uc *ProcessSampleUseCase) WithStatusObserver(observer StatusObserver) *ProcessSampleUseCase {
	uc.observer = observer
	return uc
}

func (uc *ProcessSampleUseCase) Process(ctx context.Context, sampleID string) error {
	sample, err := uc.loadSample(ctx, sampleID)
	if err != nil {
		return err
	}

	if err := uc.markStatus(ctx, sample.ID, domain.StatusProcessing, nil); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}
	uc.appendLog(ctx, sample.ID, domain.LogInfo, "extraction started", map[string]any{
		"storagePath": sample.StoragePath,
	})

	content, err := uc.reader.Read(ctx, sample)
	if err != nil {
		uc.appendLog(ctx, sample.ID, domain.LogError, "failed to read document content", map[string]any{
			"reason": err.Error(),
		})
		if markErr := uc.markStatus(ctx, sample.ID, domain.StatusFailed, nil); markErr != nil {
			return fmt.Errorf("set status=failed: %w", markErr)
		}
		return nil
	}

	// Entry validation runs whatever the extraction outcome.
	err = uc.extract(ctx, sample, content)
	uc.validate(ctx, sample)
	return err
}

func (uc *ProcessSampleUseCase) extract(ctx context.Context, sample *domain.Sample, content domain.DocumentContent) error {
	candidates, err := uc.templates.FindCandidates(ctx, domain.TemplateFilter{
		OrganizationID: sample.OrganizationID,
		SubUnitID:      sample.SubUnitID,
	})
	if err != nil {
		return uc.abort(ctx, sample.ID, "failed to load candidate templates", fmt.Errorf("find candidate templates: %w", err))
	}

	if match := uc.matcher.MatchTemplate(ctx, candidates, content.Text); match != nil {
		return uc.completeWithTemplate(ctx, sample, content, match)
	}

	result, err := uc.fallback.Extract(ctx, fallback.Request{
		SampleID:       sample.ID,
		OrganizationID: sample.OrganizationID,
		SubUnitID:      sample.SubUnitID,
		EntryID:        sample.EntryID,
		FilePath:       content.Path,
		Text:           content.Text,
	})
	if err != nil {
		return uc.abort(ctx, sample.ID, "fallback extraction rejected", err)
	}

	if result != nil {
		if result.Status == "" {
			result.Status = domain.StatusCompleted
		}
		if err := uc.markStatus(ctx, sample.ID, result.Status, result); err != nil {
			return uc.abort(ctx, sample.ID, "failed to save fallback result", fmt.Errorf("save fallback result: %w", err))
		}
		uc.appendLog(ctx, sample.ID, domain.LogInfo, fmt.Sprintf("fallback extraction by %s", result.Provider), map[string]any{
			"provider":   result.Provider,
			"confidence": result.Confidence,
		})
		return nil
	}

	pending := &domain.ExtractionResult{
		Status:      domain.StatusPendingTemplate,
		TextPreview: content.Preview,
	}
	if err := uc.markStatus(ctx, sample.ID, domain.StatusPendingTemplate, pending); err != nil {
		return uc.abort(ctx, sample.ID, "failed to park sample for template assignment", fmt.Errorf("set status=pending_template: %w", err))
	}
	uc.appendLog(ctx, sample.ID, domain.LogWarn, "no template matched with sufficient confidence", nil)
	return nil
}

func (uc *ProcessSampleUseCase) completeWithTemplate(ctx context.Context, sample *domain.Sample, content domain.DocumentContent, match *matching.Match) error {
	tpl := match.Template
	if err := uc.samples.SetTemplate(ctx, sample.ID, tpl.ID); err != nil {
		return uc.abort(ctx, sample.ID, fmt.Sprintf("failed to attach matched template %d", tpl.ID), fmt.Errorf("attach template: %w", err))
	}
	sample.TemplateID = &tpl.ID

	score := match.Score
	result := templateResult(tpl, match.Fields, content.Preview, false)
	result.Score = &score
	if err := uc.markStatus(ctx, sample.ID, domain.StatusCompleted, result); err != nil {
		return uc.abort(ctx, sample.ID, "failed to save template result", fmt.Errorf("save template result: %w", err))
	}
	uc.appendLog(ctx, sample.ID, domain.LogInfo, fmt.Sprintf("matched template %d with score %g", tpl.ID, score), map[string]any{
		"templateId":      tpl.ID,
		"templateVersion": tpl.Version,
		"score":           score,
	})

	uc.submitTraining(ctx, sample, tpl.ID, content.Text, domain.TrainingSourceAuto)
	return nil
}

// AssignTemplate attaches templateID to a sample by hand and, when reprocess
// is set, re-extracts its fields with that template.
func (uc *ProcessSampleUseCase) AssignTemplate(ctx context.Context, sampleID string, templateID int64, reprocess bool) (*domain.Sample, error) {
	sample, err := uc.loadSample(ctx, sampleID)
	if err != nil {
		return nil, err
	}
	tpl, err := uc.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, fmt.Errorf("fetch template by id: %w", err)
	}

	if err := uc.samples.SetTemplate(ctx, sample.ID, tpl.ID); err != nil {
		return nil, fmt.Errorf("attach template: %w", err)
	}
	sample.TemplateID = &tpl.ID
	uc.appendLog(ctx, sample.ID, domain.LogInfo, "manual assignment", map[string]any{
		"templateId":      tpl.ID,
		"templateVersion": tpl.Version,
	})

	content, readErr := uc.reader.Read(ctx, sample)
	if readErr != nil {
		level := domain.LogError
		if !reprocess {
			level = domain.LogWarn
		}
		uc.appendLog(ctx, sample.ID, level, "failed to read document content for manual assignment", map[string]any{
			"reason": readErr.Error(),
		})
	} else {
		uc.submitTraining(ctx, sample, tpl.ID, content.Text, domain.TrainingSourceManual)
	}

	if !reprocess {
		return sample, nil
	}

	result := templateResult(tpl, matching.ExtractFields(content.Text, tpl), content.Preview, true)
	if err := uc.markStatus(ctx, sample.ID, domain.StatusCompleted, result); err != nil {
		return nil, fmt.Errorf("save manual result: %w", err)
	}
	uc.appendLog(ctx, sample.ID, domain.LogInfo, fmt.Sprintf("reprocessed with template %d", tpl.ID), map[string]any{
		"templateId":       tpl.ID,
		"templateVersion":  tpl.Version,
		"manualAssignment": true,
	})

	uc.validate(ctx, sample)

	updated, err := uc.loadSample(ctx, sample.ID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RecordCorrection feeds a human correction into the training corpus. The
// stored extraction result is left untouched.
func (uc *ProcessSampleUseCase) RecordCorrection(ctx context.Context, sampleID string, correction domain.Correction) (*domain.CorrectionResult, error) {
	if correction.TemplateID != nil && *correction.TemplateID <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "record correction", errors.New("templateId must be positive"))
	}
	sample, err := uc.loadSample(ctx, sampleID)
	if err != nil {
		return nil, err
	}

	var templateID int64
	switch {
	case correction.TemplateID != nil:
		templateID = *correction.TemplateID
	case sample.TemplateID != nil:
		templateID = *sample.TemplateID
	}

	var mlMetadata *domain.MLMetadata
	if sample.Result != nil {
		mlMetadata = sample.Result.MLMetadata
	}

	if text := correctionText(sample, correction); text != "" {
		uc.submitTraining(ctx, sample, templateID, text, domain.TrainingSourceManual)
	}

	uc.appendLog(ctx, sample.ID, domain.LogTrainingData, "manual correction recorded", map[string]any{
		"templateId": templateID,
		"fields":     correction.Fields,
		"mlMetadata": mlMetadata,
	})

	return &domain.CorrectionResult{Success: true, MLMetadata: mlMetadata}, nil
}

// correctionText resolves the training text: explicit text, then the stored
// preview, then the stored fields as JSON.
func correctionText(sample *domain.Sample, correction domain.Correction) string {
	if correction.Text != nil {
		if text := strings.TrimSpace(*correction.Text); text != "" {
			return text
		}
	}
	if sample.Result == nil {
		return ""
	}
	if sample.Result.TextPreview != "" {
		return sample.Result.TextPreview
	}
	if len(sample.Result.Fields) > 0 {
		raw, err := json.Marshal(sample.Result.Fields)
		if err == nil {
			return string(raw)
		}
	}
	return ""
}

func (uc *ProcessSampleUseCase) submitTraining(ctx context.Context, sample *domain.Sample, templateID int64, text string, source domain.TrainingSource) {
	if uc.training == nil {
		return
	}
	err := uc.training.Submit(ctx, domain.TrainingSample{
		TemplateID:     templateID,
		Text:           text,
		OrganizationID: sample.OrganizationID,
		SubUnitID:      sample.SubUnitID,
		Source:         source,
		CreatedAt:      uc.now().UTC(),
	})
	if err != nil {
		uc.logger.Warn("training_submit_failed", "sample_id", sample.ID, "template_id", templateID, "source", source, "error", err)
	}
}

func (uc *ProcessSampleUseCase) validate(ctx context.Context, sample *domain.Sample) {
	if uc.validator == nil || sample.EntryID == nil || *sample.EntryID == "" {
		return
	}
	clean, err := uc.validator.Validate(ctx, *sample.EntryID, sample.ID)
	if err != nil {
		uc.logger.Warn("entry_validation_failed", "sample_id", sample.ID, "entry_id", *sample.EntryID, "error", err)
		return
	}
	if !clean {
		return
	}
	uc.appendLog(ctx, sample.ID, domain.LogAudit, "entry validated without issues", map[string]any{
		"actor":   auditActor,
		"action":  "entry_validation",
		"entryId": *sample.EntryID,
		"at":      uc.now().UTC().Format(time.RFC3339),
	})
}

func (uc *ProcessSampleUseCase) loadSample(ctx context.Context, sampleID string) (*domain.Sample, error) {
	sample, err := uc.samples.GetByID(ctx, sampleID)
	if err != nil {
		return nil, fmt.Errorf("fetch sample by id: %w", err)
	}
	return sample, nil
}

func (uc *ProcessSampleUseCase) markStatus(ctx context.Context, sampleID string, status domain.SampleStatus, result *domain.ExtractionResult) error {
	if err := uc.samples.UpdateStatus(ctx, sampleID, status, result); err != nil {
		return err
	}
	if uc.observer != nil && status != domain.StatusProcessing {
		uc.observer.ObserveSampleStatus(string(status))
	}
	return nil
}

// abort records why extraction stopped and settles the sample as FAILED so
// it never stays in PROCESSING without an explanation.
func (uc *ProcessSampleUseCase) abort(ctx context.Context, sampleID, message string, err error) error {
	uc.appendLog(ctx, sampleID, domain.LogError, message, map[string]any{
		"reason": err.Error(),
	})
	if markErr := uc.markStatus(ctx, sampleID, domain.StatusFailed, nil); markErr != nil {
		return fmt.Errorf("%w; set status=failed: %v", err, markErr)
	}
	return err
}

// appendLog writes an audit entry. A failed write is reported but does not
// stop the pipeline.
func (uc *ProcessSampleUseCase) appendLog(ctx context.Context, sampleID string, level domain.LogLevel, message string, logContext map[string]any) {
	if _, err := uc.logs.Append(ctx, sampleID, level, message, logContext); err != nil {
		uc.logger.Error("extraction_log_append_failed", "sample_id", sampleID, "level", level, "message", message, "error", err)
	}
}

func templateResult(tpl *domain.Template, fields map[string]*string, preview string, manual bool) *domain.ExtractionResult {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = *v
	}
	id := tpl.ID
	version := tpl.Version
	return &domain.ExtractionResult{
		Status:           domain.StatusCompleted,
		Fields:           out,
		TextPreview:      preview,
		TemplateID:       &id,
		TemplateVersion:  &version,
		ManualAssignment: &manual,
		Provider:         "template",
	}
}
