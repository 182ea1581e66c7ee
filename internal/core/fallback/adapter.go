// Package fallback drives the tiered extraction chain used when no template
// matches a document.
package fallback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

const (
	ProviderDocumentModel = "document-model"
)

// Tier names reported to the observer.
const (
	TierDocumentModel = "document_model"
	TierTextInference = "text_inference"
)

// Observer receives tier outcomes ("success", "empty", "error", "skipped").
type Observer interface {
	ObserveFallbackTier(tier, outcome string)
}

type Config struct {
	// Sanitize masks long digit runs before text leaves the process.
	Sanitize bool
	// TempDir receives redacted copies. Empty means os.TempDir().
	TempDir string
}

// Request is everything the chain may use for one sample.
type Request struct {
	SampleID       string
	OrganizationID string
	SubUnitID      *string
	EntryID        *string
	FilePath       string
	Text           string
}

type Adapter struct {
	docModel  ports.DocumentUnderstanding
	redactor  ports.Redactor
	inference ports.TextInference
	cfg       Config
	observer  Observer
	logger    *slog.Logger
}

// NewAdapter wires the tiers. Any tier may be nil.
func NewAdapter(
	docModel ports.DocumentUnderstanding,
	redactor ports.Redactor,
	inference ports.TextInference,
	cfg Config,
	observer Observer,
	logger *slog.Logger,
) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		docModel:  docModel,
		redactor:  redactor,
		inference: inference,
		cfg:       cfg,
		observer:  observer,
		logger:    logger,
	}
}

// Extract returns a best-effort result or nil when no tier produced one.
// The only error it returns is a compliance configuration error.
func (a *Adapter) Extract(ctx context.Context, req Request) (*domain.ExtractionResult, error) {
	if result := a.fromDocumentModel(ctx, req); result != nil {
		return result, nil
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, nil
	}
	return a.fromTextInference(ctx, req)
}

func (a *Adapter) fromDocumentModel(ctx context.Context, req Request) *domain.ExtractionResult {
	if a.docModel == nil || req.FilePath == "" {
		a.observe(TierDocumentModel, "skipped")
		return nil
	}

	target := req.FilePath
	meta := &domain.MLMetadata{Provider: ProviderDocumentModel}

	redactedPath, redactedHash, cleanup := a.redact(ctx, req)
	defer cleanup()
	if redactedPath != "" {
		target = redactedPath
		meta.RedactedFilePath = redactedPath
		meta.RedactedFileHash = redactedHash
	}

	out, err := a.docModel.Analyze(ctx, target)
	if err != nil {
		a.logger.Warn("fallback_tier_failed", "tier", TierDocumentModel, "sample_id", req.SampleID, "error", err)
		a.observe(TierDocumentModel, "error")
		return nil
	}
	if out == nil {
		a.observe(TierDocumentModel, "empty")
		return nil
	}
	a.observe(TierDocumentModel, "success")

	meta.OriginalContentHash = HashText(req.Text)
	return buildResult(out, req.Text, domain.Compliance{Provider: ProviderDocumentModel}, meta)
}

// redact returns the masked copy and a cleanup that removes it. Cleanup only
// touches files under the temp dir and never the source document.
// Redaction problems degrade to the original file.
func (a *Adapter) redact(ctx context.Context, req Request) (path, hash string, cleanup func()) {
	cleanup = func() {}
	if a.redactor == nil {
		return "", "", cleanup
	}

	tmp, err := os.CreateTemp(a.cfg.TempDir, "redacted-*"+filepath.Ext(req.FilePath))
	if err != nil {
		a.logger.Warn("redaction_skipped", "sample_id", req.SampleID, "error", err)
		return "", "", cleanup
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	produced := tmpPath
	cleanup = func() {
		_ = os.Remove(tmpPath)
		if produced != tmpPath && a.disposable(produced, req.FilePath) {
			_ = os.Remove(produced)
		}
	}

	out, err := a.redactor.Redact(ctx, req.FilePath, tmpPath)
	if err != nil {
		a.logger.Warn("redaction_skipped", "sample_id", req.SampleID, "error", err)
		return "", "", cleanup
	}
	if out == "" {
		return "", "", cleanup
	}
	if samePath(out, req.FilePath) {
		a.logger.Warn("redaction_skipped", "sample_id", req.SampleID, "error", errors.New("redactor returned the source document"))
		return "", "", cleanup
	}
	produced = out
	hash, err = HashFile(produced)
	if err != nil {
		a.logger.Warn("redaction_skipped", "sample_id", req.SampleID, "error", fmt.Errorf("hash redacted file: %w", err))
		return "", "", cleanup
	}
	return produced, hash, cleanup
}

// disposable reports whether path is a redaction artifact we may delete.
func (a *Adapter) disposable(path, source string) bool {
	if samePath(path, source) {
		return false
	}
	dir := a.cfg.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	return withinDir(dir, path)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

func withinDir(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (a *Adapter) fromTextInference(ctx context.Context, req Request) (*domain.ExtractionResult, error) {
	if a.inference == nil {
		a.observe(TierTextInference, "skipped")
		return nil, nil
	}

	text := req.Text
	if a.cfg.Sanitize {
		text = SanitizeText(text)
	}
	originalHash := HashText(req.Text)

	out, err := a.inference.Infer(ctx, domain.InferenceRequest{
		Text: text,
		Metadata: domain.InferenceMetadata{
			SampleID:       req.SampleID,
			OrganizationID: req.OrganizationID,
			SubUnitID:      req.SubUnitID,
			EntryID:        req.EntryID,
			ContentHash:    originalHash,
		},
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrComplianceConfig) {
			a.observe(TierTextInference, "error")
			return nil, err
		}
		a.logger.Warn("fallback_tier_failed", "tier", TierTextInference, "sample_id", req.SampleID, "error", err)
		a.observe(TierTextInference, "error")
		return nil, nil
	}
	if out == nil {
		a.observe(TierTextInference, "empty")
		return nil, nil
	}
	a.observe(TierTextInference, "success")

	compliance := a.inference.Describe()
	return buildResult(out, req.Text, compliance, &domain.MLMetadata{
		Provider:            compliance.Provider,
		Sanitized:           a.cfg.Sanitize,
		OriginalContentHash: originalHash,
	}), nil
}

func (a *Adapter) observe(tier, outcome string) {
	if a.observer != nil {
		a.observer.ObserveFallbackTier(tier, outcome)
	}
}

func buildResult(out *domain.InferenceOutput, text string, compliance domain.Compliance, meta *domain.MLMetadata) *domain.ExtractionResult {
	return &domain.ExtractionResult{
		Status:       resultStatus(out.Status),
		TextPreview:  domain.TextPreview(text),
		Fields:       NormalizeFields(out.Fields),
		Provider:     compliance.Provider,
		Confidence:   out.Confidence,
		ModelVersion: out.ModelVersion,
		Compliance:   &compliance,
		MLMetadata:   meta,
		Debug:        out.Debug,
	}
}

// resultStatus keeps statuses that may carry a payload and defaults the rest.
func resultStatus(raw string) domain.SampleStatus {
	status := domain.SampleStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if status.CarriesResult() {
		return status
	}
	return domain.StatusCompleted
}

// NormalizeFields keeps strings, numbers and nulls and stringifies the rest.
func NormalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case nil, string, float64, float32, int, int64, json.Number:
			out[k] = t
		default:
			raw, err := json.Marshal(t)
			if err != nil {
				out[k] = fmt.Sprint(t)
				continue
			}
			out[k] = string(raw)
		}
	}
	return out
}
