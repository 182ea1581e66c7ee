package fallback

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

type docModelFake struct {
	out        *domain.InferenceOutput
	err        error
	calledWith string
	sawFile    bool
}

func (f *docModelFake) Analyze(_ context.Context, path string) (*domain.InferenceOutput, error) {
	f.calledWith = path
	_, statErr := os.Stat(path)
	f.sawFile = statErr == nil
	return f.out, f.err
}

type redactorFake struct {
	err     error
	content string
}

func (f *redactorFake) Redact(_ context.Context, _, outputPath string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(outputPath, []byte(f.content), 0o600); err != nil {
		return "", err
	}
	return outputPath, nil
}

type inferenceFake struct {
	out *domain.InferenceOutput
	err error
	req *domain.InferenceRequest
}

func (f *inferenceFake) Infer(_ context.Context, req domain.InferenceRequest) (*domain.InferenceOutput, error) {
	f.req = &req
	return f.out, f.err
}

func (f *inferenceFake) Describe() domain.Compliance {
	return domain.Compliance{Provider: "acme-ml", Region: "eu-central-1", Endpoint: "https://ml.example"}
}

type observerFake struct {
	events []string
}

func (f *observerFake) ObserveFallbackTier(tier, outcome string) {
	f.events = append(f.events, tier+":"+outcome)
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "invoice.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 original"), 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover temp files, found %d", len(entries))
	}
}

func confidence(v float64) *float64 { return &v }

func TestExtractUsesRedactedCopyAndCleansUp(t *testing.T) {
	tmpDir := t.TempDir()
	doc := &docModelFake{out: &domain.InferenceOutput{Fields: map[string]any{"total": 12.5}, Confidence: confidence(0.8)}}
	adapter := NewAdapter(doc, &redactorFake{content: "masked"}, nil, Config{TempDir: tmpDir}, nil, nil)

	result, err := adapter.Extract(context.Background(), Request{SampleID: "s-1", FilePath: writeSource(t), Text: "Invoice"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result == nil || result.Provider != ProviderDocumentModel {
		t.Fatalf("unexpected result %+v", result)
	}
	if !strings.HasPrefix(filepath.Base(doc.calledWith), "redacted-") || !doc.sawFile {
		t.Fatalf("expected document model to read the redacted copy, got %q", doc.calledWith)
	}
	if result.MLMetadata.RedactedFileHash != HashText("masked") {
		t.Fatalf("unexpected redacted hash %q", result.MLMetadata.RedactedFileHash)
	}
	if result.Status != domain.StatusCompleted {
		t.Fatalf("expected default COMPLETED status, got %s", result.Status)
	}
	assertEmptyDir(t, tmpDir)
}

func TestExtractRedactionFailureFallsBackToOriginal(t *testing.T) {
	tmpDir := t.TempDir()
	source := writeSource(t)
	doc := &docModelFake{out: &domain.InferenceOutput{Fields: map[string]any{}}}
	adapter := NewAdapter(doc, &redactorFake{err: errors.New("redactor missing")}, nil, Config{TempDir: tmpDir}, nil, nil)

	result, err := adapter.Extract(context.Background(), Request{FilePath: source, Text: "x"})
	if err != nil || result == nil {
		t.Fatalf("expected result, got %+v err=%v", result, err)
	}
	if doc.calledWith != source {
		t.Fatalf("expected original file, got %q", doc.calledWith)
	}
	if result.MLMetadata.RedactedFilePath != "" {
		t.Fatalf("expected no redacted path")
	}
	assertEmptyDir(t, tmpDir)
}

func TestExtractCleansUpWhenDocumentModelFails(t *testing.T) {
	tmpDir := t.TempDir()
	doc := &docModelFake{err: errors.New("exit status 2")}
	inference := &inferenceFake{out: &domain.InferenceOutput{Fields: map[string]any{"a": "b"}}}
	observer := &observerFake{}
	adapter := NewAdapter(doc, &redactorFake{content: "masked"}, inference, Config{TempDir: tmpDir}, observer, nil)

	result, err := adapter.Extract(context.Background(), Request{FilePath: writeSource(t), Text: "Invoice"})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result == nil || result.Provider != "acme-ml" {
		t.Fatalf("expected text inference result, got %+v", result)
	}
	assertEmptyDir(t, tmpDir)
	if strings.Join(observer.events, ",") != "document_model:error,text_inference:success" {
		t.Fatalf("unexpected tier events %v", observer.events)
	}
}

func TestExtractReturnsNilWithoutText(t *testing.T) {
	inference := &inferenceFake{out: &domain.InferenceOutput{}}
	adapter := NewAdapter(nil, nil, inference, Config{}, nil, nil)

	result, err := adapter.Extract(context.Background(), Request{Text: "   "})
	if err != nil || result != nil {
		t.Fatalf("expected nil result, got %+v err=%v", result, err)
	}
	if inference.req != nil {
		t.Fatalf("inference must not be called without text")
	}
}

func TestExtractSanitizesTextAndHashesOriginal(t *testing.T) {
	inference := &inferenceFake{out: &domain.InferenceOutput{
		Status:       "pending_template",
		Fields:       map[string]any{"n": 3.0, "s": "x", "z": nil, "list": []any{"a"}, "ok": true},
		ModelVersion: nil,
	}}
	adapter := NewAdapter(nil, nil, inference, Config{Sanitize: true}, nil, nil)
	entry := "entry-1"
	text := "Account 1234567890"

	result, err := adapter.Extract(context.Background(), Request{SampleID: "s-1", OrganizationID: "org", EntryID: &entry, Text: text})
	if err != nil || result == nil {
		t.Fatalf("expected result, got %+v err=%v", result, err)
	}
	if inference.req.Text != "Account 12******90" {
		t.Fatalf("expected sanitized text, got %q", inference.req.Text)
	}
	if inference.req.Metadata.ContentHash != HashText(text) || result.MLMetadata.OriginalContentHash != HashText(text) {
		t.Fatalf("expected hash of original text")
	}
	if inference.req.Metadata.EntryID == nil || *inference.req.Metadata.EntryID != entry {
		t.Fatalf("expected entry id metadata")
	}
	if !result.MLMetadata.Sanitized || result.Compliance.Region != "eu-central-1" {
		t.Fatalf("unexpected metadata %+v %+v", result.MLMetadata, result.Compliance)
	}
	if result.Status != domain.StatusPendingTemplate {
		t.Fatalf("expected status from payload, got %s", result.Status)
	}
	if result.Fields["list"] != `["a"]` || result.Fields["ok"] != "true" || result.Fields["n"] != 3.0 || result.Fields["z"] != nil {
		t.Fatalf("unexpected normalized fields %#v", result.Fields)
	}
	if result.TextPreview != text {
		t.Fatalf("unexpected preview %q", result.TextPreview)
	}
}

func TestExtractPropagatesComplianceError(t *testing.T) {
	inference := &inferenceFake{err: domain.WrapError(domain.ErrComplianceConfig, "remote inference", errors.New("provider name not declared"))}
	adapter := NewAdapter(nil, nil, inference, Config{}, nil, nil)

	_, err := adapter.Extract(context.Background(), Request{Text: "abc"})
	if !domain.IsKind(err, domain.ErrComplianceConfig) {
		t.Fatalf("expected compliance error, got %v", err)
	}
}

func TestExtractSwallowsInferenceFailure(t *testing.T) {
	inference := &inferenceFake{err: domain.WrapError(domain.ErrToolFailure, "remote inference", errors.New("502"))}
	adapter := NewAdapter(nil, nil, inference, Config{}, nil, nil)

	result, err := adapter.Extract(context.Background(), Request{Text: "abc"})
	if err != nil || result != nil {
		t.Fatalf("expected silent nil, got %+v err=%v", result, err)
	}
}

type redactorFunc func(inputPath, outputPath string) (string, error)

func (f redactorFunc) Redact(_ context.Context, inputPath, outputPath string) (string, error) {
	return f(inputPath, outputPath)
}

func TestExtractNeverDeletesSourceEchoedByRedactor(t *testing.T) {
	tmpDir := t.TempDir()
	source := writeSource(t)
	doc := &docModelFake{out: &domain.InferenceOutput{Fields: map[string]any{"total": "1"}}}
	echo := redactorFunc(func(inputPath, _ string) (string, error) { return inputPath, nil })
	adapter := NewAdapter(doc, echo, nil, Config{TempDir: tmpDir}, nil, nil)

	result, err := adapter.Extract(context.Background(), Request{SampleID: "s-1", FilePath: source, Text: "Invoice"})
	if err != nil || result == nil {
		t.Fatalf("Extract() = %+v, %v", result, err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("source document must survive cleanup: %v", err)
	}
	if doc.calledWith != source || result.MLMetadata.RedactedFilePath != "" {
		t.Fatalf("echoed source must not count as a redacted copy: called %q, meta %+v", doc.calledWith, result.MLMetadata)
	}
	assertEmptyDir(t, tmpDir)
}

func TestExtractCleanupStaysInsideTempDir(t *testing.T) {
	tmpDir := t.TempDir()
	elsewhere := filepath.Join(t.TempDir(), "redacted-elsewhere.pdf")
	inside := filepath.Join(tmpDir, "redacted-custom.pdf")

	for _, tc := range []struct {
		name       string
		target     string
		wantExists bool
	}{
		{name: "outside temp dir is kept", target: elsewhere, wantExists: true},
		{name: "inside temp dir is removed", target: inside, wantExists: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			doc := &docModelFake{out: &domain.InferenceOutput{Fields: map[string]any{}}}
			redactor := redactorFunc(func(_, _ string) (string, error) {
				return tc.target, os.WriteFile(tc.target, []byte("masked"), 0o600)
			})
			adapter := NewAdapter(doc, redactor, nil, Config{TempDir: tmpDir}, nil, nil)

			if _, err := adapter.Extract(context.Background(), Request{FilePath: writeSource(t), Text: "x"}); err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if doc.calledWith != tc.target {
				t.Fatalf("document model read %q, want %q", doc.calledWith, tc.target)
			}
			_, statErr := os.Stat(tc.target)
			if exists := statErr == nil; exists != tc.wantExists {
				t.Fatalf("%s exists=%v, want %v", tc.target, exists, tc.wantExists)
			}
		})
	}
}
