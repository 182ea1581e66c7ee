package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

func uploadRequest(body string) ports.UploadRequest {
	entry := "entry-1"
	return ports.UploadRequest{
		OrganizationID: "org-1",
		EntryID:        &entry,
		Filename:       "invoice 1.pdf",
		MimeType:       "application/pdf",
		Body:           bytes.NewBufferString(body),
	}
}

func TestIngestUploadSuccess(t *testing.T) {
	repo := &sampleRepoFake{}
	logs := &logRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	quota := &quotaFake{}
	uc := NewIngestSampleUseCase(repo, logs, storage, queue, quota)

	sample, err := uc.Upload(context.Background(), uploadRequest("hello"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if sample.ID == "" || sample.Status != domain.StatusPending {
		t.Fatalf("unexpected sample %+v", sample)
	}
	if sample.SizeBytes != 5 || sample.ContentHash != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Fatalf("unexpected size/hash %d %s", sample.SizeBytes, sample.ContentHash)
	}
	if repo.created == nil || queue.sampleID != sample.ID || quota.calls != 1 {
		t.Fatalf("expected create, publish and quota calls")
	}
	if !strings.HasSuffix(storage.savedKey, "_invoice_1.pdf") || storage.savedBody != "hello" {
		t.Fatalf("unexpected storage write %s %q", storage.savedKey, storage.savedBody)
	}
	if logs.levels() != "INFO" {
		t.Fatalf("expected upload log, got %s", logs.levels())
	}
}

func TestIngestUploadQuotaExceeded(t *testing.T) {
	storage := &storageFake{}
	quota := &quotaFake{err: domain.WrapError(domain.ErrQuotaExceeded, "ensure quota", errors.New("limit 10"))}
	uc := NewIngestSampleUseCase(&sampleRepoFake{}, &logRepoFake{}, storage, &queueFake{}, quota)

	_, err := uc.Upload(context.Background(), uploadRequest("hello"))
	if !domain.IsKind(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if storage.savedKey != "" {
		t.Fatalf("nothing may be stored when quota is exhausted")
	}
}

func TestIngestUploadQueueError(t *testing.T) {
	uc := NewIngestSampleUseCase(&sampleRepoFake{}, &logRepoFake{}, &storageFake{}, &queueFake{err: errors.New("queue down")}, nil)

	_, err := uc.Upload(context.Background(), uploadRequest("hello"))
	if err == nil || !strings.Contains(err.Error(), "publish upload event") {
		t.Fatalf("expected publish error, got %v", err)
	}
}

func TestIngestUploadRejectsEmptyDocument(t *testing.T) {
	uc := NewIngestSampleUseCase(&sampleRepoFake{}, &logRepoFake{}, &storageFake{}, &queueFake{}, nil)

	_, err := uc.Upload(context.Background(), uploadRequest(""))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"Rechnung März.pdf": "Rechnung_M_rz.pdf",
		"":                 "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
