package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

// QuotaResourceSamples is the quota key reserved per uploaded sample.
const QuotaResourceSamples = "samples"

type IngestSampleUseCase struct {
	samples ports.SampleRepository
	logs    ports.ExtractionLogRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	quota   ports.QuotaGuard
}

func NewIngestSampleUseCase(
	samples ports.SampleRepository,
	logs ports.ExtractionLogRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	quota ports.QuotaGuard,
) *IngestSampleUseCase {
	return &IngestSampleUseCase{
		samples: samples,
		logs:    logs,
		storage: storage,
		queue:   queue,
		quota:   quota,
	}
}

func (uc *IngestSampleUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Sample, error) {
	if strings.TrimSpace(req.OrganizationID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload sample", errors.New("organization id is required"))
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload sample", errors.New("document body is required"))
	}
	if uc.quota != nil {
		if err := uc.quota.EnsureQuota(ctx, req.OrganizationID, QuotaResourceSamples, 1); err != nil {
			return nil, fmt.Errorf("ensure quota: %w", err)
		}
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(req.Filename))
	now := time.Now().UTC()

	hasher := sha256.New()
	counter := &countingWriter{}
	body := io.TeeReader(req.Body, io.MultiWriter(hasher, counter))
	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if counter.n == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload sample", errors.New("empty document"))
	}

	sample := &domain.Sample{
		ID:             id,
		OrganizationID: req.OrganizationID,
		SubUnitID:      req.SubUnitID,
		EntryID:        req.EntryID,
		Filename:       req.Filename,
		StoragePath:    storageKey,
		MimeType:       req.MimeType,
		SizeBytes:      counter.n,
		ContentHash:    hex.EncodeToString(hasher.Sum(nil)),
		Status:         domain.StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := uc.samples.Create(ctx, sample); err != nil {
		return nil, fmt.Errorf("create sample metadata: %w", err)
	}
	if _, err := uc.logs.Append(ctx, sample.ID, domain.LogInfo, "sample uploaded", map[string]any{
		"filename":    sample.Filename,
		"contentHash": sample.ContentHash,
		"sizeBytes":   sample.SizeBytes,
	}); err != nil {
		return nil, fmt.Errorf("append upload log: %w", err)
	}

	if err := uc.queue.PublishSampleUploaded(ctx, sample.ID); err != nil {
		return nil, fmt.Errorf("publish upload event: %w", err)
	}
	return sample, nil
}

type countingWriter struct {
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
