package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

const defaultMaxBytes = 32 << 20

// Reader loads a sample's stored document and decodes it to text. PDFs go
// through the embedded text layer; everything else is decoded as UTF-8 with
// invalid bytes replaced. Scans yield little or no text but keep Path, so
// the fallback chain can still hand the file to the document model.
type Reader struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func NewReader(storage ports.ObjectStorage, maxBytes int64) *Reader {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	return &Reader{storage: storage, maxBytes: maxBytes}
}

func (r *Reader) Read(ctx context.Context, sample *domain.Sample) (domain.DocumentContent, error) {
	const op = "read document"

	rc, err := r.storage.Open(ctx, sample.StoragePath)
	if err != nil {
		return domain.DocumentContent{}, domain.WrapError(domain.ErrContentRead, op, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, r.maxBytes+1))
	if err != nil {
		return domain.DocumentContent{}, domain.WrapError(domain.ErrContentRead, op, err)
	}
	if int64(len(raw)) > r.maxBytes {
		return domain.DocumentContent{}, domain.WrapError(domain.ErrContentRead, op,
			fmt.Errorf("document exceeds %d bytes", r.maxBytes))
	}

	var text string
	if isPDF(sample, raw) {
		text, err = pdfText(raw)
		if err != nil {
			return domain.DocumentContent{}, domain.WrapError(domain.ErrContentRead, op, err)
		}
	} else {
		text = strings.ToValidUTF8(string(raw), "\uFFFD")
	}

	return domain.DocumentContent{
		Text:    text,
		Preview: domain.TextPreview(text),
		Path:    r.storage.Resolve(sample.StoragePath),
	}, nil
}

func isPDF(sample *domain.Sample, raw []byte) bool {
	if strings.EqualFold(sample.MimeType, "application/pdf") {
		return true
	}
	if strings.EqualFold(filepath.Ext(sample.Filename), ".pdf") {
		return true
	}
	return bytes.HasPrefix(raw, []byte("%PDF-"))
}

func pdfText(raw []byte) (text string, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("parse pdf: %v", rec)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return buf.String(), nil
}
