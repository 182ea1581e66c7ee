package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

const sampleColumns = `id, organization_id, sub_unit_id, entry_id, filename, storage_path, mime_type, size_bytes, content_hash, template_id, status, extraction_result, created_at, updated_at`

type SampleRepository struct {
	db *sql.DB
}

func NewSampleRepository(db *sql.DB) *SampleRepository {
	return &SampleRepository{db: db}
}

func (r *SampleRepository) Create(ctx context.Context, sample *domain.Sample) error {
	result, err := marshalResult(sample.Result)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO samples (`+sampleColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`,
		sample.ID, sample.OrganizationID, sample.SubUnitID, sample.EntryID, sample.Filename, sample.StoragePath,
		sample.MimeType, sample.SizeBytes, sample.ContentHash, sample.TemplateID, string(sample.Status), result,
		sample.CreatedAt, sample.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (r *SampleRepository) GetByID(ctx context.Context, id string) (*domain.Sample, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+sampleColumns+`
FROM samples
WHERE id = $1
`, id)

	sample, err := scanSample(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSampleNotFound, "get sample", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan sample: %w", err)
	}
	return &sample, nil
}

// UpdateStatus stores status and result together. The result column is
// cleared for statuses that do not carry one.
func (r *SampleRepository) UpdateStatus(ctx context.Context, id string, status domain.SampleStatus, result *domain.ExtractionResult) error {
	if !status.CarriesResult() {
		result = nil
	}
	raw, err := marshalResult(result)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE samples
SET status = $2, extraction_result = $3, updated_at = $4
WHERE id = $1
`, id, string(status), raw, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update sample status: %w", err)
	}
	return requireRow(res, "update sample status", id)
}

func (r *SampleRepository) SetTemplate(ctx context.Context, id string, templateID int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE samples
SET template_id = $2, updated_at = $3
WHERE id = $1
`, id, templateID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set sample template: %w", err)
	}
	return requireRow(res, "set sample template", id)
}

func (r *SampleRepository) ListByEntry(ctx context.Context, entryID string, limit int) ([]domain.Sample, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+sampleColumns+`
FROM samples
WHERE entry_id = $1
ORDER BY created_at DESC
LIMIT $2
`, entryID, limit)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Sample, 0)
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return out, nil
}

func scanSample(row rowScanner) (domain.Sample, error) {
	var sample domain.Sample
	var status string
	var resultRaw []byte
	err := row.Scan(
		&sample.ID,
		&sample.OrganizationID,
		&sample.SubUnitID,
		&sample.EntryID,
		&sample.Filename,
		&sample.StoragePath,
		&sample.MimeType,
		&sample.SizeBytes,
		&sample.ContentHash,
		&sample.TemplateID,
		&status,
		&resultRaw,
		&sample.CreatedAt,
		&sample.UpdatedAt,
	)
	if err != nil {
		return domain.Sample{}, err
	}
	sample.Status = domain.SampleStatus(status)
	if len(resultRaw) > 0 {
		var result domain.ExtractionResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return domain.Sample{}, fmt.Errorf("unmarshal extraction result: %w", err)
		}
		sample.Result = &result
	}
	return sample, nil
}

// marshalResult returns an untyped nil for a missing result so the column
// is written as SQL NULL.
func marshalResult(result *domain.ExtractionResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal extraction result: %w", err)
	}
	return raw, nil
}

func requireRow(res sql.Result, operation, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if n == 0 {
		return domain.WrapError(domain.ErrSampleNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
