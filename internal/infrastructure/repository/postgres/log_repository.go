package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

type ExtractionLogRepository struct {
	db *sql.DB
}

func NewExtractionLogRepository(db *sql.DB) *ExtractionLogRepository {
	return &ExtractionLogRepository{db: db}
}

func (r *ExtractionLogRepository) Append(ctx context.Context, sampleID string, level domain.LogLevel, message string, logContext map[string]any) (*domain.ExtractionLog, error) {
	var contextRaw any
	if logContext != nil {
		raw, err := json.Marshal(logContext)
		if err != nil {
			return nil, fmt.Errorf("marshal log context: %w", err)
		}
		contextRaw = raw
	}

	entry := &domain.ExtractionLog{
		SampleID:  sampleID,
		Level:     level,
		Message:   message,
		Context:   logContext,
		CreatedAt: time.Now().UTC(),
	}
	row := r.db.QueryRowContext(ctx, `
INSERT INTO extraction_logs (sample_id, level, message, context, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id
`, sampleID, string(level), message, contextRaw, entry.CreatedAt)
	if err := row.Scan(&entry.ID); err != nil {
		return nil, fmt.Errorf("insert extraction log: %w", err)
	}
	return entry, nil
}

func (r *ExtractionLogRepository) ListBySample(ctx context.Context, sampleID string, limit int) ([]domain.ExtractionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, sample_id, level, message, context, created_at
FROM extraction_logs
WHERE sample_id = $1
ORDER BY id DESC
LIMIT $2
`, sampleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list extraction logs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ExtractionLog, 0)
	for rows.Next() {
		var entry domain.ExtractionLog
		var level string
		var contextRaw []byte
		if err := rows.Scan(&entry.ID, &entry.SampleID, &level, &entry.Message, &contextRaw, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan extraction log: %w", err)
		}
		entry.Level = domain.LogLevel(level)
		if len(contextRaw) > 0 {
			if err := json.Unmarshal(contextRaw, &entry.Context); err != nil {
				return nil, fmt.Errorf("unmarshal log context: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate extraction logs: %w", err)
	}
	return out, nil
}
