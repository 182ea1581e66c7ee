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

const templateColumns = `id, organization_id, sub_unit_id, name, document_type, active, priority, version, matching_rules, field_mappings, updated_at`

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id int64) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+templateColumns+`
FROM templates
WHERE id = $1
`, id)

	tpl, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTemplateNotFound, "get template", fmt.Errorf("id=%d", id))
		}
		return nil, fmt.Errorf("scan template: %w", err)
	}
	return &tpl, nil
}

// FindCandidates returns the active templates visible to the filter: the
// organization's org-wide templates plus those of the requested sub-unit.
func (r *TemplateRepository) FindCandidates(ctx context.Context, filter domain.TemplateFilter) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+templateColumns+`
FROM templates
WHERE active
	AND organization_id = $1
	AND (sub_unit_id IS NULL OR sub_unit_id = $2)
	AND ($3::text IS NULL OR document_type = $3)
ORDER BY priority ASC, updated_at DESC, id ASC
`, filter.OrganizationID, filter.SubUnitID, filter.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("find candidate templates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Template, 0)
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return out, nil
}

// Upsert inserts a template or, when (organization, name) already exists,
// replaces its definition and bumps the version. tpl.ID and tpl.Version are
// updated from the stored row.
func (r *TemplateRepository) Upsert(ctx context.Context, tpl *domain.Template) error {
	rules, err := json.Marshal(tpl.MatchingRules)
	if err != nil {
		return fmt.Errorf("marshal matching rules: %w", err)
	}
	mappings, err := json.Marshal(tpl.FieldMappings)
	if err != nil {
		return fmt.Errorf("marshal field mappings: %w", err)
	}
	if tpl.UpdatedAt.IsZero() {
		tpl.UpdatedAt = time.Now().UTC()
	}

	row := r.db.QueryRowContext(ctx, `
INSERT INTO templates (organization_id, sub_unit_id, name, document_type, active, priority, version, matching_rules, field_mappings, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,1,$7,$8,$9)
ON CONFLICT (organization_id, name) DO UPDATE
SET sub_unit_id = EXCLUDED.sub_unit_id,
	document_type = EXCLUDED.document_type,
	active = EXCLUDED.active,
	priority = EXCLUDED.priority,
	version = templates.version + 1,
	matching_rules = EXCLUDED.matching_rules,
	field_mappings = EXCLUDED.field_mappings,
	updated_at = EXCLUDED.updated_at
RETURNING id, version
`, tpl.OrganizationID, tpl.SubUnitID, tpl.Name, tpl.DocumentType, tpl.Active, tpl.Priority, rules, mappings, tpl.UpdatedAt)

	if err := row.Scan(&tpl.ID, &tpl.Version); err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func scanTemplate(row rowScanner) (domain.Template, error) {
	var tpl domain.Template
	var rulesRaw, mappingsRaw []byte
	err := row.Scan(
		&tpl.ID,
		&tpl.OrganizationID,
		&tpl.SubUnitID,
		&tpl.Name,
		&tpl.DocumentType,
		&tpl.Active,
		&tpl.Priority,
		&tpl.Version,
		&rulesRaw,
		&mappingsRaw,
		&tpl.UpdatedAt,
	)
	if err != nil {
		return domain.Template{}, err
	}
	// Malformed rule or mapping documents leave the template with nothing to
	// match on instead of failing the whole candidate list.
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &tpl.MatchingRules); err != nil {
			tpl.MatchingRules = nil
		}
	}
	if len(mappingsRaw) > 0 {
		if err := json.Unmarshal(mappingsRaw, &tpl.FieldMappings); err != nil {
			tpl.FieldMappings = nil
		}
	}
	return tpl, nil
}
