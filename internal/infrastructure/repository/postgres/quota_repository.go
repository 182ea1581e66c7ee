package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
)

// QuotaRepository counts consumed units per (organization, resource) and
// refuses increments past the limit in a single statement.
type QuotaRepository struct {
	db     *sql.DB
	limits map[string]int64
}

// NewQuotaRepository takes per-resource limits; a missing or zero limit
// means unlimited, though usage is still counted.
func NewQuotaRepository(db *sql.DB, limits map[string]int64) *QuotaRepository {
	return &QuotaRepository{db: db, limits: limits}
}

func (r *QuotaRepository) EnsureQuota(ctx context.Context, organizationID, resource string, amount int) error {
	if amount <= 0 {
		return domain.WrapError(domain.ErrInvalidInput, "ensure quota", fmt.Errorf("amount must be positive, got %d", amount))
	}
	limit := r.limits[resource]

	row := r.db.QueryRowContext(ctx, `
INSERT INTO organization_quotas (organization_id, resource, used, updated_at)
SELECT $1, $2, $3::bigint, $5
WHERE $4::bigint = 0 OR $3::bigint <= $4::bigint
ON CONFLICT (organization_id, resource) DO UPDATE
SET used = organization_quotas.used + EXCLUDED.used, updated_at = EXCLUDED.updated_at
WHERE $4::bigint = 0 OR organization_quotas.used + EXCLUDED.used <= $4::bigint
RETURNING used
`, organizationID, resource, int64(amount), limit, time.Now().UTC())

	var used int64
	if err := row.Scan(&used); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrQuotaExceeded, "ensure quota",
				fmt.Errorf("organization=%s resource=%s limit=%d", organizationID, resource, limit))
		}
		return fmt.Errorf("reserve quota: %w", err)
	}
	return nil
}
