// Package validation runs downstream consistency checks on an entry once one
// of its samples settles.
package validation

import (
	"context"
	"fmt"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

const maxEntrySamples = 500

// ConsistencyValidator reports an entry clean when none of its samples is
// FAILED or waiting for a template. Each offending sample gets a WARN entry
// in its own audit trail.
type ConsistencyValidator struct {
	samples ports.SampleRepository
	logs    ports.ExtractionLogRepository
}

func NewConsistencyValidator(samples ports.SampleRepository, logs ports.ExtractionLogRepository) *ConsistencyValidator {
	return &ConsistencyValidator{samples: samples, logs: logs}
}

func (v *ConsistencyValidator) Validate(ctx context.Context, entryID, sampleID string) (bool, error) {
	samples, err := v.samples.ListByEntry(ctx, entryID, maxEntrySamples)
	if err != nil {
		return false, fmt.Errorf("list entry samples: %w", err)
	}

	clean := true
	for _, s := range samples {
		reason := issue(s)
		if reason == "" {
			continue
		}
		clean = false
		_, err := v.logs.Append(ctx, s.ID, domain.LogWarn, "entry consistency check: "+reason, map[string]any{
			"entryId":          entryID,
			"triggeredBy":      sampleID,
			"status":           string(s.Status),
			"validationResult": "issue",
		})
		if err != nil {
			return false, fmt.Errorf("append validation log: %w", err)
		}
	}
	return clean, nil
}

func issue(s domain.Sample) string {
	switch s.Status {
	case domain.StatusFailed:
		return "extraction failed"
	case domain.StatusPendingTemplate:
		return "no template assigned"
	default:
		return ""
	}
}
