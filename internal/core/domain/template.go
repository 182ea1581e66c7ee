package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kirillkom/invoice-extraction/internal/core/pattern"
)

// Template is a reusable document-recognition definition.
type Template struct {
	ID             int64                  `json:"id"`
	OrganizationID string                 `json:"organization_id"`
	SubUnitID      *string                `json:"sub_unit_id,omitempty"`
	Name           string                 `json:"name"`
	DocumentType   *string                `json:"document_type,omitempty"`
	Active         bool                   `json:"active"`
	Priority       int                    `json:"priority"`
	Version        int                    `json:"version"`
	MatchingRules  RuleSet                `json:"matching_rules"`
	FieldMappings  map[string]PatternSpec `json:"field_mappings"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// TemplateFilter scopes candidate lookup. Nil members do not filter.
type TemplateFilter struct {
	OrganizationID string
	SubUnitID      *string
	DocumentType   *string
}

// PatternSpec holds a rule or field descriptor exactly as stored (a bare
// pattern string, a descriptor object, or anything else a user managed to
// save) together with its compiled form. Specs built through NewPatternSpec
// or decoded from JSON are resolved once at that boundary.
type PatternSpec struct {
	Value any

	resolved bool
	compiled *pattern.Compiled
}

func NewPatternSpec(raw any) PatternSpec {
	compiled, _ := pattern.Resolve(raw)
	return PatternSpec{Value: raw, resolved: true, compiled: compiled}
}

// Compiled returns the usable pattern, or nil when Value cannot become one.
func (p PatternSpec) Compiled() *pattern.Compiled {
	if p.resolved {
		return p.compiled
	}
	compiled, _ := pattern.Resolve(p.Value)
	return compiled
}

func (p PatternSpec) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value)
}

func (p *PatternSpec) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = NewPatternSpec(v)
	return nil
}

// RuleSet is the matching-rule collection of a template. Stored rules may be
// a JSON array or an object keyed by rule name; only the count of hits matters.
type RuleSet []PatternSpec

func (r *RuleSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*r = nil
		return nil
	}
	switch trimmed[0] {
	case '[':
		var list []PatternSpec
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		*r = list
	case '{':
		var keyed map[string]PatternSpec
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return err
		}
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(RuleSet, 0, len(keys))
		for _, k := range keys {
			out = append(out, keyed[k])
		}
		*r = out
	default:
		return fmt.Errorf("matching rules: unsupported json shape %q", string(trimmed[:1]))
	}
	return nil
}
