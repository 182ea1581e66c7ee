// Package yamlfile imports template definitions from a YAML catalog.
package yamlfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

// catalogFile is the on-disk layout:
//
//	templates:
//	  - organizationId: org-1
//	    name: acme-invoice
//	    priority: 10
//	    matchingRules: ["acme corp", {pattern: "invoice no", flags: i}]
//	    fieldMappings:
//	      invoiceNumber: 'invoice no\.\s*(\d+)'
type catalogFile struct {
	Templates []templateEntry `yaml:"templates"`
}

type templateEntry struct {
	OrganizationID string         `yaml:"organizationId"`
	SubUnitID      string         `yaml:"subUnitId"`
	Name           string         `yaml:"name"`
	DocumentType   string         `yaml:"documentType"`
	Active         *bool          `yaml:"active"`
	Priority       int            `yaml:"priority"`
	MatchingRules  any            `yaml:"matchingRules"`
	FieldMappings  map[string]any `yaml:"fieldMappings"`
}

// Parse decodes and validates a catalog. Every rule and field descriptor
// must resolve to a usable pattern.
func Parse(r io.Reader) ([]domain.Template, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", err)
	}

	out := make([]domain.Template, 0, len(file.Templates))
	for i, entry := range file.Templates {
		tpl, err := entry.toTemplate()
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "parse catalog", fmt.Errorf("template #%d (%s): %w", i+1, entry.Name, err))
		}
		out = append(out, tpl)
	}
	return out, nil
}

func (e templateEntry) toTemplate() (domain.Template, error) {
	if strings.TrimSpace(e.OrganizationID) == "" {
		return domain.Template{}, errors.New("organizationId is required")
	}
	if strings.TrimSpace(e.Name) == "" {
		return domain.Template{}, errors.New("name is required")
	}

	rules, err := ruleSet(e.MatchingRules)
	if err != nil {
		return domain.Template{}, err
	}
	mappings := make(map[string]domain.PatternSpec, len(e.FieldMappings))
	for field, raw := range e.FieldMappings {
		spec := domain.NewPatternSpec(raw)
		if spec.Compiled() == nil {
			return domain.Template{}, fmt.Errorf("field %q: unusable pattern", field)
		}
		mappings[field] = spec
	}

	tpl := domain.Template{
		OrganizationID: strings.TrimSpace(e.OrganizationID),
		SubUnitID:      optional(e.SubUnitID),
		Name:           strings.TrimSpace(e.Name),
		DocumentType:   optional(e.DocumentType),
		Active:         e.Active == nil || *e.Active,
		Priority:       e.Priority,
		MatchingRules:  rules,
		FieldMappings:  mappings,
	}
	return tpl, nil
}

// ruleSet accepts a list of descriptors or a mapping of named descriptors.
func ruleSet(raw any) (domain.RuleSet, error) {
	var values []any
	switch t := raw.(type) {
	case nil:
		return nil, nil
	case []any:
		values = t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			values = append(values, t[k])
		}
	default:
		return nil, fmt.Errorf("matchingRules must be a list or a mapping, got %T", raw)
	}

	out := make(domain.RuleSet, 0, len(values))
	for i, v := range values {
		spec := domain.NewPatternSpec(v)
		if spec.Compiled() == nil {
			return nil, fmt.Errorf("matching rule #%d: unusable pattern", i+1)
		}
		out = append(out, spec)
	}
	return out, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Importer upserts catalog templates into the repository.
type Importer struct {
	templates ports.TemplateRepository
	logger    *slog.Logger
}

func NewImporter(templates ports.TemplateRepository, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{templates: templates, logger: logger}
}

// ImportFile parses path and upserts every template. Nothing is written if
// the catalog does not validate.
func (i *Importer) ImportFile(ctx context.Context, path string) ([]domain.Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	templates, err := Parse(f)
	if err != nil {
		return nil, err
	}
	for idx := range templates {
		tpl := &templates[idx]
		if err := i.templates.Upsert(ctx, tpl); err != nil {
			return nil, fmt.Errorf("upsert template %s: %w", tpl.Name, err)
		}
		i.logger.Info("template_imported",
			"template_id", tpl.ID,
			"organization_id", tpl.OrganizationID,
			"name", tpl.Name,
			"version", tpl.Version,
			"rules", len(tpl.MatchingRules),
			"fields", len(tpl.FieldMappings),
		)
	}
	return templates, nil
}
