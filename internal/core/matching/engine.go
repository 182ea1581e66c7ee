// Package matching scores templates against document text and extracts
// labeled fields with the selected template.
package matching

import (
	"context"
	"log/slog"
	"math"
	"strings"

	"github.com/kirillkom/invoice-extraction/internal/core/domain"
	"github.com/kirillkom/invoice-extraction/internal/core/ports"
)

// minRuleRatio is the share of matching rules a template must hit.
const minRuleRatio = 0.6

// Match is a selected template with its extracted fields.
type Match struct {
	Template *domain.Template
	Fields   map[string]*string
	Score    float64
}

type Engine struct {
	classifier ports.TemplateClassifier
	logger     *slog.Logger
}

// NewEngine builds an engine. classifier may be nil.
func NewEngine(classifier ports.TemplateClassifier, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{classifier: classifier, logger: logger}
}

// MatchTemplate picks the best candidate for text or returns nil.
// Candidates must already be in preference order.
func (e *Engine) MatchTemplate(ctx context.Context, candidates []domain.Template, text string) *Match {
	if len(candidates) == 0 {
		return nil
	}
	if m := e.classify(ctx, candidates, text); m != nil {
		return m
	}

	var best *Match
	for i := range candidates {
		tpl := &candidates[i]
		score, ok := RuleScore(tpl, text)
		if !ok {
			continue
		}
		if best == nil || float64(score) > best.Score {
			best = &Match{Template: tpl, Score: float64(score)}
		}
	}
	if best == nil {
		return nil
	}
	best.Fields = ExtractFields(text, best.Template)
	return best
}

func (e *Engine) classify(ctx context.Context, candidates []domain.Template, text string) *Match {
	if e.classifier == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}

	verdict, err := e.classifier.Classify(ctx, text, ids)
	if err != nil {
		e.logger.Warn("template_classifier_failed", "error", err)
		return nil
	}
	if verdict == nil {
		return nil
	}
	for i := range candidates {
		if candidates[i].ID == verdict.TemplateID {
			tpl := &candidates[i]
			return &Match{Template: tpl, Fields: ExtractFields(text, tpl), Score: verdict.Score}
		}
	}
	e.logger.Warn("template_classifier_unknown_template", "template_id", verdict.TemplateID)
	return nil
}

// RuleScore counts the template's rules that hit text. ok is false when the
// template does not reach the acceptance threshold; a template without rules
// never does.
func RuleScore(tpl *domain.Template, text string) (score int, ok bool) {
	total := len(tpl.MatchingRules)
	if total == 0 {
		return 0, false
	}
	for _, rule := range tpl.MatchingRules {
		if compiled := rule.Compiled(); compiled != nil && compiled.Matches(text) {
			score++
		}
	}
	return score, score >= RequiredScore(total)
}

// RequiredScore is max(1, ceil(ruleCount * 0.6)).
func RequiredScore(ruleCount int) int {
	// Round before ceiling so 5*0.6 stays 3 despite float error.
	need := int(math.Ceil(math.Round(float64(ruleCount)*minRuleRatio*1e9) / 1e9))
	if need < 1 {
		need = 1
	}
	return need
}

// ExtractFields applies every field mapping of tpl to text. Fields whose
// descriptor cannot be resolved or that do not match are nil.
func ExtractFields(text string, tpl *domain.Template) map[string]*string {
	out := make(map[string]*string, len(tpl.FieldMappings))
	for name, spec := range tpl.FieldMappings {
		compiled := spec.Compiled()
		if compiled == nil {
			out[name] = nil
			continue
		}
		value, hit := compiled.Capture(text)
		if !hit {
			out[name] = nil
			continue
		}
		out[name] = &value
	}
	return out
}
