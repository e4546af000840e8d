// Package normalize maps raw risk statements onto canonical taxonomy
// categories. Classification is polymorphic over interchangeable
// strategies; the pipeline depends only on the Strategy interface.
package normalize

import (
	"context"
	"sort"
	"strings"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
)

// Strategy classifies statement text into category assignments for both
// schemes. Implementations must be side-effect free and honor ctx; the
// normalizer enforces a bounded execution time and treats errors as
// classification failures, never as dropped statements.
type Strategy interface {
	Name() model.ClassificationMethod
	Classify(ctx context.Context, text string) ([]model.CategoryAssignment, error)
}

// RuleStrategy is the deterministic keyword-matching strategy. Keyword
// tables come from the taxonomy registry, never hard-coded here.
type RuleStrategy struct {
	taxonomy *registry.Taxonomy
}

// NewRuleStrategy creates the rule-based strategy over the given
// reference data.
func NewRuleStrategy(tax *registry.Taxonomy) *RuleStrategy {
	return &RuleStrategy{taxonomy: tax}
}

// Name returns the classification method this strategy records.
func (s *RuleStrategy) Name() model.ClassificationMethod {
	return model.MethodRule
}

// baseConfidence and perMatchBoost shape the keyword-count-to-confidence
// curve. A single keyword hit lands above the default threshold, each
// further hit strengthens the score up to maxConfidence.
const (
	baseConfidence = 0.30
	perMatchBoost  = 0.15
	maxConfidence  = 0.95
)

// Classify scores the text against every category's keyword table.
// Confidence per scheme is computed independently. Never returns an
// error: no matches yields an empty assignment list.
func (s *RuleStrategy) Classify(ctx context.Context, text string) ([]model.CategoryAssignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lower := strings.ToLower(text)
	var out []model.CategoryAssignment

	for _, tid := range []model.TaxonomyID{model.TaxonomyMIT, model.TaxonomyAIR} {
		byCode := s.taxonomy.Keywords[tid]
		// Walk codes in definition order so output is deterministic.
		for _, code := range s.taxonomy.Codes(tid) {
			matches := 0
			for _, kw := range byCode[code] {
				if strings.Contains(lower, strings.ToLower(kw)) {
					matches++
				}
			}
			if matches == 0 {
				continue
			}
			conf := baseConfidence + perMatchBoost*float64(matches)
			if conf > maxConfidence {
				conf = maxConfidence
			}
			out = append(out, model.CategoryAssignment{
				TaxonomyID: tid,
				Code:       code,
				Confidence: conf,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TaxonomyID != out[j].TaxonomyID {
			return out[i].TaxonomyID < out[j].TaxonomyID
		}
		return out[i].Confidence > out[j].Confidence
	})

	return out, nil
}
