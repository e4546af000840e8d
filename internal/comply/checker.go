// Package comply evaluates a subject's documented risk profile against
// declarative regulatory frameworks. Evaluation is pure: the same
// profile and framework version always produce the same findings.
package comply

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// Profile is the subject under evaluation: its canonical risk entities
// and the per-category metrics from the run being assessed.
type Profile struct {
	SubjectID string
	Entities  []model.CanonicalRiskEntity
	Metrics   []model.BlindSpotMetric
}

func (p Profile) metric(tid model.TaxonomyID, code string) (model.BlindSpotMetric, bool) {
	for _, m := range p.Metrics {
		if m.TaxonomyID == tid && m.Code == code {
			return m, true
		}
	}
	return model.BlindSpotMetric{}, false
}

// documentedEvidence returns cluster ids of documentation-sourced
// entities tagged with the category, sorted for determinism.
func (p Profile) documentedEvidence(tid model.TaxonomyID, code string) []string {
	var refs []string
	key := model.CategoryKey{TaxonomyID: tid, Code: code}
	for _, e := range p.Entities {
		if e.HasCategory(key) && e.HasSource(model.SourceDocumentation) {
			refs = append(refs, e.ClusterID)
		}
	}
	sort.Strings(refs)
	return refs
}

// Check evaluates every rule of the framework against the profile. One
// finding per rule; a rule that cannot be evaluated yields
// insufficient_evidence, never fail.
func Check(profile Profile, framework model.ComplianceFramework, now time.Time) []model.ComplianceFinding {
	findings := make([]model.ComplianceFinding, 0, len(framework.Rules))
	for _, rule := range framework.Rules {
		f := model.ComplianceFinding{
			ID:               uuid.NewString(),
			FrameworkID:      framework.FrameworkID,
			FrameworkVersion: framework.Version,
			RuleID:           rule.RuleID,
			SubjectID:        profile.SubjectID,
			CheckedAt:        now.UTC(),
		}
		f.Status, f.Detail, f.EvidenceRefs = evalRule(profile, framework.TaxonomyID, rule)
		findings = append(findings, f)
	}

	zap.L().Info("comply: framework evaluated",
		zap.String("framework", framework.FrameworkID),
		zap.String("version", framework.Version),
		zap.String("subject", profile.SubjectID),
		zap.Int("rules", len(findings)))
	return findings
}

func evalRule(profile Profile, tid model.TaxonomyID, rule model.ComplianceRule) (model.FindingStatus, string, []string) {
	if len(profile.Entities) == 0 {
		return model.FindingInsufficientEvidence, "no risk statements in scope for subject", nil
	}

	var refs []string
	for _, code := range rule.RequiredCategories {
		m, ok := profile.metric(tid, code)
		if !ok {
			return model.FindingInsufficientEvidence,
				fmt.Sprintf("no metrics available for category %s", code), nil
		}

		evidence := profile.documentedEvidence(tid, code)
		if rule.MandatoryPresence && len(evidence) == 0 {
			return model.FindingFail,
				fmt.Sprintf("category %s has no documented coverage", code), nil
		}
		if m.DocumentedPct < rule.MinCoveragePct {
			return model.FindingFail,
				fmt.Sprintf("category %s documented at %.1f%%, below required %.1f%%", code, m.DocumentedPct, rule.MinCoveragePct), nil
		}
		refs = append(refs, evidence...)
	}

	if rule.EvidenceRequired && len(refs) == 0 {
		return model.FindingInsufficientEvidence, "rule requires citable evidence and none is available", nil
	}

	sort.Strings(refs)
	return model.FindingPass, "", dedupRefs(refs)
}

func dedupRefs(refs []string) []string {
	var out []string
	for i, r := range refs {
		if i == 0 || refs[i-1] != r {
			out = append(out, r)
		}
	}
	return out
}

// Summary tallies findings by status. insufficient_evidence is its own
// bucket and is never folded into failures.
type Summary struct {
	Pass                 int `json:"pass"`
	Fail                 int `json:"fail"`
	InsufficientEvidence int `json:"insufficient_evidence"`
}

func Summarize(findings []model.ComplianceFinding) Summary {
	var s Summary
	for _, f := range findings {
		switch f.Status {
		case model.FindingPass:
			s.Pass++
		case model.FindingFail:
			s.Fail++
		case model.FindingInsufficientEvidence:
			s.InsufficientEvidence++
		}
	}
	return s
}
