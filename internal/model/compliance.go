package model

import "time"

// FindingStatus is the outcome of evaluating one framework rule.
type FindingStatus string

const (
	FindingPass FindingStatus = "pass"
	FindingFail FindingStatus = "fail"
	// FindingInsufficientEvidence means the data needed to evaluate the
	// rule is missing. Distinct from fail and must stay distinct in every
	// summary view.
	FindingInsufficientEvidence FindingStatus = "insufficient_evidence"
)

// ComplianceRule is one declarative requirement within a framework.
type ComplianceRule struct {
	RuleID             string   `json:"rule_id" yaml:"rule_id"`
	Description        string   `json:"description,omitempty" yaml:"description,omitempty"`
	RequiredCategories []string `json:"required_categories" yaml:"required_categories"`
	// MinCoveragePct is the minimum documented percentage across the
	// required categories. Zero means mandatory presence only.
	MinCoveragePct    float64 `json:"min_coverage_pct" yaml:"min_coverage_pct"`
	MandatoryPresence bool    `json:"mandatory_presence" yaml:"mandatory_presence"`
	EvidenceRequired  bool    `json:"evidence_required" yaml:"evidence_required"`
}

// ComplianceFramework is a named, versioned rule set.
type ComplianceFramework struct {
	FrameworkID string           `json:"framework_id" yaml:"framework_id"`
	Name        string           `json:"name" yaml:"name"`
	Version     string           `json:"version" yaml:"version"`
	TaxonomyID  TaxonomyID       `json:"taxonomy_id" yaml:"taxonomy_id"`
	Rules       []ComplianceRule `json:"rules" yaml:"rules"`
}

// ComplianceFinding records the evaluation of one rule against one
// subject. Findings are historical records, never overwritten.
type ComplianceFinding struct {
	ID               string        `json:"id"`
	FrameworkID      string        `json:"framework_id"`
	FrameworkVersion string        `json:"framework_version"`
	RuleID           string        `json:"rule_id"`
	SubjectID        string        `json:"subject_id"`
	Status           FindingStatus `json:"status"`
	Detail           string        `json:"detail,omitempty"`
	// EvidenceRefs lists canonical entity cluster ids cited as evidence.
	EvidenceRefs []string  `json:"evidence_refs,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}
