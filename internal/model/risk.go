package model

import "time"

// ClassificationMethod records how a NormalizedRisk was produced.
type ClassificationMethod string

const (
	MethodRule          ClassificationMethod = "rule"
	MethodLearned       ClassificationMethod = "learned"
	MethodHumanOverride ClassificationMethod = "human_override"
)

// CategoryAssignment attaches one taxonomy category to a statement with a
// confidence score in [0,1]. Confidence is computed independently per
// scheme; a statement may classify confidently in one scheme and
// ambiguously in the other.
type CategoryAssignment struct {
	TaxonomyID TaxonomyID `json:"taxonomy_id"`
	Code       string     `json:"code"`
	Confidence float64    `json:"confidence"`
}

// Key returns the scheme-qualified category key of the assignment.
func (a CategoryAssignment) Key() CategoryKey {
	return CategoryKey{TaxonomyID: a.TaxonomyID, Code: a.Code}
}

// NormalizedRisk is the classification result for one RawRiskStatement.
// Never mutated after creation; a human override is a new record that
// supersedes it, the original is retained for audit.
type NormalizedRisk struct {
	ID          string               `json:"id"`
	StatementID string               `json:"statement_id"`
	SourceType  SourceType           `json:"source_type"`
	ModelType   string               `json:"model_type,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
	Assignments []CategoryAssignment `json:"assignments"`
	Method      ClassificationMethod `json:"method"`
	NeedsReview bool                 `json:"needs_review"`
	// SupersedesID points at the original record when Method is
	// human_override.
	SupersedesID string    `json:"supersedes_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Unclassified reports whether the risk carries only the synthetic
// UNCLASSIFIED assignment.
func (r NormalizedRisk) Unclassified() bool {
	return len(r.Assignments) == 1 && r.Assignments[0].Code == CodeUnclassified
}

// HasCategory reports whether the risk carries the given assignment key
// in either taxonomy.
func (r NormalizedRisk) HasCategory(key CategoryKey) bool {
	for _, a := range r.Assignments {
		if a.TaxonomyID == key.TaxonomyID && a.Code == key.Code {
			return true
		}
	}
	return false
}
