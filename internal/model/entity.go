package model

import "time"

// CanonicalRiskEntity is a deduplicated cluster of NormalizedRisk records
// believed to describe the same underlying risk. Membership is a
// partition of all normalized risk ids processed in a run; merges are
// one-directional, entities are never split once merged.
type CanonicalRiskEntity struct {
	ClusterID      string               `json:"cluster_id"`
	MemberIDs      []string             `json:"member_ids"`
	Representative string               `json:"representative"`
	Assignments    []CategoryAssignment `json:"assignments"`
	// SourceCounts holds the number of member statements per source type.
	SourceCounts map[SourceType]int `json:"source_counts"`
	ModelTypes   []string           `json:"model_types,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// HasSource reports whether the entity has at least one member from the
// given source type.
func (e CanonicalRiskEntity) HasSource(st SourceType) bool {
	return e.SourceCounts[st] > 0
}

// HasCategory reports whether any assignment on the entity matches key.
func (e CanonicalRiskEntity) HasCategory(key CategoryKey) bool {
	for _, a := range e.Assignments {
		if a.TaxonomyID == key.TaxonomyID && a.Code == key.Code {
			return true
		}
	}
	return false
}

// HasModelType reports whether the entity covers the given model type.
// An empty filter matches everything.
func (e CanonicalRiskEntity) HasModelType(mt string) bool {
	if mt == "" {
		return true
	}
	for _, m := range e.ModelTypes {
		if m == mt {
			return true
		}
	}
	return false
}
