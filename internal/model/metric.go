package model

import "time"

// CategoryAggregate holds per-category statement counts by source type
// for one analysis run. Always derived fresh from the canonical entity
// set, never persisted incrementally.
type CategoryAggregate struct {
	TaxonomyID      TaxonomyID `json:"taxonomy_id"`
	Code            string     `json:"code"`
	DocumentedCount int        `json:"documented_count"`
	IncidentCount   int        `json:"incident_count"`
	// ConfidenceSum accumulates assignment confidence per source type,
	// weighted view for reporting.
	DocumentedConfidenceSum float64 `json:"documented_confidence_sum"`
	IncidentConfidenceSum   float64 `json:"incident_confidence_sum"`
}

// Total returns the combined entity count across source types.
func (a CategoryAggregate) Total() int {
	return a.DocumentedCount + a.IncidentCount
}

// BlindSpotMetric is the derived, read-only gap measurement for one
// category within a single analysis run.
type BlindSpotMetric struct {
	TaxonomyID    TaxonomyID `json:"taxonomy_id"`
	Code          string     `json:"code"`
	DocumentedPct float64    `json:"documented_pct"`
	IncidentPct   float64    `json:"incident_pct"`
	BSI           float64    `json:"bsi"`
	AdjustedBSI   float64    `json:"adjusted_bsi"`
	HighRisk      bool       `json:"high_risk"`
	TotalCount    int        `json:"total_count"`
	RunAt         time.Time  `json:"run_at"`
}

// AnalysisRun is the persisted envelope of one gap analysis.
type AnalysisRun struct {
	ID          string            `json:"id"`
	Scope       string            `json:"scope,omitempty"`
	GlobalBSI   float64           `json:"global_bsi"`
	EntityCount int               `json:"entity_count"`
	Metrics     []BlindSpotMetric `json:"metrics"`
	RunAt       time.Time         `json:"run_at"`
}
