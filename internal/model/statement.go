package model

import "time"

// SourceType distinguishes where a risk statement was observed.
type SourceType string

const (
	// SourceDocumentation marks statements extracted from published model
	// documentation (model cards, system cards).
	SourceDocumentation SourceType = "documentation"
	// SourceIncident marks statements extracted from real-world incident
	// reports.
	SourceIncident SourceType = "incident"
)

// AllSourceTypes returns the defined source types.
func AllSourceTypes() []SourceType {
	return []SourceType{SourceDocumentation, SourceIncident}
}

// ValidSourceType reports whether st is a known source type.
func ValidSourceType(st SourceType) bool {
	return st == SourceDocumentation || st == SourceIncident
}

// RawRiskStatement is a single risk statement as handed over by a
// collector. Immutable once ingested; OriginRef is unique per source.
type RawRiskStatement struct {
	ID         string     `json:"id"`
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Text       string     `json:"text"`
	OriginRef  string     `json:"origin_ref"`
	ModelType  string     `json:"model_type,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
