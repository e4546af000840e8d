package registry

import "github.com/risk-sentinel/sentinel-cli/internal/model"

// Reference calibration distributions from the AI model risk catalog
// study (460k model cards, 869 incidents). Percentage of statements per
// scheme-A category, by source type. Used by the demo command and the
// calibration tests.

// ReferenceDocumented is the documented-risk distribution.
var ReferenceDocumented = map[string]float64{
	model.MITDiscriminationToxicity: 44.5,
	model.MITSystemSafety:           37.3,
	model.MITMisinformation:         10.2,
	model.MITMaliciousActors:        4.0,
	model.MITPrivacySecurity:        2.9,
	model.MITHumanComputer:          0.6,
	model.MITSocioeconomicEnv:       0.5,
}

// ReferenceIncidents is the observed-incident distribution.
var ReferenceIncidents = map[string]float64{
	model.MITDiscriminationToxicity: 27.5,
	model.MITSystemSafety:           23.9,
	model.MITMisinformation:         12.9,
	model.MITMaliciousActors:        22.4,
	model.MITPrivacySecurity:        8.2,
	model.MITHumanComputer:          1.5,
	model.MITSocioeconomicEnv:       3.6,
}
