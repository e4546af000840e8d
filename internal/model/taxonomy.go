package model

// TaxonomyID identifies one of the canonical classification schemes.
type TaxonomyID string

const (
	// TaxonomyMIT is the 7-category scheme from the AI model risk catalog.
	TaxonomyMIT TaxonomyID = "mit"
	// TaxonomyAIR is the 6-category, 3-layer scheme.
	TaxonomyAIR TaxonomyID = "air"
)

// CodeUnclassified is the synthetic category attached to statements that
// could not be classified in any scheme. Always paired with confidence 0
// and a manual-review flag.
const CodeUnclassified = "UNCLASSIFIED"

// MIT scheme category codes.
const (
	MITDiscriminationToxicity = "discrimination_toxicity"
	MITPrivacySecurity        = "privacy_security"
	MITMisinformation         = "misinformation"
	MITMaliciousActors        = "malicious_actors"
	MITHumanComputer          = "human_computer_interaction"
	MITSocioeconomicEnv       = "socioeconomic_environmental"
	MITSystemSafety           = "ai_system_safety"
)

// AIR scheme category codes.
const (
	AIRSecurityRobustness = "security_robustness"
	AIRDataLeakage        = "data_leakage"
	AIRHarmfulContent     = "harmful_content"
	AIRDeceptiveUse       = "deceptive_use"
	AIRSocietalDisruption = "societal_disruption"
	AIRGovernanceFailure  = "governance_failure"
)

// TaxonomyCategory is a single category definition within a scheme.
// Static reference data, loaded at process start.
type TaxonomyCategory struct {
	TaxonomyID TaxonomyID `json:"taxonomy_id" yaml:"taxonomy_id"`
	Code       string     `json:"code" yaml:"code"`
	Label      string     `json:"label" yaml:"label"`
	Layer      string     `json:"layer,omitempty" yaml:"layer,omitempty"`
}

// CategoryKey identifies a category across schemes.
type CategoryKey struct {
	TaxonomyID TaxonomyID `json:"taxonomy_id"`
	Code       string     `json:"code"`
}

// CrossMapping is one edge of the versioned bipartite mapping between the
// two schemes.
type CrossMapping struct {
	MITCode string `json:"mit_code" yaml:"mit_code"`
	AIRCode string `json:"air_code" yaml:"air_code"`
}
