// Package recommend turns blind spot metrics into prioritized
// documentation actions.
package recommend

import (
	"fmt"
	"sort"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// actionTexts maps each category to the concrete documentation action
// closing its gap.
var actionTexts = map[string]string{
	model.MITMaliciousActors: "Document risks related to deepfakes, fraud, social engineering, " +
		"and targeted manipulation. Include specific misuse scenarios.",
	model.MITMisinformation: "Add explicit warnings about hallucination, false information generation, " +
		"and impacts on decision-making in critical domains.",
	model.MITPrivacySecurity: "Document data leakage risks, training data memorization, " +
		"and potential for privacy violations.",
	model.MITSocioeconomicEnv: "Include environmental impact (compute resources), " +
		"job displacement risks, and equity considerations.",
	model.MITHumanComputer: "Address overreliance risks, loss of human agency, " +
		"and unsafe use in high-stakes contexts.",
}

// Engine derives recommendations from adjusted metrics.
type Engine struct {
	cfg config.RecommendConfig
}

func NewEngine(cfg config.RecommendConfig) *Engine {
	return &Engine{cfg: cfg}
}

// priority bands on the adjusted index.
func priorityFor(adjustedBSI float64) model.Priority {
	switch {
	case adjustedBSI > 0.5:
		return model.PriorityHigh
	case adjustedBSI > 0.3:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

func actionFor(code string, bsi float64) string {
	if text, ok := actionTexts[code]; ok {
		return text
	}
	return fmt.Sprintf("Review and document risks in the %s category. "+
		"Current blind spot index of %.2f indicates a significant gap.", code, bsi)
}

// Build produces one recommendation per metric with a nonzero total
// count, ordered by priority desc, incident percentage desc, category
// code asc. Recommendations for categories with near-zero documentation
// are flagged as requiring evidence before they can be applied.
func (e *Engine) Build(metrics []model.BlindSpotMetric) []model.Recommendation {
	var recs []model.Recommendation
	for _, m := range metrics {
		if m.TotalCount == 0 {
			continue
		}
		recs = append(recs, model.Recommendation{
			TaxonomyID:       m.TaxonomyID,
			Code:             m.Code,
			Priority:         priorityFor(m.AdjustedBSI),
			Action:           actionFor(m.Code, m.AdjustedBSI),
			EvidenceRequired: m.DocumentedPct <= e.cfg.NearZeroDocPct,
			AdjustedBSI:      m.AdjustedBSI,
			IncidentPct:      m.IncidentPct,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority != recs[j].Priority {
			return recs[i].Priority.Rank() > recs[j].Priority.Rank()
		}
		if recs[i].IncidentPct != recs[j].IncidentPct {
			return recs[i].IncidentPct > recs[j].IncidentPct
		}
		return recs[i].Code < recs[j].Code
	})
	return recs
}
