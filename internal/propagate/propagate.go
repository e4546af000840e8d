// Package propagate adjusts blind spot metrics for latent exposure
// inherited from co-occurring risk categories. A category that keeps
// company with underdocumented categories gets its index boosted; an
// adjustment never lowers a metric.
package propagate

import (
	"math"

	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

type pairKey struct {
	a, b string
}

func orderedPair(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Matrix is the category co-occurrence matrix over one canonical entity
// set: for each pair of categories, the fraction of entities carrying
// both tags.
type Matrix struct {
	pairs map[pairKey]int
	total int
}

// BuildMatrix counts category pairs over the entity set for one
// taxonomy. Unclassified tags are ignored.
func BuildMatrix(entities []model.CanonicalRiskEntity, tid model.TaxonomyID) *Matrix {
	m := &Matrix{pairs: make(map[pairKey]int), total: len(entities)}
	for _, e := range entities {
		var codes []string
		for _, asg := range e.Assignments {
			if asg.TaxonomyID != tid || asg.Code == model.CodeUnclassified {
				continue
			}
			codes = append(codes, asg.Code)
		}
		for i := 0; i < len(codes); i++ {
			for j := i + 1; j < len(codes); j++ {
				m.pairs[orderedPair(codes[i], codes[j])]++
			}
		}
	}
	return m
}

// Cooccurrence returns the fraction of entities tagged with both a and
// b. Symmetric; zero for a == b and for an empty entity set.
func (m *Matrix) Cooccurrence(a, b string) float64 {
	if m.total == 0 || a == b {
		return 0
	}
	return float64(m.pairs[orderedPair(a, b)]) / float64(m.total)
}

// Propagator applies the co-occurrence adjustment to a metric set.
type Propagator struct {
	cfg config.PropagateConfig
}

func NewPropagator(cfg config.PropagateConfig) *Propagator {
	return &Propagator{cfg: cfg}
}

// Adjust returns a copy of metrics with AdjustedBSI raised by the
// weighted underdocumentation of co-occurring categories:
//
//	adjusted_i = min(cap, bsi_i + weight * sum_j cooc(i,j) * underdoc_j)
//
// where underdoc_j = max(0, incident_pct_j - documented_pct_j) / 100.
// The result never drops below the raw BSI and never leaves [0,1].
func (p *Propagator) Adjust(metrics []model.BlindSpotMetric, matrix *Matrix) []model.BlindSpotMetric {
	limit := p.cfg.Cap
	if limit <= 0 || limit > 1 {
		limit = 1
	}

	out := make([]model.BlindSpotMetric, len(metrics))
	for i, m := range metrics {
		var boost float64
		for _, other := range metrics {
			if other.Code == m.Code {
				continue
			}
			underdoc := math.Max(0, other.IncidentPct-other.DocumentedPct) / 100
			boost += matrix.Cooccurrence(m.Code, other.Code) * underdoc
		}
		adjusted := math.Min(limit, m.BSI+p.cfg.Weight*boost)
		adjusted = math.Max(adjusted, m.BSI)

		out[i] = m
		out[i].AdjustedBSI = math.Min(1, adjusted)
		if out[i].AdjustedBSI > m.BSI {
			zap.L().Debug("propagate: raised index",
				zap.String("code", m.Code),
				zap.Float64("bsi", m.BSI),
				zap.Float64("adjusted", out[i].AdjustedBSI))
		}
	}
	return out
}
