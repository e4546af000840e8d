// Package analyze derives blind spot metrics from the canonical risk
// entity set. Every run recomputes its aggregates from scratch; nothing
// in this package keeps state between runs.
package analyze

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
)

// ErrInconsistentAggregate is returned when the per-category counts do
// not reconcile with the entity partition. The run is aborted rather
// than reporting an index built on bad counts.
var ErrInconsistentAggregate = eris.New("analyze: aggregate counts diverge from entity partition")

// Scope restricts a run to a subset of the entity set. Zero values mean
// no restriction; TaxonomyID defaults to the seven-category scheme.
type Scope struct {
	ModelType  string
	TaxonomyID model.TaxonomyID
	Since      time.Time
	Until      time.Time
}

func (s Scope) taxonomy() model.TaxonomyID {
	if s.TaxonomyID == "" {
		return model.TaxonomyMIT
	}
	return s.TaxonomyID
}

// String renders the scope for run records and logs. An unrestricted
// scope renders as the empty string.
func (s Scope) String() string {
	var parts []string
	if s.ModelType != "" {
		parts = append(parts, "model_type="+s.ModelType)
	}
	if s.TaxonomyID != "" && s.TaxonomyID != model.TaxonomyMIT {
		parts = append(parts, "taxonomy="+string(s.TaxonomyID))
	}
	if !s.Since.IsZero() {
		parts = append(parts, "since="+s.Since.UTC().Format(time.RFC3339))
	}
	if !s.Until.IsZero() {
		parts = append(parts, "until="+s.Until.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, " ")
}

func (s Scope) matches(e model.CanonicalRiskEntity) bool {
	if !e.HasModelType(s.ModelType) {
		return false
	}
	if !s.Since.IsZero() && e.CreatedAt.Before(s.Since) {
		return false
	}
	if !s.Until.IsZero() && e.CreatedAt.After(s.Until) {
		return false
	}
	return true
}

// Analyzer computes per-category blind spot metrics and the global
// count-weighted index.
type Analyzer struct {
	cfg config.AnalyzeConfig
	reg *registry.Taxonomy
}

func NewAnalyzer(cfg config.AnalyzeConfig, reg *registry.Taxonomy) *Analyzer {
	return &Analyzer{cfg: cfg, reg: reg}
}

// Run computes blind spot metrics for every category of the scoped
// taxonomy over the in-scope entities. Unclassified entities never
// contribute to category counts but do count toward source totals.
func (a *Analyzer) Run(entities []model.CanonicalRiskEntity, scope Scope) (model.AnalysisRun, error) {
	tid := scope.taxonomy()

	var inScope []model.CanonicalRiskEntity
	for _, e := range entities {
		if scope.matches(e) {
			inScope = append(inScope, e)
		}
	}

	aggs, docTotal, incTotal := a.aggregate(inScope, tid)
	if err := a.crossCheck(inScope, tid, aggs, docTotal, incTotal); err != nil {
		return model.AnalysisRun{}, err
	}

	runAt := time.Now().UTC()
	run := model.AnalysisRun{
		ID:          uuid.NewString(),
		Scope:       scope.String(),
		EntityCount: len(inScope),
		RunAt:       runAt,
	}

	var weightedSum float64
	var weightTotal int
	for _, code := range a.reg.Codes(tid) {
		agg := aggs[code]
		docPct := pct(agg.DocumentedCount, docTotal)
		incPct := pct(agg.IncidentCount, incTotal)
		bsi := a.BSI(docPct, incPct)

		run.Metrics = append(run.Metrics, model.BlindSpotMetric{
			TaxonomyID:    tid,
			Code:          code,
			DocumentedPct: docPct,
			IncidentPct:   incPct,
			BSI:           bsi,
			AdjustedBSI:   bsi,
			HighRisk:      bsi > a.cfg.HighRiskThreshold,
			TotalCount:    agg.Total(),
			RunAt:         runAt,
		})
		if agg.Total() > 0 {
			weightedSum += bsi * float64(agg.Total())
			weightTotal += agg.Total()
		}
	}
	if weightTotal > 0 {
		run.GlobalBSI = weightedSum / float64(weightTotal)
	}

	zap.L().Info("analyze: run complete",
		zap.String("run_id", run.ID),
		zap.String("scope", run.Scope),
		zap.Int("entities", run.EntityCount),
		zap.Float64("global_bsi", run.GlobalBSI))
	return run, nil
}

// BSI is the gap index for one category: |d−i| / max(d, i, ε), clamped
// to [0,1]. Both percentages zero means no signal, not a gap.
func (a *Analyzer) BSI(docPct, incPct float64) float64 {
	if docPct == 0 && incPct == 0 {
		return 0
	}
	eps := a.cfg.Epsilon
	if eps <= 0 {
		eps = 1e-9
	}
	v := math.Abs(docPct-incPct) / math.Max(docPct, math.Max(incPct, eps))
	return math.Min(1, math.Max(0, v))
}

func (a *Analyzer) aggregate(entities []model.CanonicalRiskEntity, tid model.TaxonomyID) (map[string]model.CategoryAggregate, int, int) {
	aggs := make(map[string]model.CategoryAggregate)
	var docTotal, incTotal int
	for _, e := range entities {
		if e.HasSource(model.SourceDocumentation) {
			docTotal++
		}
		if e.HasSource(model.SourceIncident) {
			incTotal++
		}
		for _, asg := range e.Assignments {
			if asg.TaxonomyID != tid || asg.Code == model.CodeUnclassified {
				continue
			}
			agg := aggs[asg.Code]
			if e.HasSource(model.SourceDocumentation) {
				agg.DocumentedCount++
				agg.DocumentedConfidenceSum += asg.Confidence
			}
			if e.HasSource(model.SourceIncident) {
				agg.IncidentCount++
				agg.IncidentConfidenceSum += asg.Confidence
			}
			agg.TaxonomyID = tid
			agg.Code = asg.Code
			aggs[asg.Code] = agg
		}
	}
	return aggs, docTotal, incTotal
}

// crossCheck recomputes every count by a second, per-category pass and
// compares. A divergence means the partition and the aggregates no
// longer describe the same entity set.
func (a *Analyzer) crossCheck(entities []model.CanonicalRiskEntity, tid model.TaxonomyID, aggs map[string]model.CategoryAggregate, docTotal, incTotal int) error {
	if docTotal > len(entities) || incTotal > len(entities) {
		return eris.Wrap(ErrInconsistentAggregate, fmt.Sprintf("source totals %d/%d exceed partition size %d", docTotal, incTotal, len(entities)))
	}
	for code, agg := range aggs {
		var doc, inc int
		key := model.CategoryKey{TaxonomyID: tid, Code: code}
		for _, e := range entities {
			if !e.HasCategory(key) {
				continue
			}
			if e.HasSource(model.SourceDocumentation) {
				doc++
			}
			if e.HasSource(model.SourceIncident) {
				inc++
			}
		}
		if doc != agg.DocumentedCount || inc != agg.IncidentCount {
			return eris.Wrap(ErrInconsistentAggregate, fmt.Sprintf("category %s counts %d/%d, recount %d/%d", code, agg.DocumentedCount, agg.IncidentCount, doc, inc))
		}
		if agg.DocumentedCount > docTotal || agg.IncidentCount > incTotal {
			return eris.Wrap(ErrInconsistentAggregate, fmt.Sprintf("category %s counts exceed source totals", code))
		}
	}
	return nil
}

func pct(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
