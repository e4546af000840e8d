package analyze

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
)

func testAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	reg, err := registry.LoadTaxonomy()
	require.NoError(t, err)
	return NewAnalyzer(config.AnalyzeConfig{Epsilon: 1e-9, HighRiskThreshold: 0.5}, reg)
}

func entity(code string, sources map[model.SourceType]int, modelTypes ...string) model.CanonicalRiskEntity {
	var assignments []model.CategoryAssignment
	if code != "" {
		assignments = []model.CategoryAssignment{{
			TaxonomyID: model.TaxonomyMIT,
			Code:       code,
			Confidence: 0.8,
		}}
	}
	return model.CanonicalRiskEntity{
		ClusterID:    "cluster-" + code,
		Assignments:  assignments,
		SourceCounts: sources,
		ModelTypes:   modelTypes,
		CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestBSI_Calibration(t *testing.T) {
	a := testAnalyzer(t)

	// Reference points from the published gap study.
	assert.InDelta(t, 0.82, a.BSI(4.0, 22.4), 0.005)
	assert.InDelta(t, 0.21, a.BSI(10.2, 12.9), 0.005)
}

func TestBSI_Edges(t *testing.T) {
	a := testAnalyzer(t)

	assert.Equal(t, 0.0, a.BSI(0, 0))
	assert.Equal(t, 1.0, a.BSI(0, 30))
	assert.Equal(t, 1.0, a.BSI(30, 0))
	assert.Equal(t, 0.0, a.BSI(15, 15))

	// Always inside [0,1].
	for _, pair := range [][2]float64{{0.001, 99}, {99, 0.001}, {50, 50}} {
		v := a.BSI(pair[0], pair[1])
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestRun_Percentages(t *testing.T) {
	a := testAnalyzer(t)

	// 4 documented entities, 2 incident entities. malicious_actors is
	// tagged on 1 of 4 documented and 2 of 2 incident entities.
	entities := []model.CanonicalRiskEntity{
		entity(model.MITMaliciousActors, map[model.SourceType]int{model.SourceDocumentation: 1}),
		entity(model.MITPrivacySecurity, map[model.SourceType]int{model.SourceDocumentation: 2}),
		entity(model.MITMisinformation, map[model.SourceType]int{model.SourceDocumentation: 1}),
		entity(model.MITSystemSafety, map[model.SourceType]int{model.SourceDocumentation: 1}),
		entity(model.MITMaliciousActors, map[model.SourceType]int{model.SourceIncident: 1}),
		entity(model.MITMaliciousActors, map[model.SourceType]int{model.SourceIncident: 3}),
	}

	run, err := a.Run(entities, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 6, run.EntityCount)

	m := metricFor(t, run, model.MITMaliciousActors)
	assert.InDelta(t, 25.0, m.DocumentedPct, 1e-9)
	assert.InDelta(t, 100.0, m.IncidentPct, 1e-9)
	assert.InDelta(t, 0.75, m.BSI, 1e-9)
	assert.True(t, m.HighRisk)
	assert.Equal(t, 3, m.TotalCount)

	// privacy_security: documented only, no incidents.
	p := metricFor(t, run, model.MITPrivacySecurity)
	assert.InDelta(t, 25.0, p.DocumentedPct, 1e-9)
	assert.Equal(t, 0.0, p.IncidentPct)
	assert.Equal(t, 1.0, p.BSI)
}

func TestRun_GlobalBSIIsCountWeighted(t *testing.T) {
	a := testAnalyzer(t)

	entities := []model.CanonicalRiskEntity{
		entity(model.MITMaliciousActors, map[model.SourceType]int{model.SourceIncident: 1}),
		entity(model.MITMaliciousActors, map[model.SourceType]int{model.SourceIncident: 1}),
		entity(model.MITMaliciousActors, map[model.SourceType]int{model.SourceIncident: 1}),
		entity(model.MITPrivacySecurity, map[model.SourceType]int{model.SourceDocumentation: 1, model.SourceIncident: 1}),
	}

	run, err := a.Run(entities, Scope{})
	require.NoError(t, err)

	// malicious_actors: doc 0%, inc 75% => BSI 1.0, count 3.
	// privacy_security: doc 100%, inc 25% => BSI 0.75, count 2.
	want := (1.0*3 + 0.75*2) / 5.0
	assert.InDelta(t, want, run.GlobalBSI, 1e-9)
}

func TestRun_EmptySet(t *testing.T) {
	a := testAnalyzer(t)

	run, err := a.Run(nil, Scope{})
	require.NoError(t, err)
	assert.Equal(t, 0, run.EntityCount)
	assert.Equal(t, 0.0, run.GlobalBSI)
	for _, m := range run.Metrics {
		assert.Equal(t, 0.0, m.BSI)
		assert.False(t, m.HighRisk)
	}
}

func TestRun_ScopeFiltersModelType(t *testing.T) {
	a := testAnalyzer(t)

	entities := []model.CanonicalRiskEntity{
		entity(model.MITMisinformation, map[model.SourceType]int{model.SourceIncident: 1}, "frontier"),
		entity(model.MITPrivacySecurity, map[model.SourceType]int{model.SourceIncident: 1}, "open_weight"),
	}

	run, err := a.Run(entities, Scope{ModelType: "frontier"})
	require.NoError(t, err)
	assert.Equal(t, 1, run.EntityCount)
	assert.Equal(t, "model_type=frontier", run.Scope)

	m := metricFor(t, run, model.MITPrivacySecurity)
	assert.Equal(t, 0, m.TotalCount)
}

func TestRun_ScopeFiltersTimeWindow(t *testing.T) {
	a := testAnalyzer(t)

	old := entity(model.MITMisinformation, map[model.SourceType]int{model.SourceIncident: 1})
	old.CreatedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := entity(model.MITMisinformation, map[model.SourceType]int{model.SourceIncident: 1})

	run, err := a.Run([]model.CanonicalRiskEntity{old, recent},
		Scope{Since: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, 1, run.EntityCount)
}

func TestRun_UnclassifiedCountsTowardTotalsOnly(t *testing.T) {
	a := testAnalyzer(t)

	unclassified := entity("", map[model.SourceType]int{model.SourceDocumentation: 1})
	unclassified.Assignments = []model.CategoryAssignment{{
		TaxonomyID: model.TaxonomyMIT,
		Code:       model.CodeUnclassified,
	}}
	tagged := entity(model.MITMisinformation, map[model.SourceType]int{model.SourceDocumentation: 1})

	run, err := a.Run([]model.CanonicalRiskEntity{unclassified, tagged}, Scope{})
	require.NoError(t, err)

	// Two documented entities in the denominator, one tagged.
	m := metricFor(t, run, model.MITMisinformation)
	assert.InDelta(t, 50.0, m.DocumentedPct, 1e-9)
	for _, metric := range run.Metrics {
		assert.NotEqual(t, model.CodeUnclassified, metric.Code)
	}
}

func TestCrossCheck_TamperedAggregateFails(t *testing.T) {
	a := testAnalyzer(t)

	entities := []model.CanonicalRiskEntity{
		entity(model.MITMisinformation, map[model.SourceType]int{model.SourceIncident: 1}),
	}
	aggs, docTotal, incTotal := a.aggregate(entities, model.TaxonomyMIT)

	require.NoError(t, a.crossCheck(entities, model.TaxonomyMIT, aggs, docTotal, incTotal))

	bad := aggs[model.MITMisinformation]
	bad.IncidentCount = 5
	aggs[model.MITMisinformation] = bad
	err := a.crossCheck(entities, model.TaxonomyMIT, aggs, docTotal, incTotal)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInconsistentAggregate)
}

func metricFor(t *testing.T, run model.AnalysisRun, code string) model.BlindSpotMetric {
	t.Helper()
	for _, m := range run.Metrics {
		if m.Code == code {
			return m
		}
	}
	t.Fatalf("no metric for %s", code)
	return model.BlindSpotMetric{}
}
