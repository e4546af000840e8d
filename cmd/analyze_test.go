package main

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risk-sentinel/sentinel-cli/internal/analyze"
	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/dedupe"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/orchestrate"
	"github.com/risk-sentinel/sentinel-cli/internal/propagate"
	"github.com/risk-sentinel/sentinel-cli/internal/recommend"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
	"github.com/risk-sentinel/sentinel-cli/internal/store"
)

// testConfig mirrors the shipped defaults.
func testConfig() *config.Config {
	return &config.Config{
		Normalize: config.NormalizeConfig{
			MinLength:           20,
			ConfidenceThreshold: 0.35,
			StrategyTimeoutSecs: 30,
			MaxConcurrency:      8,
			Strategy:            "rule",
		},
		Dedupe:      config.DedupeConfig{SimilarityThreshold: 0.6},
		Analyze:     config.AnalyzeConfig{Epsilon: 1e-9, HighRiskThreshold: 0.5},
		Propagate:   config.PropagateConfig{Weight: 0.25, Cap: 1.0},
		Recommend:   config.RecommendConfig{NearZeroDocPct: 1.0},
		Orchestrate: config.OrchestrateConfig{EscalationAgeHours: 72},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// corpusStatement builds a statement whose text hits exactly one keyword
// and carries enough unique filler tokens that no two statements cross
// the dedup similarity threshold.
func corpusStatement(i int, src model.SourceType, keyword string) model.RawRiskStatement {
	return model.RawRiskStatement{
		ID:         fmt.Sprintf("stm-%s-%03d", src, i),
		SourceID:   "corpus",
		SourceType: src,
		Text:       fmt.Sprintf("observed %s behaviour q%dv q%dw q%dx q%dy q%dz", keyword, i, i, i, i, i),
		OriginRef:  fmt.Sprintf("%s-%03d", src, i),
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Minute),
	}
}

// buildCorpus returns 100 documentation and 20 incident statements. The
// documentation set barely mentions misuse while misuse dominates the
// incident set, so malicious_actors is the one severe gap.
func buildCorpus() []model.RawRiskStatement {
	var statements []model.RawRiskStatement
	i := 0
	add := func(src model.SourceType, keyword string, n int) {
		for k := 0; k < n; k++ {
			statements = append(statements, corpusStatement(i, src, keyword))
			i++
		}
	}

	add(model.SourceDocumentation, "biased", 54)
	add(model.SourceDocumentation, "hallucinated", 45)
	add(model.SourceDocumentation, "deepfake", 1)

	add(model.SourceIncident, "deepfake", 8)
	add(model.SourceIncident, "biased", 7)
	add(model.SourceIncident, "hallucinated", 5)

	return statements
}

func TestPipelineEndToEnd(t *testing.T) {
	cfg = testConfig()
	ctx := context.Background()
	st := newTestStore(t)

	tax, err := registry.LoadTaxonomy()
	require.NoError(t, err)

	statements := buildCorpus()
	require.Len(t, statements, 120)

	written, err := st.UpsertStatements(ctx, statements)
	require.NoError(t, err)
	assert.Equal(t, 120, written)

	risks, err := classifyNew(ctx, st, tax, statements)
	require.NoError(t, err)
	require.Len(t, risks, 120)

	entities := dedupe.NewMerger(cfg.Dedupe, statementIndex(statements)).Merge(risks)
	require.Len(t, entities, 120, "fixture texts must not cluster")
	require.NoError(t, st.ReplaceEntities(ctx, entities))

	analyzer := analyze.NewAnalyzer(cfg.Analyze, tax)
	run, err := analyzer.Run(entities, analyze.Scope{})
	require.NoError(t, err)
	assert.Equal(t, 120, run.EntityCount)

	matrix := propagate.BuildMatrix(entities, model.TaxonomyMIT)
	run.Metrics = propagate.NewPropagator(cfg.Propagate).Adjust(run.Metrics, matrix)

	malicious := metricByCode(t, run.Metrics, model.MITMaliciousActors)
	assert.InDelta(t, 1.0, malicious.DocumentedPct, 1e-9)
	assert.InDelta(t, 40.0, malicious.IncidentPct, 1e-9)
	assert.InDelta(t, 0.975, malicious.BSI, 1e-9)
	assert.True(t, malicious.HighRisk)

	disc := metricByCode(t, run.Metrics, model.MITDiscriminationToxicity)
	assert.InDelta(t, 54.0, disc.DocumentedPct, 1e-9)
	assert.InDelta(t, 35.0, disc.IncidentPct, 1e-9)
	assert.False(t, disc.HighRisk)

	recs := recommend.NewEngine(cfg.Recommend).Build(run.Metrics)

	var high []model.Recommendation
	for _, r := range recs {
		if r.Priority == model.PriorityHigh {
			high = append(high, r)
		}
	}
	require.Len(t, high, 1, "exactly one category should demand urgent attention")
	assert.Equal(t, model.MITMaliciousActors, high[0].Code)
	assert.True(t, high[0].EvidenceRequired)
	assert.Equal(t, high[0], recs[0], "highest priority sorts first")

	require.NoError(t, st.SaveRun(ctx, run))

	actions, err := orchestrate.New(st, cfg.Orchestrate).Propose(ctx, run.ID, recs)
	require.NoError(t, err)
	require.Len(t, actions, len(recs))
	for _, a := range actions {
		assert.Equal(t, model.ActionPendingReview, a.State)
	}

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
}

func TestPipelineRerunKeepsRisks(t *testing.T) {
	cfg = testConfig()
	ctx := context.Background()
	st := newTestStore(t)

	tax, err := registry.LoadTaxonomy()
	require.NoError(t, err)

	statements := buildCorpus()
	_, err = st.UpsertStatements(ctx, statements)
	require.NoError(t, err)

	first, err := classifyNew(ctx, st, tax, statements)
	require.NoError(t, err)

	second, err := classifyNew(ctx, st, tax, statements)
	require.NoError(t, err)
	assert.Len(t, second, len(first), "re-running must not re-classify")
}

func metricByCode(t *testing.T, metrics []model.BlindSpotMetric, code string) model.BlindSpotMetric {
	t.Helper()
	for _, m := range metrics {
		if m.Code == code {
			return m
		}
	}
	t.Fatalf("no metric for %s", code)
	return model.BlindSpotMetric{}
}

func TestParseTimeFlag(t *testing.T) {
	got, err := parseTimeFlag("2026-02-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), got)

	got, err = parseTimeFlag("2026-02-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC), got)

	_, err = parseTimeFlag("yesterday")
	assert.Error(t, err)
}

func TestParseScope(t *testing.T) {
	analyzeModelType = "frontier"
	analyzeTaxonomy = ""
	analyzeSince = "2026-01-01"
	analyzeUntil = ""
	t.Cleanup(func() {
		analyzeModelType, analyzeSince = "", ""
	})

	scope, err := parseScope()
	require.NoError(t, err)
	assert.Equal(t, "frontier", scope.ModelType)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), scope.Since)
	assert.True(t, scope.Until.IsZero())
}
