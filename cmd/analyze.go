package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/analyze"
	"github.com/risk-sentinel/sentinel-cli/internal/dedupe"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/normalize"
	"github.com/risk-sentinel/sentinel-cli/internal/orchestrate"
	"github.com/risk-sentinel/sentinel-cli/internal/propagate"
	"github.com/risk-sentinel/sentinel-cli/internal/recommend"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
	"github.com/risk-sentinel/sentinel-cli/internal/report"
	"github.com/risk-sentinel/sentinel-cli/internal/store"
	anthropicpkg "github.com/risk-sentinel/sentinel-cli/pkg/anthropic"
)

var (
	analyzeModelType string
	analyzeTaxonomy  string
	analyzeSince     string
	analyzeUntil     string
	analyzeJSON      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analysis pipeline over ingested statements",
	Long:  "Classifies unprocessed statements, deduplicates them into canonical risk entities, computes blind spot metrics, and proposes remediation actions for human review.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tax, err := loadTaxonomy()
		if err != nil {
			return eris.Wrap(err, "load taxonomy")
		}

		scope, err := parseScope()
		if err != nil {
			return err
		}

		statements, err := st.ListStatements(ctx, store.StatementFilter{})
		if err != nil {
			return eris.Wrap(err, "list statements")
		}
		if len(statements) == 0 {
			return eris.New("no statements ingested; run `sentinel ingest` first")
		}

		risks, err := classifyNew(ctx, st, tax, statements)
		if err != nil {
			return err
		}

		textOf := statementIndex(statements)
		merger := dedupe.NewMerger(cfg.Dedupe, textOf)
		entities := merger.Merge(risks)
		if err := st.ReplaceEntities(ctx, entities); err != nil {
			return eris.Wrap(err, "replace entities")
		}

		analyzer := analyze.NewAnalyzer(cfg.Analyze, tax)
		run, err := analyzer.Run(entities, scope)
		if err != nil {
			return eris.Wrap(err, "analyze")
		}

		tid := scope.TaxonomyID
		if tid == "" {
			tid = model.TaxonomyMIT
		}
		matrix := propagate.BuildMatrix(entities, tid)
		run.Metrics = propagate.NewPropagator(cfg.Propagate).Adjust(run.Metrics, matrix)

		recs := recommend.NewEngine(cfg.Recommend).Build(run.Metrics)

		if err := st.SaveRun(ctx, run); err != nil {
			return eris.Wrap(err, "save run")
		}

		actions, err := orchestrate.New(st, cfg.Orchestrate).Propose(ctx, run.ID, recs)
		if err != nil {
			return eris.Wrap(err, "propose actions")
		}

		zap.L().Info("analysis complete",
			zap.String("run_id", run.ID),
			zap.Int("entities", run.EntityCount),
			zap.Float64("global_bsi", run.GlobalBSI),
			zap.Int("recommendations", len(recs)),
			zap.Int("actions_enqueued", len(actions)),
		)

		snap := report.Build(run, recs)
		if analyzeJSON {
			return report.WriteJSON(os.Stdout, snap)
		}
		report.RenderText(os.Stdout, snap)
		return nil
	},
}

// classifyNew classifies statements that have no current normalized
// risk. Existing records, including human overrides, are kept as-is so
// re-running analyze never discards review work.
func classifyNew(ctx context.Context, st store.Store, tax *registry.Taxonomy, statements []model.RawRiskStatement) ([]model.NormalizedRisk, error) {
	current, err := st.ListCurrentRisks(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "list current risks")
	}

	seen := make(map[string]bool, len(current))
	for _, r := range current {
		seen[r.StatementID] = true
	}

	var pending []model.RawRiskStatement
	for _, stm := range statements {
		if !seen[stm.ID] {
			pending = append(pending, stm)
		}
	}

	if len(pending) > 0 {
		strategy, err := initStrategy(tax)
		if err != nil {
			return nil, err
		}
		fresh := normalize.New(strategy, cfg.Normalize).ClassifyAll(ctx, pending)
		if err := st.SaveRisks(ctx, fresh); err != nil {
			return nil, eris.Wrap(err, "save risks")
		}
		current = append(current, fresh...)
	}

	return current, nil
}

func initStrategy(tax *registry.Taxonomy) (normalize.Strategy, error) {
	switch cfg.Normalize.Strategy {
	case "", "rule":
		return normalize.NewRuleStrategy(tax), nil
	case "claude":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("anthropic key is required for the claude strategy (SENTINEL_ANTHROPIC_KEY)")
		}
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, cfg.Anthropic.RequestsPerSec)
		return normalize.NewClaudeStrategy(client, tax, cfg.Anthropic), nil
	default:
		return nil, eris.Errorf("unknown normalize strategy: %s", cfg.Normalize.Strategy)
	}
}

func statementIndex(statements []model.RawRiskStatement) func(statementID string) string {
	byID := make(map[string]string, len(statements))
	for _, stm := range statements {
		byID[stm.ID] = stm.Text
	}
	return func(statementID string) string {
		return byID[statementID]
	}
}

func parseScope() (analyze.Scope, error) {
	scope := analyze.Scope{
		ModelType:  analyzeModelType,
		TaxonomyID: model.TaxonomyID(analyzeTaxonomy),
	}

	if analyzeSince != "" {
		t, err := parseTimeFlag(analyzeSince)
		if err != nil {
			return scope, eris.Wrap(err, "parse --since")
		}
		scope.Since = t
	}
	if analyzeUntil != "" {
		t, err := parseTimeFlag(analyzeUntil)
		if err != nil {
			return scope, eris.Wrap(err, "parse --until")
		}
		scope.Until = t
	}
	return scope, nil
}

func parseTimeFlag(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeModelType, "model-type", "", "restrict the run to one model type")
	analyzeCmd.Flags().StringVar(&analyzeTaxonomy, "taxonomy", "", "taxonomy to aggregate under (mit or air, default mit)")
	analyzeCmd.Flags().StringVar(&analyzeSince, "since", "", "only include entities created at or after this time (RFC3339 or YYYY-MM-DD)")
	analyzeCmd.Flags().StringVar(&analyzeUntil, "until", "", "only include entities created at or before this time (RFC3339 or YYYY-MM-DD)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full report as JSON instead of a summary table")
	rootCmd.AddCommand(analyzeCmd)
}
