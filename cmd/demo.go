package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/risk-sentinel/sentinel-cli/internal/analyze"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/recommend"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
	"github.com/risk-sentinel/sentinel-cli/internal/report"
)

var demoJSON bool

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Show blind spot metrics for the published reference distributions",
	Long:  "Computes the blind spot index from the published documentation and incident category distributions, without touching the store. Useful for a first look at the methodology.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tax, err := loadTaxonomy()
		if err != nil {
			return eris.Wrap(err, "load taxonomy")
		}

		analyzer := analyze.NewAnalyzer(cfg.Analyze, tax)
		runAt := time.Now().UTC()

		var metrics []model.BlindSpotMetric
		for _, code := range tax.Codes(model.TaxonomyMIT) {
			docPct := registry.ReferenceDocumented[code]
			incPct := registry.ReferenceIncidents[code]
			bsi := analyzer.BSI(docPct, incPct)

			metrics = append(metrics, model.BlindSpotMetric{
				TaxonomyID:    model.TaxonomyMIT,
				Code:          code,
				DocumentedPct: docPct,
				IncidentPct:   incPct,
				BSI:           bsi,
				AdjustedBSI:   bsi,
				HighRisk:      bsi > cfg.Analyze.HighRiskThreshold,
				TotalCount:    1,
				RunAt:         runAt,
			})
		}

		run := model.AnalysisRun{
			ID:          "reference",
			Scope:       "reference distributions",
			EntityCount: 0,
			Metrics:     metrics,
			RunAt:       runAt,
		}
		var sum float64
		for _, m := range metrics {
			sum += m.BSI
		}
		if len(metrics) > 0 {
			run.GlobalBSI = sum / float64(len(metrics))
		}

		recs := recommend.NewEngine(cfg.Recommend).Build(metrics)
		snap := report.Build(run, recs)

		if demoJSON {
			return report.WriteJSON(os.Stdout, snap)
		}
		report.RenderText(os.Stdout, snap)
		return nil
	},
}

func init() {
	demoCmd.Flags().BoolVar(&demoJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(demoCmd)
}
