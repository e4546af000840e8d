package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/risk-sentinel/sentinel-cli/internal/recommend"
	"github.com/risk-sentinel/sentinel-cli/internal/report"
)

var (
	reportRunID  string
	reportFormat string
	reportOut    string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export the blind spot report for an analysis run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := loadRun(ctx, st, reportRunID)
		if err != nil {
			return err
		}

		recs := recommend.NewEngine(cfg.Recommend).Build(run.Metrics)
		snap := report.Build(*run, recs)

		var out io.Writer = os.Stdout
		if reportOut != "" {
			f, err := os.Create(reportOut)
			if err != nil {
				return eris.Wrap(err, "create report file")
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		switch reportFormat {
		case "json":
			return report.WriteJSON(out, snap)
		case "xlsx":
			if reportOut == "" {
				return eris.New("--out is required for xlsx output")
			}
			return report.WriteXLSX(out, snap)
		case "text":
			report.RenderText(out, snap)
			return nil
		default:
			return eris.Errorf("unknown report format: %s", reportFormat)
		}
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportRunID, "run", "", "analysis run to report on (default latest)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "json", "output format: json, xlsx, or text")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "write output to this path instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
