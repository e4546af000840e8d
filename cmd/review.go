package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/normalize"
	"github.com/risk-sentinel/sentinel-cli/internal/store"
)

var reviewAssignments []string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review low-confidence classifications",
	Long:  "Commands for inspecting the review queue and overriding classifications. An override supersedes the original record; originals are kept for audit.",
}

// -- review list --

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List risks flagged for human review",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		queue, err := st.ListReviewQueue(ctx)
		if err != nil {
			return eris.Wrap(err, "list review queue")
		}

		if len(queue) == 0 {
			fmt.Fprintln(os.Stderr, "Review queue is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSOURCE\tMETHOD\tASSIGNMENTS")
		for _, r := range queue {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				truncateID(r.ID),
				r.SourceType,
				r.Method,
				formatAssignments(r.Assignments),
			)
		}
		return w.Flush()
	},
}

// -- review override --

var reviewOverrideCmd = &cobra.Command{
	Use:   "override <risk-id>",
	Short: "Replace a classification with a human decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		assignments, err := parseAssignments(reviewAssignments)
		if err != nil {
			return err
		}
		for _, a := range assignments {
			if !tax.Has(a.TaxonomyID, a.Code) {
				return eris.Errorf("unknown category %s:%s", a.TaxonomyID, a.Code)
			}
		}

		original, err := findRisk(ctx, st, args[0])
		if err != nil {
			return err
		}

		override := normalize.Override(original, assignments)
		if err := st.SaveOverride(ctx, override); err != nil {
			return eris.Wrap(err, "save override")
		}

		zap.L().Info("override recorded",
			zap.String("risk_id", original.ID),
			zap.String("override_id", override.ID),
			zap.Int("assignments", len(assignments)),
		)
		return nil
	},
}

func findRisk(ctx context.Context, st store.Store, riskID string) (model.NormalizedRisk, error) {
	risks, err := st.ListCurrentRisks(ctx)
	if err != nil {
		return model.NormalizedRisk{}, eris.Wrap(err, "list current risks")
	}
	for _, r := range risks {
		if r.ID == riskID {
			return r, nil
		}
	}
	return model.NormalizedRisk{}, eris.Errorf("risk %s not found", riskID)
}

// parseAssignments parses --assign values of the form
// taxonomy:code[:confidence]. Confidence defaults to 1.0 for human
// decisions.
func parseAssignments(specs []string) ([]model.CategoryAssignment, error) {
	if len(specs) == 0 {
		return nil, eris.New("at least one --assign is required")
	}

	assignments := make([]model.CategoryAssignment, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, eris.Errorf("invalid assignment %q, expected taxonomy:code[:confidence]", spec)
		}

		confidence := 1.0
		if len(parts) == 3 {
			c, err := strconv.ParseFloat(parts[2], 64)
			if err != nil || c < 0 || c > 1 {
				return nil, eris.Errorf("invalid confidence in %q", spec)
			}
			confidence = c
		}

		assignments = append(assignments, model.CategoryAssignment{
			TaxonomyID: model.TaxonomyID(parts[0]),
			Code:       parts[1],
			Confidence: confidence,
		})
	}
	return assignments, nil
}

func formatAssignments(assignments []model.CategoryAssignment) string {
	if len(assignments) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(assignments))
	for _, a := range assignments {
		parts = append(parts, fmt.Sprintf("%s:%s (%.2f)", a.TaxonomyID, a.Code, a.Confidence))
	}
	return strings.Join(parts, ", ")
}

func init() {
	reviewOverrideCmd.Flags().StringArrayVar(&reviewAssignments, "assign", nil, "category assignment as taxonomy:code[:confidence], repeatable")

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewOverrideCmd)
	rootCmd.AddCommand(reviewCmd)
}
