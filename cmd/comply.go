package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/comply"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/registry"
)

var (
	complyFramework string
	complySubject   string
	complyRunID     string
	complyEvidence  string
)

var complyCmd = &cobra.Command{
	Use:   "comply",
	Short: "Evaluate a subject against a compliance framework",
	Long:  "Evaluates the latest analysis run against a declarative rule framework. Rules that cannot be evaluated report insufficient evidence, never pass or fail.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		frameworks, err := loadFrameworks()
		if err != nil {
			return eris.Wrap(err, "load frameworks")
		}
		framework, ok := registry.Framework(frameworks, complyFramework)
		if !ok {
			return eris.Errorf("unknown framework %q", complyFramework)
		}

		run, err := loadRun(ctx, st, complyRunID)
		if err != nil {
			return err
		}

		entities, err := st.ListEntities(ctx)
		if err != nil {
			return eris.Wrap(err, "list entities")
		}

		profile := comply.Profile{
			SubjectID: complySubject,
			Entities:  entities,
			Metrics:   run.Metrics,
		}

		findings := comply.Check(profile, framework, time.Now())
		if err := st.SaveFindings(ctx, findings); err != nil {
			return eris.Wrap(err, "save findings")
		}

		summary := comply.Summarize(findings)
		zap.L().Info("compliance check complete",
			zap.String("framework", framework.FrameworkID),
			zap.String("subject", complySubject),
			zap.Int("pass", summary.Pass),
			zap.Int("fail", summary.Fail),
			zap.Int("insufficient_evidence", summary.InsufficientEvidence),
		)

		formatFindings(findings)

		if complyEvidence != "" {
			if err := writeEvidencePack(complyEvidence, profile, framework, findings); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "\nevidence pack written to %s\n", complyEvidence)
		}

		if summary.Fail > 0 {
			return eris.Errorf("%d rule(s) failed", summary.Fail)
		}
		return nil
	},
}

func formatFindings(findings []model.ComplianceFinding) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RULE\tSTATUS\tDETAIL")
	for _, f := range findings {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", f.RuleID, f.Status, f.Detail)
	}
	_ = w.Flush()
}

func writeEvidencePack(path string, profile comply.Profile, framework model.ComplianceFramework, findings []model.ComplianceFinding) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "create evidence pack")
	}
	defer f.Close() //nolint:errcheck

	if err := comply.WriteEvidencePack(f, profile, framework, findings); err != nil {
		return err
	}
	return eris.Wrap(f.Close(), "close evidence pack")
}

func init() {
	complyCmd.Flags().StringVar(&complyFramework, "framework", "", "framework ID to evaluate (required)")
	complyCmd.Flags().StringVar(&complySubject, "subject", "", "subject model or system identifier (required)")
	complyCmd.Flags().StringVar(&complyRunID, "run", "", "analysis run to evaluate (default latest)")
	complyCmd.Flags().StringVar(&complyEvidence, "evidence", "", "write an evidence pack zip to this path")
	_ = complyCmd.MarkFlagRequired("framework")
	_ = complyCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(complyCmd)
}
