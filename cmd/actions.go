package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/orchestrate"
)

var (
	actionsState     string
	actionsActor     string
	actionsRationale string
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Manage proposed remediation actions",
	Long:  "Commands for listing, approving, rejecting, cancelling, and applying proposed actions. Approval and rejection always require a named actor and a rationale.",
}

// -- actions list --

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposed actions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var states []model.ActionState
		if actionsState != "" {
			states = append(states, model.ActionState(actionsState))
		}

		actions, err := st.ListActions(ctx, states...)
		if err != nil {
			return eris.Wrap(err, "list actions")
		}

		if len(actions) == 0 {
			fmt.Fprintln(os.Stderr, "No actions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSTATE\tPRIORITY\tCATEGORY\tUPDATED")
		for _, a := range actions {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				truncateID(a.ID),
				a.State,
				a.Recommendation.Priority,
				a.Recommendation.Code,
				a.UpdatedAt.Format("2006-01-02 15:04"),
			)
		}
		return w.Flush()
	},
}

// -- actions show --

var actionsShowCmd = &cobra.Command{
	Use:   "show <action-id>",
	Short: "Show an action and its audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		action, err := st.GetAction(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get action")
		}
		events, err := st.ListActionEvents(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "list action events")
		}

		out := struct {
			Action *model.ProposedAction `json:"action"`
			Events []model.ActionEvent   `json:"events"`
		}{action, events}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// -- actions approve / reject --

func decideCmd(use, short, decision string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			o := orchestrate.New(st, cfg.Orchestrate)
			err = o.Decide(ctx, model.DecisionEvent{
				ActionID:  args[0],
				Decision:  decision,
				Actor:     actionsActor,
				Rationale: actionsRationale,
				Timestamp: time.Now().UTC(),
			})
			if err != nil {
				return eris.Wrapf(err, "%s action", decision)
			}

			zap.L().Info("decision recorded",
				zap.String("action_id", args[0]),
				zap.String("decision", decision),
				zap.String("actor", actionsActor),
			)
			return nil
		},
	}
}

// -- actions apply --

var actionsApplyCmd = &cobra.Command{
	Use:   "apply <action-id>",
	Short: "Mark an approved action as applied",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := orchestrate.New(st, cfg.Orchestrate).Apply(ctx, args[0], actionsActor); err != nil {
			return eris.Wrap(err, "apply action")
		}
		zap.L().Info("action applied", zap.String("action_id", args[0]))
		return nil
	},
}

// -- actions cancel --

var actionsCancelCmd = &cobra.Command{
	Use:   "cancel <action-id>",
	Short: "Cancel a proposed or pending action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := orchestrate.New(st, cfg.Orchestrate).Cancel(ctx, args[0], actionsActor, actionsRationale); err != nil {
			return eris.Wrap(err, "cancel action")
		}
		zap.L().Info("action cancelled", zap.String("action_id", args[0]))
		return nil
	},
}

// -- actions escalate --

var actionsEscalateCmd = &cobra.Command{
	Use:   "escalate",
	Short: "Re-notify reviewers of overdue pending actions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stale, err := orchestrate.New(st, cfg.Orchestrate).Escalate(ctx)
		if err != nil {
			return eris.Wrap(err, "escalate")
		}

		fmt.Fprintf(os.Stdout, "%d overdue action(s) re-notified\n", len(stale))
		return nil
	},
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	actionsListCmd.Flags().StringVar(&actionsState, "state", "", "filter by lifecycle state")

	approveCmd := decideCmd("approve <action-id>", "Approve a pending action", "approve")
	rejectCmd := decideCmd("reject <action-id>", "Reject a pending action", "reject")
	for _, c := range []*cobra.Command{approveCmd, rejectCmd} {
		c.Flags().StringVar(&actionsActor, "actor", "", "reviewer identity (required)")
		c.Flags().StringVar(&actionsRationale, "rationale", "", "decision rationale (required)")
		_ = c.MarkFlagRequired("actor")
		_ = c.MarkFlagRequired("rationale")
	}

	actionsApplyCmd.Flags().StringVar(&actionsActor, "actor", "", "operator identity (required)")
	_ = actionsApplyCmd.MarkFlagRequired("actor")

	actionsCancelCmd.Flags().StringVar(&actionsActor, "actor", "", "operator identity (required)")
	actionsCancelCmd.Flags().StringVar(&actionsRationale, "rationale", "", "cancellation rationale")
	_ = actionsCancelCmd.MarkFlagRequired("actor")

	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsShowCmd)
	actionsCmd.AddCommand(approveCmd)
	actionsCmd.AddCommand(rejectCmd)
	actionsCmd.AddCommand(actionsApplyCmd)
	actionsCmd.AddCommand(actionsCancelCmd)
	actionsCmd.AddCommand(actionsEscalateCmd)
	rootCmd.AddCommand(actionsCmd)
}
