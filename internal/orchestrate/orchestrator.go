// Package orchestrate drives the proposed-action lifecycle. Every path
// to APPLIED passes through PENDING_HUMAN_REVIEW and an explicit human
// decision; the orchestrator never approves anything on its own.
package orchestrate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/store"
)

// ErrInvalidTransition is returned for any state change the lifecycle
// does not allow. The action is left untouched.
var ErrInvalidTransition = eris.New("orchestrate: invalid state transition")

// SystemActor marks transitions performed by the pipeline itself rather
// than a human reviewer.
const SystemActor = "system"

// transitions is the complete lifecycle. Anything absent is invalid.
var transitions = map[model.ActionState][]model.ActionState{
	model.ActionDetected:      {model.ActionProposed},
	model.ActionProposed:      {model.ActionPendingReview, model.ActionCancelled},
	model.ActionPendingReview: {model.ActionApproved, model.ActionRejected, model.ActionCancelled},
	model.ActionApproved:      {model.ActionApplied},
}

// CanTransition reports whether the lifecycle permits from -> to.
func CanTransition(from, to model.ActionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Orchestrator mediates all action state changes through the store's
// compare-and-swap transition, so concurrent decisions cannot both win.
type Orchestrator struct {
	store store.Store
	cfg   config.OrchestrateConfig
	now   func() time.Time
}

func New(st store.Store, cfg config.OrchestrateConfig) *Orchestrator {
	return &Orchestrator{store: st, cfg: cfg, now: time.Now}
}

// Propose creates one action per recommendation and enqueues it for
// human review. The DETECTED and PROPOSED hops are recorded in the
// audit trail even though they are automatic.
func (o *Orchestrator) Propose(ctx context.Context, runID string, recs []model.Recommendation) ([]model.ProposedAction, error) {
	actions := make([]model.ProposedAction, 0, len(recs))
	for _, rec := range recs {
		now := o.now().UTC()
		action := model.ProposedAction{
			ID:             uuid.NewString(),
			RunID:          runID,
			Recommendation: rec,
			State:          model.ActionDetected,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := o.store.CreateAction(ctx, action); err != nil {
			return actions, err
		}
		if err := o.transition(ctx, action.ID, model.ActionDetected, model.ActionProposed, SystemActor, "recommendation generated"); err != nil {
			return actions, err
		}
		if err := o.transition(ctx, action.ID, model.ActionProposed, model.ActionPendingReview, SystemActor, "enqueued for human review"); err != nil {
			return actions, err
		}
		action.State = model.ActionPendingReview
		actions = append(actions, action)

		zap.L().Info("orchestrate: action proposed",
			zap.String("action_id", action.ID),
			zap.String("category", rec.Code),
			zap.String("priority", string(rec.Priority)))
	}
	return actions, nil
}

// Decide applies a human decision to a pending action. Actor and
// rationale are mandatory; both end up in the audit trail.
func (o *Orchestrator) Decide(ctx context.Context, decision model.DecisionEvent) error {
	if strings.TrimSpace(decision.Actor) == "" {
		return eris.New("orchestrate: decision requires an actor")
	}
	if strings.TrimSpace(decision.Rationale) == "" {
		return eris.New("orchestrate: decision requires a rationale")
	}

	var to model.ActionState
	switch decision.Decision {
	case "approve":
		to = model.ActionApproved
	case "reject":
		to = model.ActionRejected
	default:
		return eris.Errorf("orchestrate: unknown decision %q", decision.Decision)
	}

	return o.transition(ctx, decision.ActionID, model.ActionPendingReview, to, decision.Actor, decision.Rationale)
}

// Apply marks an approved action as carried out downstream.
func (o *Orchestrator) Apply(ctx context.Context, actionID, actor string) error {
	return o.transition(ctx, actionID, model.ActionApproved, model.ActionApplied, actor, "downstream action completed")
}

// Cancel revokes an action that has not yet been decided. Cancelling
// after approval is an error, never a silent success.
func (o *Orchestrator) Cancel(ctx context.Context, actionID, actor, rationale string) error {
	action, err := o.store.GetAction(ctx, actionID)
	if err != nil {
		return err
	}
	if !CanTransition(action.State, model.ActionCancelled) {
		return eris.Wrapf(ErrInvalidTransition, "cancel from %s", action.State)
	}
	return o.transition(ctx, actionID, action.State, model.ActionCancelled, actor, rationale)
}

func (o *Orchestrator) transition(ctx context.Context, actionID string, from, to model.ActionState, actor, rationale string) error {
	if !CanTransition(from, to) {
		return eris.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	event := model.ActionEvent{
		ID:        uuid.NewString(),
		ActionID:  actionID,
		FromState: from,
		ToState:   to,
		Actor:     actor,
		Rationale: rationale,
		CreatedAt: o.now().UTC(),
	}
	return o.store.TransitionAction(ctx, actionID, from, to, event)
}

// Escalate re-notifies reviewers about pending actions older than the
// configured escalation age. State is not changed.
func (o *Orchestrator) Escalate(ctx context.Context) ([]model.ProposedAction, error) {
	cutoff := o.now().UTC().Add(-o.cfg.EscalationAge())
	stale, err := o.store.ListStalePending(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	for _, action := range stale {
		zap.L().Warn("orchestrate: pending review overdue",
			zap.String("action_id", action.ID),
			zap.String("category", action.Recommendation.Code),
			zap.String("priority", string(action.Recommendation.Priority)),
			zap.Time("pending_since", action.UpdatedAt))
		if err := o.store.MarkNotified(ctx, action.ID, o.now().UTC()); err != nil {
			return stale, err
		}
	}
	return stale, nil
}
