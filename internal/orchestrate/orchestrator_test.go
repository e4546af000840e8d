package orchestrate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risk-sentinel/sentinel-cli/internal/config"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
	"github.com/risk-sentinel/sentinel-cli/internal/store"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, config.OrchestrateConfig{EscalationAgeHours: 72}), st
}

func testRecommendation() model.Recommendation {
	return model.Recommendation{
		TaxonomyID:  model.TaxonomyMIT,
		Code:        model.MITMaliciousActors,
		Priority:    model.PriorityHigh,
		Action:      "Document misuse scenarios.",
		AdjustedBSI: 0.82,
		IncidentPct: 22.4,
	}
}

func proposeOne(t *testing.T, o *Orchestrator) model.ProposedAction {
	t.Helper()
	actions, err := o.Propose(context.Background(), "run-1", []model.Recommendation{testRecommendation()})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	return actions[0]
}

func TestCanTransition_Exhaustive(t *testing.T) {
	allowed := map[model.ActionState]map[model.ActionState]bool{
		model.ActionDetected:      {model.ActionProposed: true},
		model.ActionProposed:      {model.ActionPendingReview: true, model.ActionCancelled: true},
		model.ActionPendingReview: {model.ActionApproved: true, model.ActionRejected: true, model.ActionCancelled: true},
		model.ActionApproved:      {model.ActionApplied: true},
	}

	for _, from := range model.AllActionStates() {
		for _, to := range model.AllActionStates() {
			want := allowed[from][to]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range model.AllActionStates() {
		if !from.Terminal() {
			continue
		}
		for _, to := range model.AllActionStates() {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestPropose_EnqueuesForHumanReview(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	action := proposeOne(t, o)
	assert.Equal(t, model.ActionPendingReview, action.State)

	stored, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionPendingReview, stored.State)

	// Both automatic hops are in the audit trail.
	events, err := st.ListActionEvents(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, model.ActionDetected, events[0].FromState)
	assert.Equal(t, model.ActionProposed, events[0].ToState)
	assert.Equal(t, model.ActionProposed, events[1].FromState)
	assert.Equal(t, model.ActionPendingReview, events[1].ToState)
	assert.Equal(t, SystemActor, events[0].Actor)
}

func TestDecide_Approve(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	action := proposeOne(t, o)

	err := o.Decide(ctx, model.DecisionEvent{
		ActionID:  action.ID,
		Decision:  "approve",
		Actor:     "reviewer@example.com",
		Rationale: "matches incident data",
	})
	require.NoError(t, err)

	stored, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionApproved, stored.State)

	events, err := st.ListActionEvents(ctx, action.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, "reviewer@example.com", last.Actor)
	assert.Equal(t, "matches incident data", last.Rationale)
}

func TestDecide_Reject(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	action := proposeOne(t, o)

	require.NoError(t, o.Decide(ctx, model.DecisionEvent{
		ActionID: action.ID, Decision: "reject",
		Actor: "reviewer@example.com", Rationale: "duplicate of existing coverage",
	}))

	stored, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionRejected, stored.State)
}

func TestDecide_RequiresActorAndRationale(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	action := proposeOne(t, o)

	err := o.Decide(ctx, model.DecisionEvent{ActionID: action.ID, Decision: "approve", Rationale: "ok"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actor")

	err = o.Decide(ctx, model.DecisionEvent{ActionID: action.ID, Decision: "approve", Actor: "r", Rationale: "  "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rationale")
}

func TestDecide_UnknownDecision(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	action := proposeOne(t, o)

	err := o.Decide(context.Background(), model.DecisionEvent{
		ActionID: action.ID, Decision: "maybe", Actor: "r", Rationale: "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown decision")
}

func TestDecide_DoubleApproveLosesRace(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	action := proposeOne(t, o)

	decision := model.DecisionEvent{
		ActionID: action.ID, Decision: "approve",
		Actor: "reviewer@example.com", Rationale: "first",
	}
	require.NoError(t, o.Decide(ctx, decision))

	err := o.Decide(ctx, decision)
	assert.ErrorIs(t, err, store.ErrStaleTransition)
}

func TestApply_OnlyFromApproved(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	action := proposeOne(t, o)

	// Applying a pending action skips human review and must fail.
	err := o.Apply(ctx, action.ID, SystemActor)
	assert.ErrorIs(t, err, store.ErrStaleTransition)

	require.NoError(t, o.Decide(ctx, model.DecisionEvent{
		ActionID: action.ID, Decision: "approve", Actor: "r", Rationale: "ok",
	}))
	require.NoError(t, o.Apply(ctx, action.ID, SystemActor))

	stored, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionApplied, stored.State)
}

func TestCancel_PendingAllowed(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	action := proposeOne(t, o)

	require.NoError(t, o.Cancel(ctx, action.ID, "reviewer@example.com", "superseded by new run"))

	stored, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCancelled, stored.State)
}

func TestCancel_AfterApprovalFails(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()
	action := proposeOne(t, o)

	require.NoError(t, o.Decide(ctx, model.DecisionEvent{
		ActionID: action.ID, Decision: "approve", Actor: "r", Rationale: "ok",
	}))

	err := o.Cancel(ctx, action.ID, "reviewer@example.com", "changed my mind")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// State untouched.
	stored, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionApproved, stored.State)
}

func TestEscalate_RenotifiesStalePending(t *testing.T) {
	o, st := newTestOrchestrator(t)
	ctx := context.Background()

	// Propose with a clock 100 hours in the past, then escalate at the
	// real present.
	past := time.Now().UTC().Add(-100 * time.Hour)
	o.now = func() time.Time { return past }
	action := proposeOne(t, o)
	o.now = time.Now

	stale, err := o.Escalate(ctx)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, action.ID, stale[0].ID)

	stored, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionPendingReview, stored.State)
	assert.False(t, stored.LastNotifiedAt.IsZero())
}

func TestEscalate_FreshPendingNotIncluded(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	proposeOne(t, o)

	stale, err := o.Escalate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stale)
}
