package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testStatement(sourceID, originRef string) model.RawRiskStatement {
	return model.RawRiskStatement{
		ID:         uuid.NewString(),
		SourceID:   sourceID,
		SourceType: model.SourceDocumentation,
		Text:       "model leaks training data",
		OriginRef:  originRef,
		ModelType:  "frontier",
		Timestamp:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testRisk(statementID string) model.NormalizedRisk {
	return model.NormalizedRisk{
		ID:          uuid.NewString(),
		StatementID: statementID,
		SourceType:  model.SourceDocumentation,
		ModelType:   "frontier",
		Timestamp:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Assignments: []model.CategoryAssignment{{
			TaxonomyID: model.TaxonomyMIT,
			Code:       model.MITPrivacySecurity,
			Confidence: 0.8,
		}},
		Method:    model.MethodRule,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC),
	}
}

// --- Statements ---

func TestSQLite_UpsertStatements_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	batch := []model.RawRiskStatement{
		testStatement("model-card-v1", "section-4"),
		testStatement("model-card-v1", "section-5"),
	}
	n, err := st.UpsertStatements(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-ingesting the same batch writes nothing new.
	n, err = st.UpsertStatements(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	all, err := st.ListStatements(ctx, StatementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_ListStatements_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	incident := testStatement("incident-db", "case-17")
	incident.SourceType = model.SourceIncident
	incident.ModelType = "open_weight"
	_, err := st.UpsertStatements(ctx, []model.RawRiskStatement{
		testStatement("model-card-v1", "section-4"),
		incident,
	})
	require.NoError(t, err)

	docs, err := st.ListStatements(ctx, StatementFilter{SourceType: model.SourceDocumentation})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "model-card-v1", docs[0].SourceID)

	frontier, err := st.ListStatements(ctx, StatementFilter{ModelType: "open_weight"})
	require.NoError(t, err)
	require.Len(t, frontier, 1)
	assert.Equal(t, model.SourceIncident, frontier[0].SourceType)
}

// --- Risks ---

func TestSQLite_SaveAndListRisks(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stmt := testStatement("model-card-v1", "section-4")
	_, err := st.UpsertStatements(ctx, []model.RawRiskStatement{stmt})
	require.NoError(t, err)

	risk := testRisk(stmt.ID)
	require.NoError(t, st.SaveRisks(ctx, []model.NormalizedRisk{risk}))

	risks, err := st.ListCurrentRisks(ctx)
	require.NoError(t, err)
	require.Len(t, risks, 1)
	assert.Equal(t, risk.ID, risks[0].ID)
	assert.Equal(t, risk.Assignments, risks[0].Assignments)
	assert.Equal(t, model.MethodRule, risks[0].Method)
}

func TestSQLite_ReviewQueue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stmt := testStatement("model-card-v1", "section-4")
	_, err := st.UpsertStatements(ctx, []model.RawRiskStatement{stmt})
	require.NoError(t, err)

	clean := testRisk(stmt.ID)
	flagged := testRisk(stmt.ID)
	flagged.NeedsReview = true
	require.NoError(t, st.SaveRisks(ctx, []model.NormalizedRisk{clean, flagged}))

	queue, err := st.ListReviewQueue(ctx)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, flagged.ID, queue[0].ID)
}

func TestSQLite_SaveOverride_SupersedesOriginal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stmt := testStatement("model-card-v1", "section-4")
	_, err := st.UpsertStatements(ctx, []model.RawRiskStatement{stmt})
	require.NoError(t, err)

	original := testRisk(stmt.ID)
	original.NeedsReview = true
	require.NoError(t, st.SaveRisks(ctx, []model.NormalizedRisk{original}))

	override := testRisk(stmt.ID)
	override.Method = model.MethodHumanOverride
	override.SupersedesID = original.ID
	require.NoError(t, st.SaveOverride(ctx, override))

	current, err := st.ListCurrentRisks(ctx)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, override.ID, current[0].ID)

	// The override resolves the review item too.
	queue, err := st.ListReviewQueue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestSQLite_SaveOverride_MissingOriginal(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	stmt := testStatement("model-card-v1", "section-4")
	_, err := st.UpsertStatements(ctx, []model.RawRiskStatement{stmt})
	require.NoError(t, err)

	override := testRisk(stmt.ID)
	override.SupersedesID = "no-such-risk"
	err = st.SaveOverride(ctx, override)
	require.ErrorIs(t, err, ErrNotFound)

	// The failed override leaves no partial record behind.
	current, err := st.ListCurrentRisks(ctx)
	require.NoError(t, err)
	assert.Empty(t, current)
}

// --- Entities ---

func TestSQLite_ReplaceEntities(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := model.CanonicalRiskEntity{
		ClusterID:      uuid.NewString(),
		MemberIDs:      []string{"r1", "r2"},
		Representative: "model leaks training data",
		Assignments: []model.CategoryAssignment{{
			TaxonomyID: model.TaxonomyMIT, Code: model.MITPrivacySecurity, Confidence: 0.8,
		}},
		SourceCounts: map[model.SourceType]int{model.SourceDocumentation: 1, model.SourceIncident: 1},
		ModelTypes:   []string{"frontier"},
		CreatedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.ReplaceEntities(ctx, []model.CanonicalRiskEntity{first}))

	second := first
	second.ClusterID = uuid.NewString()
	second.MemberIDs = []string{"r3"}
	require.NoError(t, st.ReplaceEntities(ctx, []model.CanonicalRiskEntity{second}))

	entities, err := st.ListEntities(ctx)
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, second.ClusterID, entities[0].ClusterID)
	assert.Equal(t, []string{"r3"}, entities[0].MemberIDs)
	assert.Equal(t, 1, entities[0].SourceCounts[model.SourceIncident])
}

// --- Analysis runs ---

func TestSQLite_SaveAndGetRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := model.AnalysisRun{
		ID:          uuid.NewString(),
		Scope:       "model_type=frontier",
		GlobalBSI:   0.42,
		EntityCount: 7,
		Metrics: []model.BlindSpotMetric{{
			TaxonomyID: model.TaxonomyMIT, Code: model.MITMaliciousActors,
			DocumentedPct: 4.0, IncidentPct: 22.4, BSI: 0.82, AdjustedBSI: 0.82,
			HighRisk: true, TotalCount: 5,
			RunAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}},
		RunAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.SaveRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.GlobalBSI, got.GlobalBSI)
	require.Len(t, got.Metrics, 1)
	assert.Equal(t, model.MITMaliciousActors, got.Metrics[0].Code)
	assert.True(t, got.Metrics[0].HighRisk)
}

func TestSQLite_LatestRun(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.LatestRun(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	older := model.AnalysisRun{ID: uuid.NewString(), GlobalBSI: 0.1, Metrics: []model.BlindSpotMetric{},
		RunAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	newer := model.AnalysisRun{ID: uuid.NewString(), GlobalBSI: 0.2, Metrics: []model.BlindSpotMetric{},
		RunAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, st.SaveRun(ctx, older))
	require.NoError(t, st.SaveRun(ctx, newer))

	latest, err := st.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
}

// --- Findings ---

func TestSQLite_Findings_AppendOnly(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	finding := func(status model.FindingStatus) model.ComplianceFinding {
		return model.ComplianceFinding{
			ID:               uuid.NewString(),
			FrameworkID:      "eu_ai_act",
			FrameworkVersion: "2024.1",
			RuleID:           "eu-art9-risk-mgmt",
			SubjectID:        "model-x",
			Status:           status,
			EvidenceRefs:     []string{"c1"},
			CheckedAt:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	require.NoError(t, st.SaveFindings(ctx, []model.ComplianceFinding{finding(model.FindingFail)}))
	require.NoError(t, st.SaveFindings(ctx, []model.ComplianceFinding{finding(model.FindingPass)}))

	// Both evaluations survive as history.
	all, err := st.ListFindings(ctx, "eu_ai_act")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := st.ListFindings(ctx, "nist_ai_rmf")
	require.NoError(t, err)
	assert.Empty(t, other)
}

// --- Actions ---

func testAction(state model.ActionState) model.ProposedAction {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return model.ProposedAction{
		ID:    uuid.NewString(),
		RunID: "run-1",
		Recommendation: model.Recommendation{
			TaxonomyID:  model.TaxonomyMIT,
			Code:        model.MITMaliciousActors,
			Priority:    model.PriorityHigh,
			Action:      "Document misuse scenarios.",
			AdjustedBSI: 0.82,
		},
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLite_ActionLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	action := testAction(model.ActionPendingReview)
	require.NoError(t, st.CreateAction(ctx, action))

	event := model.ActionEvent{
		ID:        uuid.NewString(),
		ActionID:  action.ID,
		Actor:     "reviewer@example.com",
		Rationale: "confirmed against incident reports",
		CreatedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, st.TransitionAction(ctx, action.ID,
		model.ActionPendingReview, model.ActionApproved, event))

	got, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionApproved, got.State)
	// updated_at carries the event time, not the wall clock, so staleness
	// checks see when the transition logically happened.
	assert.True(t, got.UpdatedAt.Equal(event.CreatedAt))

	events, err := st.ListActionEvents(ctx, action.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "reviewer@example.com", events[0].Actor)
	assert.Equal(t, model.ActionPendingReview, events[0].FromState)
	assert.Equal(t, model.ActionApproved, events[0].ToState)
}

func TestSQLite_TransitionAction_StaleState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	action := testAction(model.ActionApproved)
	require.NoError(t, st.CreateAction(ctx, action))

	// A second approval attempt expects PENDING_HUMAN_REVIEW and loses.
	err := st.TransitionAction(ctx, action.ID,
		model.ActionPendingReview, model.ActionApproved,
		model.ActionEvent{ID: uuid.NewString(), ActionID: action.ID, Actor: "late", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrStaleTransition)

	// State unchanged, no event recorded.
	got, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ActionApproved, got.State)

	events, err := st.ListActionEvents(ctx, action.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSQLite_TransitionAction_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.TransitionAction(context.Background(), "no-such-action",
		model.ActionPendingReview, model.ActionApproved,
		model.ActionEvent{ID: uuid.NewString(), Actor: "x", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLite_ListActions_ByState(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	pending := testAction(model.ActionPendingReview)
	approved := testAction(model.ActionApproved)
	approved.CreatedAt = approved.CreatedAt.Add(time.Hour)
	approved.UpdatedAt = approved.CreatedAt
	require.NoError(t, st.CreateAction(ctx, pending))
	require.NoError(t, st.CreateAction(ctx, approved))

	got, err := st.ListActions(ctx, model.ActionPendingReview)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)

	all, err := st.ListActions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_StalePendingAndNotify(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	action := testAction(model.ActionPendingReview)
	require.NoError(t, st.CreateAction(ctx, action))

	stale, err := st.ListStalePending(ctx, action.UpdatedAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, stale, 1)

	notifiedAt := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.MarkNotified(ctx, action.ID, notifiedAt))

	got, err := st.GetAction(ctx, action.ID)
	require.NoError(t, err)
	assert.True(t, got.LastNotifiedAt.Equal(notifiedAt))

	// Anything updated after the cutoff is not stale.
	none, err := st.ListStalePending(ctx, action.UpdatedAt.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, none)
}
