// Package store persists the pipeline's durable state: raw statements,
// normalized risks, canonical entities, analysis runs, compliance
// findings, and the proposed-action lifecycle.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// ErrStaleTransition is returned when a compare-and-swap action
// transition loses to a concurrent writer: the row exists but is no
// longer in the expected state.
var ErrStaleTransition = eris.New("store: action not in expected state")

// ErrNotFound is returned for lookups of ids that do not exist.
var ErrNotFound = eris.New("store: not found")

// StatementFilter specifies criteria for listing raw statements.
type StatementFilter struct {
	SourceType model.SourceType `json:"source_type,omitempty"`
	ModelType  string           `json:"model_type,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Statements. Upsert is idempotent on (source_id, origin_ref);
	// re-ingesting a batch returns the number of rows written without
	// duplicating statements.
	UpsertStatements(ctx context.Context, statements []model.RawRiskStatement) (int, error)
	ListStatements(ctx context.Context, filter StatementFilter) ([]model.RawRiskStatement, error)

	// Normalized risks. An override is a new record superseding the
	// original; originals are never deleted.
	SaveRisks(ctx context.Context, risks []model.NormalizedRisk) error
	ListCurrentRisks(ctx context.Context) ([]model.NormalizedRisk, error)
	ListReviewQueue(ctx context.Context) ([]model.NormalizedRisk, error)
	SaveOverride(ctx context.Context, override model.NormalizedRisk) error

	// Canonical entities. Each dedup pass replaces the previous set.
	ReplaceEntities(ctx context.Context, entities []model.CanonicalRiskEntity) error
	ListEntities(ctx context.Context) ([]model.CanonicalRiskEntity, error)

	// Analysis runs.
	SaveRun(ctx context.Context, run model.AnalysisRun) error
	GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error)
	LatestRun(ctx context.Context) (*model.AnalysisRun, error)

	// Compliance findings, append-only.
	SaveFindings(ctx context.Context, findings []model.ComplianceFinding) error
	ListFindings(ctx context.Context, frameworkID string) ([]model.ComplianceFinding, error)

	// Proposed actions. TransitionAction is a compare-and-swap on the
	// current state and records the event in the same transaction; a
	// lost race returns ErrStaleTransition and leaves state unchanged.
	CreateAction(ctx context.Context, action model.ProposedAction) error
	GetAction(ctx context.Context, actionID string) (*model.ProposedAction, error)
	ListActions(ctx context.Context, states ...model.ActionState) ([]model.ProposedAction, error)
	TransitionAction(ctx context.Context, actionID string, from, to model.ActionState, event model.ActionEvent) error
	ListActionEvents(ctx context.Context, actionID string) ([]model.ActionEvent, error)
	ListStalePending(ctx context.Context, olderThan time.Time) ([]model.ProposedAction, error)
	MarkNotified(ctx context.Context, actionID string, at time.Time) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
