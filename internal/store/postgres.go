package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/risk-sentinel/sentinel-cli/internal/db"
	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_action":        `SELECT id, run_id, recommendation, state, created_at, updated_at, last_notified_at FROM actions WHERE id = $1`,
	"transition_action": `UPDATE actions SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`,
	"insert_event":      `INSERT INTO action_events (id, action_id, from_state, to_state, actor, rationale, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_run":           `SELECT id, scope, global_bsi, entity_count, metrics, run_at FROM analysis_runs WHERE id = $1`,
	"latest_run":        `SELECT id, scope, global_bsi, entity_count, metrics, run_at FROM analysis_runs ORDER BY run_at DESC LIMIT 1`,
	"insert_finding":    `INSERT INTO findings (id, framework_id, framework_version, rule_id, subject_id, status, detail, evidence_refs, checked_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., bulk statement ingest).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS statements (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	source_type TEXT NOT NULL,
	text        TEXT NOT NULL,
	origin_ref  TEXT NOT NULL,
	model_type  TEXT,
	ts          TIMESTAMPTZ NOT NULL,
	UNIQUE(source_id, origin_ref)
);

CREATE TABLE IF NOT EXISTS risks (
	id            TEXT PRIMARY KEY,
	statement_id  TEXT NOT NULL REFERENCES statements(id),
	source_type   TEXT NOT NULL,
	model_type    TEXT,
	ts            TIMESTAMPTZ NOT NULL,
	assignments   JSONB NOT NULL,
	method        TEXT NOT NULL,
	needs_review  BOOLEAN NOT NULL DEFAULT false,
	supersedes_id TEXT,
	superseded    BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entities (
	cluster_id     TEXT PRIMARY KEY,
	member_ids     JSONB NOT NULL,
	representative TEXT NOT NULL,
	assignments    JSONB NOT NULL,
	source_counts  JSONB NOT NULL,
	model_types    JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id           TEXT PRIMARY KEY,
	scope        TEXT,
	global_bsi   DOUBLE PRECISION NOT NULL,
	entity_count INTEGER NOT NULL,
	metrics      JSONB NOT NULL,
	run_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
	id                TEXT PRIMARY KEY,
	framework_id      TEXT NOT NULL,
	framework_version TEXT NOT NULL,
	rule_id           TEXT NOT NULL,
	subject_id        TEXT NOT NULL,
	status            TEXT NOT NULL,
	detail            TEXT,
	evidence_refs     JSONB,
	checked_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	id               TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	recommendation   JSONB NOT NULL,
	state            TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	last_notified_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS action_events (
	id         TEXT PRIMARY KEY,
	action_id  TEXT NOT NULL REFERENCES actions(id),
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	actor      TEXT NOT NULL,
	rationale  TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_statements_source_type ON statements(source_type);
CREATE INDEX IF NOT EXISTS idx_risks_statement_id ON risks(statement_id);
CREATE INDEX IF NOT EXISTS idx_risks_review ON risks(needs_review, superseded);
CREATE INDEX IF NOT EXISTS idx_findings_framework ON findings(framework_id);
CREATE INDEX IF NOT EXISTS idx_actions_state ON actions(state);
CREATE INDEX IF NOT EXISTS idx_action_events_action_id ON action_events(action_id);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_run_at ON analysis_runs(run_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// UpsertStatements bulk-upserts via a temp table; the conflict target
// (source_id, origin_ref) makes re-ingestion idempotent.
func (s *PostgresStore) UpsertStatements(ctx context.Context, statements []model.RawRiskStatement) (int, error) {
	rows := make([][]any, 0, len(statements))
	for _, st := range statements {
		rows = append(rows, []any{st.ID, st.SourceID, string(st.SourceType), st.Text, st.OriginRef, st.ModelType, st.Timestamp.UTC()})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "statements",
		Columns:      []string{"id", "source_id", "source_type", "text", "origin_ref", "model_type", "ts"},
		ConflictKeys: []string{"source_id", "origin_ref"},
		UpdateCols:   []string{"text", "model_type", "ts"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert statements")
	}
	return int(n), nil
}

func (s *PostgresStore) ListStatements(ctx context.Context, filter StatementFilter) ([]model.RawRiskStatement, error) {
	query := `SELECT id, source_id, source_type, text, origin_ref, model_type, ts FROM statements WHERE true`
	args := []any{}
	argIdx := 1

	if filter.SourceType != "" {
		query += fmt.Sprintf(` AND source_type = $%d`, argIdx)
		args = append(args, string(filter.SourceType))
		argIdx++
	}
	if filter.ModelType != "" {
		query += fmt.Sprintf(` AND model_type = $%d`, argIdx)
		args = append(args, filter.ModelType)
		argIdx++
	}
	query += ` ORDER BY ts, source_type, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list statements")
	}
	defer rows.Close()

	var out []model.RawRiskStatement
	for rows.Next() {
		var st model.RawRiskStatement
		var modelType *string
		if err := rows.Scan(&st.ID, &st.SourceID, &st.SourceType, &st.Text, &st.OriginRef, &modelType, &st.Timestamp); err != nil {
			return nil, eris.Wrap(err, "postgres: scan statement")
		}
		if modelType != nil {
			st.ModelType = *modelType
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list statements iterate")
}

func (s *PostgresStore) SaveRisks(ctx context.Context, risks []model.NormalizedRisk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save risks")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, r := range risks {
		if err := insertRiskPostgres(ctx, tx, r); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save risks")
}

func insertRiskPostgres(ctx context.Context, tx pgx.Tx, r model.NormalizedRisk) error {
	assignmentsJSON, err := json.Marshal(r.Assignments)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal assignments")
	}
	var supersedes *string
	if r.SupersedesID != "" {
		supersedes = &r.SupersedesID
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO risks (id, statement_id, source_type, model_type, ts, assignments, method, needs_review, supersedes_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.StatementID, string(r.SourceType), r.ModelType, r.Timestamp.UTC(),
		assignmentsJSON, string(r.Method), r.NeedsReview, supersedes, r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert risk %s", r.ID)
}

func (s *PostgresStore) ListCurrentRisks(ctx context.Context) ([]model.NormalizedRisk, error) {
	return s.listRisks(ctx, `WHERE NOT superseded`)
}

func (s *PostgresStore) ListReviewQueue(ctx context.Context) ([]model.NormalizedRisk, error) {
	return s.listRisks(ctx, `WHERE NOT superseded AND needs_review`)
}

func (s *PostgresStore) listRisks(ctx context.Context, where string) ([]model.NormalizedRisk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, statement_id, source_type, model_type, ts, assignments, method, needs_review, supersedes_id, created_at
		 FROM risks `+where+` ORDER BY ts, source_type, statement_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list risks")
	}
	defer rows.Close()

	var out []model.NormalizedRisk
	for rows.Next() {
		var r model.NormalizedRisk
		var modelType, supersedes *string
		var assignmentsJSON []byte
		if err := rows.Scan(&r.ID, &r.StatementID, &r.SourceType, &modelType, &r.Timestamp,
			&assignmentsJSON, &r.Method, &r.NeedsReview, &supersedes, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan risk")
		}
		if modelType != nil {
			r.ModelType = *modelType
		}
		if supersedes != nil {
			r.SupersedesID = *supersedes
		}
		if err := json.Unmarshal(assignmentsJSON, &r.Assignments); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal assignments")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list risks iterate")
}

func (s *PostgresStore) SaveOverride(ctx context.Context, override model.NormalizedRisk) error {
	if override.SupersedesID == "" {
		return eris.New("postgres: override missing supersedes id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save override")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `UPDATE risks SET superseded = true WHERE id = $1`, override.SupersedesID)
	if err != nil {
		return eris.Wrapf(err, "postgres: supersede risk %s", override.SupersedesID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: supersede risk %s", override.SupersedesID)
	}
	if err := insertRiskPostgres(ctx, tx, override); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save override")
}

func (s *PostgresStore) ReplaceEntities(ctx context.Context, entities []model.CanonicalRiskEntity) error {
	rows := make([][]any, 0, len(entities))
	for _, e := range entities {
		memberJSON, err := json.Marshal(e.MemberIDs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal member ids")
		}
		assignmentsJSON, err := json.Marshal(e.Assignments)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal entity assignments")
		}
		countsJSON, err := json.Marshal(e.SourceCounts)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal source counts")
		}
		typesJSON, err := json.Marshal(e.ModelTypes)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal model types")
		}
		rows = append(rows, []any{e.ClusterID, memberJSON, e.Representative, assignmentsJSON, countsJSON, typesJSON, e.CreatedAt.UTC()})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin replace entities")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM entities`); err != nil {
		return eris.Wrap(err, "postgres: clear entities")
	}
	// A full replace has no conflict targets, so the COPY protocol beats
	// per-row INSERTs on large corpora.
	if _, err := db.CopyFrom(ctx, tx, "entities",
		[]string{"cluster_id", "member_ids", "representative", "assignments", "source_counts", "model_types", "created_at"},
		rows); err != nil {
		return eris.Wrap(err, "postgres: copy entities")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit replace entities")
}

func (s *PostgresStore) ListEntities(ctx context.Context) ([]model.CanonicalRiskEntity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cluster_id, member_ids, representative, assignments, source_counts, model_types, created_at
		 FROM entities ORDER BY cluster_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var out []model.CanonicalRiskEntity
	for rows.Next() {
		var e model.CanonicalRiskEntity
		var memberJSON, assignmentsJSON, countsJSON, typesJSON []byte
		if err := rows.Scan(&e.ClusterID, &memberJSON, &e.Representative, &assignmentsJSON, &countsJSON, &typesJSON, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		if err := json.Unmarshal(memberJSON, &e.MemberIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal member ids")
		}
		if err := json.Unmarshal(assignmentsJSON, &e.Assignments); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal entity assignments")
		}
		if err := json.Unmarshal(countsJSON, &e.SourceCounts); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal source counts")
		}
		if len(typesJSON) > 0 {
			if err := json.Unmarshal(typesJSON, &e.ModelTypes); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal model types")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list entities iterate")
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.AnalysisRun) error {
	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal metrics")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, scope, global_bsi, entity_count, metrics, run_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.Scope, run.GlobalBSI, run.EntityCount, metricsJSON, run.RunAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, scope, global_bsi, entity_count, metrics, run_at FROM analysis_runs WHERE id = $1`, runID)
	return scanRunPostgres(row)
}

func (s *PostgresStore) LatestRun(ctx context.Context) (*model.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, scope, global_bsi, entity_count, metrics, run_at FROM analysis_runs ORDER BY run_at DESC LIMIT 1`)
	return scanRunPostgres(row)
}

func scanRunPostgres(row pgx.Row) (*model.AnalysisRun, error) {
	var r model.AnalysisRun
	var scope *string
	var metricsJSON []byte
	err := row.Scan(&r.ID, &scope, &r.GlobalBSI, &r.EntityCount, &metricsJSON, &r.RunAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan run")
	}
	if scope != nil {
		r.Scope = *scope
	}
	if err := json.Unmarshal(metricsJSON, &r.Metrics); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal metrics")
	}
	return &r, nil
}

func (s *PostgresStore) SaveFindings(ctx context.Context, findings []model.ComplianceFinding) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save findings")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, f := range findings {
		refsJSON, err := json.Marshal(f.EvidenceRefs)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal evidence refs")
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO findings (id, framework_id, framework_version, rule_id, subject_id, status, detail, evidence_refs, checked_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			f.ID, f.FrameworkID, f.FrameworkVersion, f.RuleID, f.SubjectID, string(f.Status), f.Detail, refsJSON, f.CheckedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert finding %s", f.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save findings")
}

func (s *PostgresStore) ListFindings(ctx context.Context, frameworkID string) ([]model.ComplianceFinding, error) {
	query := `SELECT id, framework_id, framework_version, rule_id, subject_id, status, detail, evidence_refs, checked_at FROM findings`
	var args []any
	if frameworkID != "" {
		query += ` WHERE framework_id = $1`
		args = append(args, frameworkID)
	}
	query += ` ORDER BY checked_at DESC, rule_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var out []model.ComplianceFinding
	for rows.Next() {
		var f model.ComplianceFinding
		var detail *string
		var refsJSON []byte
		if err := rows.Scan(&f.ID, &f.FrameworkID, &f.FrameworkVersion, &f.RuleID, &f.SubjectID, &f.Status, &detail, &refsJSON, &f.CheckedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan finding")
		}
		if detail != nil {
			f.Detail = *detail
		}
		if len(refsJSON) > 0 {
			if err := json.Unmarshal(refsJSON, &f.EvidenceRefs); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal evidence refs")
			}
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list findings iterate")
}

func (s *PostgresStore) CreateAction(ctx context.Context, action model.ProposedAction) error {
	recJSON, err := json.Marshal(action.Recommendation)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal recommendation")
	}
	var notified *time.Time
	if !action.LastNotifiedAt.IsZero() {
		t := action.LastNotifiedAt.UTC()
		notified = &t
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO actions (id, run_id, recommendation, state, created_at, updated_at, last_notified_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		action.ID, action.RunID, recJSON, string(action.State),
		action.CreatedAt.UTC(), action.UpdatedAt.UTC(), notified,
	)
	return eris.Wrapf(err, "postgres: insert action %s", action.ID)
}

func (s *PostgresStore) GetAction(ctx context.Context, actionID string) (*model.ProposedAction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, run_id, recommendation, state, created_at, updated_at, last_notified_at FROM actions WHERE id = $1`,
		actionID)

	a, err := scanActionPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get action %s", actionID)
	}
	return a, nil
}

func scanActionPostgres(row pgx.Row) (*model.ProposedAction, error) {
	var a model.ProposedAction
	var recJSON []byte
	var notified *time.Time
	if err := row.Scan(&a.ID, &a.RunID, &recJSON, &a.State, &a.CreatedAt, &a.UpdatedAt, &notified); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(recJSON, &a.Recommendation); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal recommendation")
	}
	if notified != nil {
		a.LastNotifiedAt = *notified
	}
	return &a, nil
}

func (s *PostgresStore) ListActions(ctx context.Context, states ...model.ActionState) ([]model.ProposedAction, error) {
	query := `SELECT id, run_id, recommendation, state, created_at, updated_at, last_notified_at FROM actions`
	var args []any
	if len(states) > 0 {
		stateStrs := make([]string, len(states))
		for i, st := range states {
			stateStrs[i] = string(st)
		}
		query += ` WHERE state = ANY($1)`
		args = append(args, stateStrs)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list actions")
	}
	defer rows.Close()
	return scanActionsPostgres(rows)
}

func (s *PostgresStore) ListStalePending(ctx context.Context, olderThan time.Time) ([]model.ProposedAction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, recommendation, state, created_at, updated_at, last_notified_at FROM actions
		 WHERE state = $1 AND updated_at <= $2 ORDER BY updated_at, id`,
		string(model.ActionPendingReview), olderThan.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list stale pending")
	}
	defer rows.Close()
	return scanActionsPostgres(rows)
}

func scanActionsPostgres(rows pgx.Rows) ([]model.ProposedAction, error) {
	var out []model.ProposedAction
	for rows.Next() {
		a, err := scanActionPostgres(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan action")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list actions iterate")
}

// TransitionAction is a compare-and-swap on the current state. The
// UPDATE's WHERE clause carries the expected state, so of two
// concurrent decisions exactly one sees a row updated.
func (s *PostgresStore) TransitionAction(ctx context.Context, actionID string, from, to model.ActionState, event model.ActionEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin transition")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE actions SET state = $1, updated_at = $2 WHERE id = $3 AND state = $4`,
		string(to), event.CreatedAt.UTC(), actionID, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: transition action %s", actionID)
	}
	if tag.RowsAffected() == 0 {
		var exists int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM actions WHERE id = $1`, actionID).Scan(&exists); err != nil {
			return eris.Wrapf(err, "postgres: check action %s", actionID)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrStaleTransition
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO action_events (id, action_id, from_state, to_state, actor, rationale, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID, actionID, string(from), string(to), event.Actor, event.Rationale, event.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert event for action %s", actionID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit transition")
}

func (s *PostgresStore) ListActionEvents(ctx context.Context, actionID string) ([]model.ActionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, action_id, from_state, to_state, actor, rationale, created_at FROM action_events
		 WHERE action_id = $1 ORDER BY created_at, id`, actionID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list action events")
	}
	defer rows.Close()

	var out []model.ActionEvent
	for rows.Next() {
		var e model.ActionEvent
		var rationale *string
		if err := rows.Scan(&e.ID, &e.ActionID, &e.FromState, &e.ToState, &e.Actor, &rationale, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan action event")
		}
		if rationale != nil {
			e.Rationale = *rationale
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list action events iterate")
}

func (s *PostgresStore) MarkNotified(ctx context.Context, actionID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE actions SET last_notified_at = $1 WHERE id = $2`, at.UTC(), actionID)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark notified %s", actionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("action not found: %s", actionID)
	}
	return nil
}
