package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/risk-sentinel/sentinel-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS statements (
	id          TEXT PRIMARY KEY,
	source_id   TEXT NOT NULL,
	source_type TEXT NOT NULL,
	text        TEXT NOT NULL,
	origin_ref  TEXT NOT NULL,
	model_type  TEXT,
	ts          DATETIME NOT NULL,
	UNIQUE(source_id, origin_ref)
);

CREATE TABLE IF NOT EXISTS risks (
	id            TEXT PRIMARY KEY,
	statement_id  TEXT NOT NULL REFERENCES statements(id),
	source_type   TEXT NOT NULL,
	model_type    TEXT,
	ts            DATETIME NOT NULL,
	assignments   TEXT NOT NULL,
	method        TEXT NOT NULL,
	needs_review  INTEGER NOT NULL DEFAULT 0,
	supersedes_id TEXT,
	superseded    INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS entities (
	cluster_id     TEXT PRIMARY KEY,
	member_ids     TEXT NOT NULL,
	representative TEXT NOT NULL,
	assignments    TEXT NOT NULL,
	source_counts  TEXT NOT NULL,
	model_types    TEXT,
	created_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id           TEXT PRIMARY KEY,
	scope        TEXT,
	global_bsi   REAL NOT NULL,
	entity_count INTEGER NOT NULL,
	metrics      TEXT NOT NULL,
	run_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
	id                TEXT PRIMARY KEY,
	framework_id      TEXT NOT NULL,
	framework_version TEXT NOT NULL,
	rule_id           TEXT NOT NULL,
	subject_id        TEXT NOT NULL,
	status            TEXT NOT NULL,
	detail            TEXT,
	evidence_refs     TEXT,
	checked_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS actions (
	id               TEXT PRIMARY KEY,
	run_id           TEXT NOT NULL,
	recommendation   TEXT NOT NULL,
	state            TEXT NOT NULL,
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL,
	last_notified_at DATETIME
);

CREATE TABLE IF NOT EXISTS action_events (
	id         TEXT PRIMARY KEY,
	action_id  TEXT NOT NULL REFERENCES actions(id),
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	actor      TEXT NOT NULL,
	rationale  TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_statements_source_type ON statements(source_type);
CREATE INDEX IF NOT EXISTS idx_risks_statement_id ON risks(statement_id);
CREATE INDEX IF NOT EXISTS idx_risks_review ON risks(needs_review, superseded);
CREATE INDEX IF NOT EXISTS idx_findings_framework ON findings(framework_id);
CREATE INDEX IF NOT EXISTS idx_actions_state ON actions(state);
CREATE INDEX IF NOT EXISTS idx_action_events_action_id ON action_events(action_id);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_run_at ON analysis_runs(run_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertStatements(ctx context.Context, statements []model.RawRiskStatement) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert statements")
	}
	defer tx.Rollback() //nolint:errcheck

	var written int
	for _, st := range statements {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO statements (id, source_id, source_type, text, origin_ref, model_type, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(source_id, origin_ref) DO NOTHING`,
			st.ID, st.SourceID, string(st.SourceType), st.Text, st.OriginRef, st.ModelType, st.Timestamp.UTC(),
		)
		if err != nil {
			return written, eris.Wrapf(err, "sqlite: upsert statement %s", st.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return written, eris.Wrap(err, "sqlite: rows affected")
		}
		written += int(n)
	}
	return written, eris.Wrap(tx.Commit(), "sqlite: commit upsert statements")
}

func (s *SQLiteStore) ListStatements(ctx context.Context, filter StatementFilter) ([]model.RawRiskStatement, error) {
	query := `SELECT id, source_id, source_type, text, origin_ref, model_type, ts FROM statements WHERE 1=1`
	var args []any

	if filter.SourceType != "" {
		query += ` AND source_type = ?`
		args = append(args, string(filter.SourceType))
	}
	if filter.ModelType != "" {
		query += ` AND model_type = ?`
		args = append(args, filter.ModelType)
	}
	query += ` ORDER BY ts, source_type, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list statements")
	}
	defer rows.Close()

	var out []model.RawRiskStatement
	for rows.Next() {
		var st model.RawRiskStatement
		var modelType sql.NullString
		if err := rows.Scan(&st.ID, &st.SourceID, &st.SourceType, &st.Text, &st.OriginRef, &modelType, &st.Timestamp); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan statement")
		}
		st.ModelType = modelType.String
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list statements iterate")
}

func (s *SQLiteStore) SaveRisks(ctx context.Context, risks []model.NormalizedRisk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save risks")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, r := range risks {
		if err := insertRiskSQLite(ctx, tx, r); err != nil {
			return err
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save risks")
}

func insertRiskSQLite(ctx context.Context, tx *sql.Tx, r model.NormalizedRisk) error {
	assignmentsJSON, err := json.Marshal(r.Assignments)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal assignments")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO risks (id, statement_id, source_type, model_type, ts, assignments, method, needs_review, supersedes_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StatementID, string(r.SourceType), r.ModelType, r.Timestamp.UTC(),
		string(assignmentsJSON), string(r.Method), r.NeedsReview, nullable(r.SupersedesID), r.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert risk %s", r.ID)
}

func (s *SQLiteStore) ListCurrentRisks(ctx context.Context) ([]model.NormalizedRisk, error) {
	return s.listRisks(ctx, `WHERE superseded = 0`)
}

func (s *SQLiteStore) ListReviewQueue(ctx context.Context) ([]model.NormalizedRisk, error) {
	return s.listRisks(ctx, `WHERE superseded = 0 AND needs_review = 1`)
}

func (s *SQLiteStore) listRisks(ctx context.Context, where string) ([]model.NormalizedRisk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, statement_id, source_type, model_type, ts, assignments, method, needs_review, supersedes_id, created_at
		 FROM risks `+where+` ORDER BY ts, source_type, statement_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list risks")
	}
	defer rows.Close()

	var out []model.NormalizedRisk
	for rows.Next() {
		var r model.NormalizedRisk
		var modelType, supersedes sql.NullString
		var assignmentsJSON string
		if err := rows.Scan(&r.ID, &r.StatementID, &r.SourceType, &modelType, &r.Timestamp,
			&assignmentsJSON, &r.Method, &r.NeedsReview, &supersedes, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan risk")
		}
		r.ModelType = modelType.String
		r.SupersedesID = supersedes.String
		if err := json.Unmarshal([]byte(assignmentsJSON), &r.Assignments); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal assignments")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list risks iterate")
}

// SaveOverride marks the original superseded and inserts the override
// record in one transaction. The supersede runs first so a missing
// original reports ErrNotFound rather than a constraint failure from
// the insert.
func (s *SQLiteStore) SaveOverride(ctx context.Context, override model.NormalizedRisk) error {
	if override.SupersedesID == "" {
		return eris.New("sqlite: override missing supersedes id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save override")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `UPDATE risks SET superseded = 1 WHERE id = ?`, override.SupersedesID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: supersede risk %s", override.SupersedesID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: supersede risk %s", override.SupersedesID)
	}
	if err := insertRiskSQLite(ctx, tx, override); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save override")
}

func (s *SQLiteStore) ReplaceEntities(ctx context.Context, entities []model.CanonicalRiskEntity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin replace entities")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM entities`); err != nil {
		return eris.Wrap(err, "sqlite: clear entities")
	}
	for _, e := range entities {
		memberJSON, err := json.Marshal(e.MemberIDs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal member ids")
		}
		assignmentsJSON, err := json.Marshal(e.Assignments)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal entity assignments")
		}
		countsJSON, err := json.Marshal(e.SourceCounts)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal source counts")
		}
		typesJSON, err := json.Marshal(e.ModelTypes)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal model types")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entities (cluster_id, member_ids, representative, assignments, source_counts, model_types, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ClusterID, string(memberJSON), e.Representative, string(assignmentsJSON),
			string(countsJSON), string(typesJSON), e.CreatedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert entity %s", e.ClusterID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit replace entities")
}

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]model.CanonicalRiskEntity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cluster_id, member_ids, representative, assignments, source_counts, model_types, created_at
		 FROM entities ORDER BY cluster_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var out []model.CanonicalRiskEntity
	for rows.Next() {
		var e model.CanonicalRiskEntity
		var memberJSON, assignmentsJSON, countsJSON string
		var typesJSON sql.NullString
		if err := rows.Scan(&e.ClusterID, &memberJSON, &e.Representative, &assignmentsJSON, &countsJSON, &typesJSON, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		if err := json.Unmarshal([]byte(memberJSON), &e.MemberIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal member ids")
		}
		if err := json.Unmarshal([]byte(assignmentsJSON), &e.Assignments); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal entity assignments")
		}
		if err := json.Unmarshal([]byte(countsJSON), &e.SourceCounts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal source counts")
		}
		if typesJSON.Valid {
			if err := json.Unmarshal([]byte(typesJSON.String), &e.ModelTypes); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal model types")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run model.AnalysisRun) error {
	metricsJSON, err := json.Marshal(run.Metrics)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metrics")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, scope, global_bsi, entity_count, metrics, run_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scope, run.GlobalBSI, run.EntityCount, string(metricsJSON), run.RunAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.AnalysisRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scope, global_bsi, entity_count, metrics, run_at FROM analysis_runs WHERE id = ?`, runID)
	return scanRunSQLite(row)
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (*model.AnalysisRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, scope, global_bsi, entity_count, metrics, run_at FROM analysis_runs ORDER BY run_at DESC LIMIT 1`)
	return scanRunSQLite(row)
}

func scanRunSQLite(row *sql.Row) (*model.AnalysisRun, error) {
	var r model.AnalysisRun
	var scope sql.NullString
	var metricsJSON string
	err := row.Scan(&r.ID, &scope, &r.GlobalBSI, &r.EntityCount, &metricsJSON, &r.RunAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Scope = scope.String
	if err := json.Unmarshal([]byte(metricsJSON), &r.Metrics); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal metrics")
	}
	return &r, nil
}

func (s *SQLiteStore) SaveFindings(ctx context.Context, findings []model.ComplianceFinding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save findings")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, f := range findings {
		refsJSON, err := json.Marshal(f.EvidenceRefs)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal evidence refs")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO findings (id, framework_id, framework_version, rule_id, subject_id, status, detail, evidence_refs, checked_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.FrameworkID, f.FrameworkVersion, f.RuleID, f.SubjectID, string(f.Status), f.Detail, string(refsJSON), f.CheckedAt.UTC(),
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert finding %s", f.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save findings")
}

func (s *SQLiteStore) ListFindings(ctx context.Context, frameworkID string) ([]model.ComplianceFinding, error) {
	query := `SELECT id, framework_id, framework_version, rule_id, subject_id, status, detail, evidence_refs, checked_at FROM findings`
	var args []any
	if frameworkID != "" {
		query += ` WHERE framework_id = ?`
		args = append(args, frameworkID)
	}
	query += ` ORDER BY checked_at DESC, rule_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close()

	var out []model.ComplianceFinding
	for rows.Next() {
		var f model.ComplianceFinding
		var detail, refsJSON sql.NullString
		if err := rows.Scan(&f.ID, &f.FrameworkID, &f.FrameworkVersion, &f.RuleID, &f.SubjectID, &f.Status, &detail, &refsJSON, &f.CheckedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan finding")
		}
		f.Detail = detail.String
		if refsJSON.Valid && refsJSON.String != "" {
			if err := json.Unmarshal([]byte(refsJSON.String), &f.EvidenceRefs); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal evidence refs")
			}
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list findings iterate")
}

func (s *SQLiteStore) CreateAction(ctx context.Context, action model.ProposedAction) error {
	recJSON, err := json.Marshal(action.Recommendation)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal recommendation")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO actions (id, run_id, recommendation, state, created_at, updated_at, last_notified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.RunID, string(recJSON), string(action.State),
		action.CreatedAt.UTC(), action.UpdatedAt.UTC(), nullableTime(action.LastNotifiedAt),
	)
	return eris.Wrapf(err, "sqlite: insert action %s", action.ID)
}

func (s *SQLiteStore) GetAction(ctx context.Context, actionID string) (*model.ProposedAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, recommendation, state, created_at, updated_at, last_notified_at FROM actions WHERE id = ?`,
		actionID)

	var a model.ProposedAction
	var recJSON string
	var notified sql.NullTime
	err := row.Scan(&a.ID, &a.RunID, &recJSON, &a.State, &a.CreatedAt, &a.UpdatedAt, &notified)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get action %s", actionID)
	}
	if err := json.Unmarshal([]byte(recJSON), &a.Recommendation); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal recommendation")
	}
	if notified.Valid {
		a.LastNotifiedAt = notified.Time
	}
	return &a, nil
}

func (s *SQLiteStore) ListActions(ctx context.Context, states ...model.ActionState) ([]model.ProposedAction, error) {
	query := `SELECT id, run_id, recommendation, state, created_at, updated_at, last_notified_at FROM actions`
	var args []any
	if len(states) > 0 {
		query += ` WHERE state IN (?` + repeatPlaceholder(len(states)-1) + `)`
		for _, st := range states {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list actions")
	}
	defer rows.Close()
	return scanActionsSQLite(rows)
}

func (s *SQLiteStore) ListStalePending(ctx context.Context, olderThan time.Time) ([]model.ProposedAction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, recommendation, state, created_at, updated_at, last_notified_at FROM actions
		 WHERE state = ? AND updated_at <= ? ORDER BY updated_at, id`,
		string(model.ActionPendingReview), olderThan.UTC())
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stale pending")
	}
	defer rows.Close()
	return scanActionsSQLite(rows)
}

func scanActionsSQLite(rows *sql.Rows) ([]model.ProposedAction, error) {
	var out []model.ProposedAction
	for rows.Next() {
		var a model.ProposedAction
		var recJSON string
		var notified sql.NullTime
		if err := rows.Scan(&a.ID, &a.RunID, &recJSON, &a.State, &a.CreatedAt, &a.UpdatedAt, &notified); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action")
		}
		if err := json.Unmarshal([]byte(recJSON), &a.Recommendation); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal recommendation")
		}
		if notified.Valid {
			a.LastNotifiedAt = notified.Time
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list actions iterate")
}

// TransitionAction moves an action between states with a
// compare-and-swap on the current state and records the event in the
// same transaction.
func (s *SQLiteStore) TransitionAction(ctx context.Context, actionID string, from, to model.ActionState, event model.ActionEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin transition")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE actions SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(to), event.CreatedAt.UTC(), actionID, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: transition action %s", actionID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM actions WHERE id = ?`, actionID).Scan(&exists); err != nil {
			return eris.Wrapf(err, "sqlite: check action %s", actionID)
		}
		if exists == 0 {
			return ErrNotFound
		}
		return ErrStaleTransition
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO action_events (id, action_id, from_state, to_state, actor, rationale, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID, actionID, string(from), string(to), event.Actor, event.Rationale, event.CreatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert event for action %s", actionID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit transition")
}

func (s *SQLiteStore) ListActionEvents(ctx context.Context, actionID string) ([]model.ActionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action_id, from_state, to_state, actor, rationale, created_at FROM action_events
		 WHERE action_id = ? ORDER BY created_at, id`, actionID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list action events")
	}
	defer rows.Close()

	var out []model.ActionEvent
	for rows.Next() {
		var e model.ActionEvent
		var rationale sql.NullString
		if err := rows.Scan(&e.ID, &e.ActionID, &e.FromState, &e.ToState, &e.Actor, &rationale, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action event")
		}
		e.Rationale = rationale.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list action events iterate")
}

func (s *SQLiteStore) MarkNotified(ctx context.Context, actionID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE actions SET last_notified_at = ? WHERE id = ?`, at.UTC(), actionID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark notified %s", actionID)
	}
	return checkRowsAffected(res, "action", actionID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
