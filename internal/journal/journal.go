// Package journal keeps a local SQLite record of reconciliation passes.
//
// Save failures are never retried automatically, so the journal is where
// drift between the document and the disk becomes visible: every pass is
// stored with its per-action counts, and every failed step with its error.
//
// Architecture:
//   - Database file: <user cache dir>/vzsync/journal.db by default
//   - WAL mode: the status command can read while serve writes
//   - Schema: passes, failures
//
// The database is embedded (ncruces/go-sqlite3, no cgo).
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/vzcode/vzsync/internal/reconcile"
)

// Journal wraps the database connection.
type Journal struct {
	conn *sql.DB
	path string
}

// DefaultPath returns the journal location under the user cache
// directory.
func DefaultPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "vzsync", "journal.db")
}

// Open creates or opens the journal at path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	j, err := journal.Open(journal.DefaultPath())
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	// Per-connection pragmas go in the DSN so every pooled connection
	// gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	j := &Journal{conn: conn, path: path}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	return j, nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Close checkpoints the WAL and closes the connection.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}
	if _, err := j.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint journal WAL: %v\n", err)
	}
	if err := j.conn.Close(); err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	j.conn = nil
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS passes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	root        TEXT    NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_us INTEGER NOT NULL,
	steps       INTEGER NOT NULL,
	creates     INTEGER NOT NULL DEFAULT 0,
	updates     INTEGER NOT NULL DEFAULT 0,
	renames     INTEGER NOT NULL DEFAULT 0,
	deletes     INTEGER NOT NULL DEFAULT 0,
	failures    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_passes_root_started ON passes(root, started_at);

CREATE TABLE IF NOT EXISTS failures (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	pass_id   INTEGER NOT NULL REFERENCES passes(id) ON DELETE CASCADE,
	action    TEXT    NOT NULL,
	path      TEXT    NOT NULL,
	from_path TEXT    NOT NULL DEFAULT '',
	is_dir    INTEGER NOT NULL DEFAULT 0,
	error     TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_failures_pass ON failures(pass_id);
`

// InitSchema creates the tables if needed. It is idempotent.
func (j *Journal) InitSchema() error {
	if _, err := j.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Pass is one recorded reconciliation pass.
type Pass struct {
	ID        int64
	Root      string
	StartedAt time.Time
	Duration  time.Duration
	Steps     int
	Creates   int
	Updates   int
	Renames   int
	Deletes   int
	Failures  int
}

// Failure is one failed step of a pass.
type Failure struct {
	PassID    int64
	StartedAt time.Time
	Root      string
	Action    string
	Path      string
	From      string
	Dir       bool
	Error     string
}

// RecordPass stores res for the workspace at root and returns the pass
// ID.
func (j *Journal) RecordPass(ctx context.Context, root string, res *reconcile.Result) (int64, error) {
	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	counts := res.Counts()
	failures := res.Failures()
	r, err := tx.ExecContext(ctx, `
		INSERT INTO passes (root, started_at, duration_us, steps, creates, updates, renames, deletes, failures)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		root,
		res.Started.UnixMilli(),
		res.Duration.Microseconds(),
		len(res.Outcomes),
		counts[reconcile.ActionCreate],
		counts[reconcile.ActionUpdate],
		counts[reconcile.ActionRename],
		counts[reconcile.ActionDelete],
		len(failures),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pass: %w", err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read pass id: %w", err)
	}

	for _, f := range failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO failures (pass_id, action, path, from_path, is_dir, error)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(f.Step.Action), f.Step.Path, f.Step.From, f.Step.Dir, f.Err.Error(),
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert failure for %s: %w", f.Step.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pass: %w", err)
	}
	return id, nil
}

// RecentPasses returns passes started at or after since, newest first. An
// empty root matches every workspace; limit <= 0 means no limit.
func (j *Journal) RecentPasses(ctx context.Context, root string, since time.Time, limit int) ([]Pass, error) {
	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, root, started_at, duration_us, steps, creates, updates, renames, deletes, failures
		FROM passes
		WHERE (? = '' OR root = ?) AND started_at >= ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`,
		root, root, since.UnixMilli(), sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var out []Pass
	for rows.Next() {
		var p Pass
		var started, durationUS int64
		if err := rows.Scan(&p.ID, &p.Root, &started, &durationUS, &p.Steps,
			&p.Creates, &p.Updates, &p.Renames, &p.Deletes, &p.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		p.StartedAt = time.UnixMilli(started)
		p.Duration = time.Duration(durationUS) * time.Microsecond
		out = append(out, p)
	}
	return out, rows.Err()
}

// Failures returns failed steps of passes started at or after since,
// newest first.
func (j *Journal) Failures(ctx context.Context, root string, since time.Time, limit int) ([]Failure, error) {
	rows, err := j.conn.QueryContext(ctx, `
		SELECT f.pass_id, p.started_at, p.root, f.action, f.path, f.from_path, f.is_dir, f.error
		FROM failures f
		JOIN passes p ON p.id = f.pass_id
		WHERE (? = '' OR p.root = ?) AND p.started_at >= ?
		ORDER BY p.started_at DESC, f.id DESC
		LIMIT ?`,
		root, root, since.UnixMilli(), sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query failures: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var started int64
		if err := rows.Scan(&f.PassID, &started, &f.Root, &f.Action, &f.Path, &f.From, &f.Dir, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w", err)
		}
		f.StartedAt = time.UnixMilli(started)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Prune deletes passes started before cutoff, along with their failures.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := j.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ms := cutoff.UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM failures WHERE pass_id IN (SELECT id FROM passes WHERE started_at < ?)`, ms); err != nil {
		return 0, fmt.Errorf("failed to prune failures: %w", err)
	}
	r, err := tx.ExecContext(ctx, `DELETE FROM passes WHERE started_at < ?`, ms)
	if err != nil {
		return 0, fmt.Errorf("failed to prune passes: %w", err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}
	return n, nil
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
