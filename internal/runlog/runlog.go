// CLAUDE:SUMMARY SQLite ledger of pipeline runs and per-URL fetch outcomes, including conditional GET validators.
// Package runlog records what each pipeline run did: one row per run and
// one row per fetched source URL. The fetch rows also keep the ETag and
// Last-Modified validators used for the next conditional request.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/babelfeed/internal/dbopen"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	stages      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	status      TEXT NOT NULL DEFAULT 'running',
	error       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS fetches (
	run_id        TEXT NOT NULL,
	source_id     TEXT NOT NULL,
	url           TEXT NOT NULL,
	fetched_at    INTEGER NOT NULL,
	status        TEXT NOT NULL,
	records       INTEGER NOT NULL DEFAULT 0,
	captured      INTEGER NOT NULL DEFAULT 0,
	etag          TEXT NOT NULL DEFAULT '',
	last_modified TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_fetches_url ON fetches(url, fetched_at);
`

// Fetch statuses.
const (
	StatusOK          = "ok"
	StatusNotModified = "not_modified"
	StatusError       = "error"
)

// Ledger is the run ledger.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(schema))
	if err != nil {
		return nil, fmt.Errorf("runlog: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// New wraps an open database, applying the schema.
func New(db *sql.DB) (*Ledger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("runlog: schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }

// Run is one ledger run row.
type Run struct {
	ID         string
	Stages     string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Error      string
}

// Fetch is one fetched URL.
type Fetch struct {
	RunID        string
	SourceID     string
	URL          string
	FetchedAt    time.Time
	Status       string
	Records      int
	Captured     int
	ETag         string
	LastModified string
	Error        string
}

// StartRun inserts a running row.
func (l *Ledger) StartRun(ctx context.Context, id, stages string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (id, stages, started_at) VALUES (?, ?, ?)`,
		id, stages, l.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("runlog: start run: %w", err)
	}
	return nil
}

// FinishRun closes a run; runErr nil marks it done.
func (l *Ledger) FinishRun(ctx context.Context, id string, runErr error) error {
	status, msg := "done", ""
	if runErr != nil {
		status, msg = "failed", runErr.Error()
	}
	_, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		l.now().UnixMilli(), status, msg, id)
	if err != nil {
		return fmt.Errorf("runlog: finish run: %w", err)
	}
	return nil
}

// RecordFetch appends a fetch row.
func (l *Ledger) RecordFetch(ctx context.Context, f Fetch) error {
	if f.FetchedAt.IsZero() {
		f.FetchedAt = l.now()
	}
	return dbopen.RunTx(ctx, l.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fetches (run_id, source_id, url, fetched_at, status, records, captured, etag, last_modified, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.RunID, f.SourceID, f.URL, f.FetchedAt.UnixMilli(), f.Status, f.Records, f.Captured, f.ETag, f.LastModified, f.Error)
		if err != nil {
			return fmt.Errorf("runlog: record fetch: %w", err)
		}
		return nil
	})
}

// Validators returns the ETag and Last-Modified of the latest successful
// fetch of url.
func (l *Ledger) Validators(ctx context.Context, url string) (etag, lastMod string, err error) {
	err = l.db.QueryRowContext(ctx,
		`SELECT etag, last_modified FROM fetches
		 WHERE url = ? AND status IN ('ok', 'not_modified')
		 ORDER BY fetched_at DESC LIMIT 1`, url).Scan(&etag, &lastMod)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("runlog: validators: %w", err)
	}
	return etag, lastMod, nil
}

// LastRun returns the most recent run, or nil when none.
func (l *Ledger) LastRun(ctx context.Context) (*Run, error) {
	var r Run
	var started int64
	var finished sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT id, stages, started_at, finished_at, status, error FROM runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&r.ID, &r.Stages, &started, &finished, &r.Status, &r.Error)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runlog: last run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	return &r, nil
}

// Fetches returns the fetch rows of a run in insertion order.
func (l *Ledger) Fetches(ctx context.Context, runID string) ([]Fetch, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, source_id, url, fetched_at, status, records, captured, etag, last_modified, error
		 FROM fetches WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("runlog: fetches: %w", err)
	}
	defer rows.Close()
	var out []Fetch
	for rows.Next() {
		var f Fetch
		var at int64
		if err := rows.Scan(&f.RunID, &f.SourceID, &f.URL, &at, &f.Status, &f.Records, &f.Captured, &f.ETag, &f.LastModified, &f.Error); err != nil {
			return nil, fmt.Errorf("runlog: scan fetch: %w", err)
		}
		f.FetchedAt = time.UnixMilli(at).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
