// Package journal is an append-only SQLite audit trail of migration events.
// It is write-mostly: nothing reads it back to restore controller state.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
)

var ErrNoActive = errors.New("no active engine recorded")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS migration_events (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT NOT NULL UNIQUE,
	migration_id  TEXT,
	event_type    TEXT NOT NULL,
	from_state    TEXT NOT NULL,
	to_state      TEXT NOT NULL,
	candidate     TEXT,
	active        TEXT,
	metrics_json  TEXT,
	detail        TEXT,
	created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_migration_events_migration ON migration_events(migration_id);

CREATE TABLE IF NOT EXISTS migrations (
	migration_id     TEXT PRIMARY KEY,
	candidate        TEXT NOT NULL,
	previous_active  TEXT,
	started_at       TEXT NOT NULL,
	ended_at         TEXT,
	outcome          TEXT
);

CREATE TABLE IF NOT EXISTS engine_lineage (
	identity      TEXT PRIMARY KEY,
	parent        TEXT,
	migration_id  TEXT,
	activated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS active_engine (
	id        INTEGER PRIMARY KEY CHECK (id = 1),
	identity  TEXT NOT NULL,
	FOREIGN KEY (identity) REFERENCES engine_lineage(identity)
);
`

// #endregion schema

// #region journal
// Journal records migration events in SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal at dbPath. ":memory:" is accepted.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// DB returns the underlying *sql.DB.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// #endregion journal

// #region record
// Record appends ev and updates the migration summary and engine lineage in
// one transaction. It satisfies migration.EventSink.
func (j *Journal) Record(ctx context.Context, ev migration.Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	at := ev.At.UTC().Format(time.RFC3339Nano)

	metricsJSON, err := json.Marshal(ev.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO migration_events (event_id, migration_id, event_type, from_state, to_state, candidate, active, metrics_json, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		nullIfEmpty(ev.MigrationID),
		string(ev.Type),
		ev.From.String(),
		ev.To.String(),
		nullIfEmpty(ev.Candidate),
		nullIfEmpty(ev.Active),
		string(metricsJSON),
		nullIfEmpty(ev.Detail),
		at,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if err := seedActive(ctx, tx, ev, at); err != nil {
		return err
	}

	switch ev.Type {
	case migration.EventStarted:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO migrations (migration_id, candidate, previous_active, started_at) VALUES (?, ?, ?, ?)`,
			ev.MigrationID, ev.Candidate, nullIfEmpty(ev.Active), at,
		)
		if err != nil {
			return fmt.Errorf("insert migration: %w", err)
		}
	case migration.EventFinalized:
		if err := endMigration(ctx, tx, ev.MigrationID, OutcomeComplete, at); err != nil {
			return err
		}
		if err := promote(ctx, tx, ev, at); err != nil {
			return err
		}
	case migration.EventRolledBack:
		if err := endMigration(ctx, tx, ev.MigrationID, OutcomeRolledBack, at); err != nil {
			return err
		}
	case migration.EventFailed:
		if err := endMigration(ctx, tx, ev.MigrationID, OutcomeFailed, at); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// seedActive makes ev.Active the recorded active engine. An engine the
// journal has not seen becomes a lineage root; this covers the first event
// and a process restarted on a different engine.
func seedActive(ctx context.Context, tx *sql.Tx, ev migration.Event, at string) error {
	if ev.Active == "" || ev.Type == migration.EventFinalized {
		return nil
	}
	var current string
	err := tx.QueryRowContext(ctx, `SELECT identity FROM active_engine WHERE id = 1`).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read active: %w", err)
	}
	if current == ev.Active {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO engine_lineage (identity, parent, migration_id, activated_at) VALUES (?, NULL, NULL, ?)`,
		ev.Active, at,
	); err != nil {
		return fmt.Errorf("insert root: %w", err)
	}
	return setActive(ctx, tx, ev.Active)
}

func setActive(ctx context.Context, tx *sql.Tx, identity string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO active_engine (id, identity) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET identity = excluded.identity`,
		identity,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// promote appends the finalized engine to the lineage, parented on the
// engine its migration started from, and moves the active pointer to it.
func promote(ctx context.Context, tx *sql.Tx, ev migration.Event, at string) error {
	var parent string
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(previous_active, '') FROM migrations WHERE migration_id = ?`, ev.MigrationID,
	).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `SELECT identity FROM active_engine WHERE id = 1`).Scan(&parent)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read parent: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO engine_lineage (identity, parent, migration_id, activated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(identity) DO UPDATE SET parent = excluded.parent, migration_id = excluded.migration_id, activated_at = excluded.activated_at`,
		ev.Active, nullIfEmpty(parent), nullIfEmpty(ev.MigrationID), at,
	)
	if err != nil {
		return fmt.Errorf("insert lineage: %w", err)
	}
	return setActive(ctx, tx, ev.Active)
}

func endMigration(ctx context.Context, tx *sql.Tx, id string, outcome Outcome, at string) error {
	if id == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE migrations SET ended_at = ?, outcome = ? WHERE migration_id = ? AND ended_at IS NULL`,
		at, string(outcome), id,
	)
	if err != nil {
		return fmt.Errorf("end migration: %w", err)
	}
	return nil
}

// #endregion record

// #region queries
const eventColumns = `id, event_id, COALESCE(migration_id, ''), event_type, from_state, to_state,
	COALESCE(candidate, ''), COALESCE(active, ''), COALESCE(metrics_json, ''), COALESCE(detail, ''), created_at`

// Events returns up to limit events, newest first. limit <= 0 returns all.
func (j *Journal) Events(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM migration_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// EventsFor returns every event of one migration in the order recorded.
func (j *Journal) EventsFor(ctx context.Context, migrationID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM migration_events WHERE migration_id = ? ORDER BY id ASC`, migrationID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Migrations returns up to limit migrations, most recently started first.
func (j *Journal) Migrations(ctx context.Context, limit int) ([]MigrationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT migration_id, candidate, COALESCE(previous_active, ''), started_at, COALESCE(ended_at, ''), COALESCE(outcome, '')
		 FROM migrations ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	var out []MigrationRecord
	for rows.Next() {
		var (
			m              MigrationRecord
			started, ended string
			outcome        string
		)
		if err := rows.Scan(&m.MigrationID, &m.Candidate, &m.PreviousActive, &started, &ended, &outcome); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		m.Outcome = Outcome(outcome)
		if m.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ended != "" {
			if m.EndedAt, err = time.Parse(time.RFC3339Nano, ended); err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Lineage walks from the current active engine back to the first one
// recorded.
func (j *Journal) Lineage(ctx context.Context) ([]LineageRecord, error) {
	current, err := j.CurrentActive(ctx)
	if err != nil {
		return nil, err
	}

	var out []LineageRecord
	seen := make(map[string]bool)
	for id := current; id != "" && !seen[id]; {
		seen[id] = true
		var (
			rec LineageRecord
			at  string
		)
		err := j.db.QueryRowContext(ctx,
			`SELECT identity, COALESCE(parent, ''), COALESCE(migration_id, ''), activated_at FROM engine_lineage WHERE identity = ?`, id,
		).Scan(&rec.Identity, &rec.Parent, &rec.MigrationID, &at)
		if err != nil {
			return nil, fmt.Errorf("get lineage %s: %w", id, err)
		}
		if rec.ActivatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse activated_at: %w", err)
		}
		out = append(out, rec)
		id = rec.Parent
	}
	return out, nil
}

// CurrentActive returns the identity of the last engine recorded as active.
func (j *Journal) CurrentActive(ctx context.Context) (string, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `SELECT identity FROM active_engine WHERE id = 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoActive
	}
	if err != nil {
		return "", fmt.Errorf("get active: %w", err)
	}
	return id, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			typ, at, mj string
		)
		if err := rows.Scan(&e.ID, &e.EventID, &e.MigrationID, &typ, &e.From, &e.To,
			&e.Candidate, &e.Active, &mj, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = migration.EventType(typ)
		if mj != "" {
			if err := json.Unmarshal([]byte(mj), &e.Metrics); err != nil {
				return nil, fmt.Errorf("unmarshal metrics: %w", err)
			}
		}
		var err error
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion queries

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
