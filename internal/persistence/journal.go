// Package persistence keeps the launch journal: a small SQLite table of
// format service launches and endpoint adoptions.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"

	"javafmtd/internal/state/paths"
)

const (
	journalSchemaVersion = 1
	// DefaultRetention bounds the number of rows kept after each write.
	DefaultRetention = 200
)

var (
	// ErrJournalClosed is returned by operations on a closed journal.
	ErrJournalClosed = errors.New("persistence: journal closed")
	// ErrJournalReadOnly is returned by writes when the state directory is mounted read-only.
	ErrJournalReadOnly = errors.New("persistence: journal is read-only")
)

// Outcome labels a journal row.
type Outcome string

const (
	OutcomeLaunched   Outcome = "launched"
	OutcomeAdopted    Outcome = "adopted"
	OutcomeFailed     Outcome = "failed"
	OutcomeNoCapacity Outcome = "no-port"
)

// LaunchRecord is one journal row.
type LaunchRecord struct {
	ID        int64     `json:"id"`
	Port      int       `json:"port"`
	PID       int       `json:"pid,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is a SQLite-backed launch log safe for concurrent use.
type Journal struct {
	mu        sync.Mutex
	db        *sql.DB
	path      string
	readOnly  bool
	retention int
	now       func() time.Time
}

// JournalOption customises a Journal.
type JournalOption func(*Journal)

// WithRetention keeps at most n rows (n <= 0 disables pruning).
func WithRetention(n int) JournalOption {
	return func(j *Journal) { j.retention = n }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) JournalOption {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

var detectReadOnlyMount = defaultReadOnlyDetector

func defaultReadOnlyDetector(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, err
	}
	return st.Flags&unix.ST_RDONLY != 0, nil
}

// OpenJournal opens (creating if needed) the journal at path. An empty path
// resolves to the state directory default.
func OpenJournal(path string, opts ...JournalOption) (*Journal, error) {
	if path == "" {
		path = paths.JournalPath()
	}
	j := &Journal{
		path:      path,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	ro, err := detectReadOnlyMount(dir)
	if err != nil {
		log.Printf("WARN: journal: read-only detection failed for %s: %v", dir, err)
	}
	j.readOnly = ro
	if j.readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open read-only journal: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildSQLiteDSN(path, j.readOnly))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := configureSQLite(db, j.readOnly); err != nil {
		db.Close()
		return nil, err
	}
	if !j.readOnly {
		if err := applyMigrations(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate journal: %w", err)
		}
	}
	j.db = db
	return j, nil
}

// Path returns the database file location.
func (j *Journal) Path() string { return j.path }

// ReadOnly reports whether the journal was opened on a read-only mount.
func (j *Journal) ReadOnly() bool { return j.readOnly }

// Record appends rec and returns it with ID and CreatedAt filled in.
func (j *Journal) Record(ctx context.Context, rec LaunchRecord) (LaunchRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return LaunchRecord{}, ErrJournalClosed
	}
	if j.readOnly {
		return LaunchRecord{}, ErrJournalReadOnly
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = j.now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO launches (port, pid, outcome, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Port, rec.PID, string(rec.Outcome), rec.Detail, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return LaunchRecord{}, fmt.Errorf("insert launch record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return LaunchRecord{}, fmt.Errorf("launch record id: %w", err)
	}
	rec.ID = id

	if j.retention > 0 {
		if _, err := j.db.ExecContext(ctx,
			`DELETE FROM launches WHERE id <= (SELECT MAX(id) FROM launches) - ?`, j.retention,
		); err != nil {
			log.Printf("WARN: journal: prune failed: %v", err)
		}
	}
	return rec, nil
}

// Recent returns up to limit rows, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]LaunchRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil, ErrJournalClosed
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, port, pid, outcome, detail, created_at FROM launches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query launch records: %w", err)
	}
	defer rows.Close()

	var out []LaunchRecord
	for rows.Next() {
		var (
			rec     LaunchRecord
			outcome string
			created string
		)
		if err := rows.Scan(&rec.ID, &rec.Port, &rec.PID, &outcome, &rec.Detail, &created); err != nil {
			return nil, err
		}
		rec.Outcome = Outcome(outcome)
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			rec.CreatedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close checkpoints and closes the database. Safe to call more than once.
func (j *Journal) Close(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	if !j.readOnly {
		if _, err := j.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE);`); err != nil {
			log.Printf("WARN: journal: checkpoint failed: %v", err)
		}
	}
	err := j.db.Close()
	j.db = nil
	return err
}

func configureSQLite(db *sql.DB, readOnly bool) error {
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if readOnly {
		if _, err := db.Exec(`PRAGMA query_only=1;`); err != nil {
			return fmt.Errorf("set query_only: %w", err)
		}
		return nil
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL;`); err != nil {
		return fmt.Errorf("set synchronous: %w", err)
	}
	return nil
}

func applyMigrations(db *sql.DB) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS launches (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			port INTEGER NOT NULL,
			pid INTEGER NOT NULL DEFAULT 0,
			outcome TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS launches_created_at ON launches (created_at);`,
		`PRAGMA user_version=` + fmt.Sprint(journalSchemaVersion) + `;`,
	}
	for _, stmt := range stmts {
		if _, err = tx.Exec(stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func buildSQLiteDSN(path string, readOnly bool) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.ToSlash(abs)
	if !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}
	u := &url.URL{Scheme: "file", Path: abs}
	if readOnly {
		u.RawQuery = "mode=ro"
	}
	return u.String()
}
