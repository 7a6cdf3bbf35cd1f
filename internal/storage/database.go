package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS knowledge (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    concept_name TEXT NOT NULL UNIQUE,
    content TEXT NOT NULL CHECK (length(trim(content)) > 0),
    source TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_knowledge_source ON knowledge(source);

CREATE TABLE IF NOT EXISTS ingest_runs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    path TEXT NOT NULL,
    ok INTEGER NOT NULL,
    inserted INTEGER NOT NULL DEFAULT 0,
    duplicates INTEGER NOT NULL DEFAULT 0,
    failures INTEGER NOT NULL DEFAULT 0,
    report_json TEXT,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs(started_at);
`

const conceptColumns = "id, concept_name, content, source, created_at"

// Database is the SQLite concept store. The pool is pinned to a single
// connection so inserts are serialized even when callers run concurrently.
type Database struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Backend = (*Database)(nil)

// NewDatabase opens the SQLite file at dbPath, creating its parent directory
// when missing. Call Initialize to create the schema.
func NewDatabase(dbPath string) (*Database, error) {
	if dbPath != ":memory:" && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, storageErr(err, "create database directory %s", dir)
			}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, storageErr(err, "open database")
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=10000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, storageErr(err, "exec %s", pragma)
		}
	}
	return &Database{db: db}, nil
}

// NewDatabaseFromDB wraps an already opened handle. The schema is assumed
// to exist.
func NewDatabaseFromDB(db *sql.DB) *Database {
	return &Database{db: db}
}

// Open is NewDatabase followed by Initialize.
func Open(dbPath string) (*Database, error) {
	d, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	if err := d.Initialize(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Database) Initialize() error {
	if _, err := d.db.Exec(schemaDDL); err != nil {
		return storageErr(err, "create schema")
	}
	return nil
}

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.db.Close(); err != nil {
		return storageErr(err, "close database")
	}
	return nil
}

func (d *Database) DB() *sql.DB {
	return d.db
}

// -- Concept operations --

func (d *Database) Insert(ctx context.Context, name, content string, source *string) (int64, error) {
	if err := ValidateConcept(name, content); err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, closedErr()
	}

	res, err := d.db.ExecContext(ctx,
		"INSERT INTO knowledge (concept_name, content, source) VALUES (?, ?, ?)",
		name, content, source,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, errors.Wrapf(ErrDuplicate, "concept %q", name)
		}
		return 0, storageErr(err, "insert concept %q", name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr(err, "insert concept %q: last insert id", name)
	}
	return id, nil
}

func (d *Database) Get(ctx context.Context, name string) (*Concept, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, closedErr()
	}

	row := d.db.QueryRowContext(ctx,
		"SELECT "+conceptColumns+" FROM knowledge WHERE concept_name=?", name)
	c, err := scanConcept(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(err, "get concept %q", name)
	}
	return c, nil
}

func (d *Database) Update(ctx context.Context, name, content string) (bool, error) {
	if err := ValidateContent(name, content); err != nil {
		return false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false, closedErr()
	}

	res, err := d.db.ExecContext(ctx,
		"UPDATE knowledge SET content=? WHERE concept_name=?", content, name)
	if err != nil {
		return false, storageErr(err, "update concept %q", name)
	}
	return affected(res, name)
}

func (d *Database) Delete(ctx context.Context, name string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false, closedErr()
	}

	res, err := d.db.ExecContext(ctx, "DELETE FROM knowledge WHERE concept_name=?", name)
	if err != nil {
		return false, storageErr(err, "delete concept %q", name)
	}
	return affected(res, name)
}

func (d *Database) List(ctx context.Context, opts ListOptions) ([]Concept, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, closedErr()
	}

	q := "SELECT " + conceptColumns + " FROM knowledge"
	var where []string
	var args []any
	if opts.Prefix != "" {
		where = append(where, `concept_name LIKE ? ESCAPE '\'`)
		args = append(args, escapeLike(opts.Prefix)+"%")
	}
	if opts.Source != "" {
		where = append(where, "source=?")
		args = append(args, opts.Source)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, max(opts.Offset, 0))

	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, storageErr(err, "list concepts")
	}
	defer rows.Close()

	var concepts []Concept
	for rows.Next() {
		c, err := scanConcept(rows)
		if err != nil {
			return nil, storageErr(err, "list concepts")
		}
		concepts = append(concepts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, "list concepts")
	}
	return concepts, nil
}

func (d *Database) Count(ctx context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, closedErr()
	}

	var cnt int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM knowledge").Scan(&cnt); err != nil {
		return 0, storageErr(err, "count concepts")
	}
	return cnt, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConcept(row rowScanner) (*Concept, error) {
	var c Concept
	var source sql.NullString
	var createdAt string
	if err := row.Scan(&c.ID, &c.ConceptName, &c.Content, &source, &createdAt); err != nil {
		return nil, err
	}
	if source.Valid {
		s := source.String
		c.Source = &s
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	// CURRENT_TIMESTAMP format, written by older schemas.
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t.UTC(), nil
}

func affected(res sql.Result, name string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, storageErr(err, "concept %q: rows affected", name)
	}
	return n > 0, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
