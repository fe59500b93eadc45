// Package history persists the outcome of every export in SQLite.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/satindergrewal/lyricast/internal/session"
)

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exports (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			codec TEXT NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			file TEXT,
			bytes INTEGER NOT NULL DEFAULT 0,
			duration REAL NOT NULL DEFAULT 0,
			tracks INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exports_started_at ON exports(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_exports_status ON exports(status)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Record is one finished export.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	Codec     string    `json:"codec"`
	Fallback  bool      `json:"fallback"`
	File      string    `json:"file,omitempty"`
	Bytes     int64     `json:"bytes"`
	Duration  float64   `json:"duration"`
	Tracks    int       `json:"tracks"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// FromOutcome converts a session outcome. file is where the artifact was
// written, if anywhere.
func FromOutcome(o session.Outcome, file string) *Record {
	r := &Record{
		ID:        o.ID,
		Title:     o.Title,
		Status:    o.Status.String(),
		Codec:     o.Codec,
		Fallback:  o.Fallback,
		File:      file,
		Tracks:    o.Tracks,
		StartedAt: o.Started,
		EndedAt:   o.Ended,
	}
	if o.Artifact != nil {
		r.Bytes = int64(o.Artifact.Size())
		r.Duration = o.Artifact.Duration
		if r.File == "" {
			r.File = o.Artifact.Name
		}
	}
	if o.Err != nil && o.Status != session.AbortedByUser {
		r.Error = o.Err.Error()
	}
	return r
}

// Store handles reads and writes of export records.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Insert stores r.
func (s *Store) Insert(r *Record) error {
	_, err := s.db.Exec(`
		INSERT INTO exports (
			id, title, status, codec, fallback, file, bytes,
			duration, tracks, error, started_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.Title, r.Status, r.Codec, r.Fallback, nullString(r.File), r.Bytes,
		r.Duration, r.Tracks, nullString(r.Error), r.StartedAt.UnixMilli(), r.EndedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert export: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, title, status, codec, fallback, file, bytes,
	duration, tracks, error, started_at, ended_at FROM exports`

// Get fetches a record by ID. It returns nil, nil when none exists.
func (s *Store) Get(id string) (*Record, error) {
	r, err := scanRecord(s.db.QueryRow(selectColumns+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// List returns the newest records first, optionally filtered by status.
func (s *Store) List(status string, limit int) ([]*Record, error) {
	var conditions []string
	var args []any
	if status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}

	query := selectColumns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r              Record
		file, errText  sql.NullString
		started, ended int64
	)
	if err := row.Scan(&r.ID, &r.Title, &r.Status, &r.Codec, &r.Fallback, &file, &r.Bytes,
		&r.Duration, &r.Tracks, &errText, &started, &ended); err != nil {
		return nil, err
	}
	r.File = file.String
	r.Error = errText.String
	r.StartedAt = time.UnixMilli(started)
	r.EndedAt = time.UnixMilli(ended)
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
