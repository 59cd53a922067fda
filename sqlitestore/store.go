// Package sqlitestore persists the class table and the unknown bucket in a
// SQLite database.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	classifier "github.com/FrenchMajesty/openworld-classifier"
)

const dimensionKey = "dimension"

// Store implements classifier.Store backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the class table database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS classes (
            label TEXT PRIMARY KEY,
            position INTEGER NOT NULL,
            count INTEGER NOT NULL,
            centroid TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_classes_position ON classes(position);`,
		`CREATE TABLE IF NOT EXISTS meta (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS unknown_samples (
            id TEXT PRIMARY KEY,
            position INTEGER NOT NULL,
            embedding TEXT NOT NULL,
            source TEXT NOT NULL DEFAULT '',
            added_at TEXT NOT NULL,
            cluster_id TEXT NOT NULL DEFAULT ''
        );`,
		`CREATE TABLE IF NOT EXISTS unknown_clusters (
            id TEXT PRIMARY KEY,
            position INTEGER NOT NULL,
            name TEXT NOT NULL DEFAULT '',
            centroid TEXT NOT NULL,
            root TEXT NOT NULL
        );`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Load reads the class table in registration order. Returns nil when nothing
// has been saved yet.
func (s *Store) Load(ctx context.Context) (*classifier.Snapshot, error) {
	return load(ctx, s.db)
}

// Save replaces the stored class table in a single transaction.
func (s *Store) Save(ctx context.Context, snap *classifier.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = save(ctx, tx, snap); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Update reads, modifies and rewrites the class table inside one IMMEDIATE
// transaction, so the write lock is held from the first read.
func (s *Store) Update(ctx context.Context, fn func(*classifier.Snapshot) (*classifier.Snapshot, error)) error {
	return s.immediate(ctx, func(q querier) error {
		snap, err := load(ctx, q)
		if err != nil {
			return err
		}
		next, err := fn(snap)
		if err != nil {
			return err
		}
		return save(ctx, q, next)
	})
}

// immediate runs fn inside a BEGIN IMMEDIATE transaction on a dedicated
// connection, rolling back when fn fails.
func (s *Store) immediate(ctx context.Context, fn func(q querier) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err = conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("apply busy timeout: %w", err)
	}
	if _, err = conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin immediate: %w", err)
	}
	defer func() {
		if err != nil {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err = fn(conn); err != nil {
		return err
	}
	if _, err = conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func load(ctx context.Context, q querier) (*classifier.Snapshot, error) {
	var dimValue string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, dimensionKey).Scan(&dimValue)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read dimension: %w", err)
	}
	dimension, err := strconv.Atoi(dimValue)
	if err != nil {
		return nil, fmt.Errorf("parse dimension %q: %w", dimValue, err)
	}

	rows, err := q.QueryContext(ctx, `SELECT label, count, centroid FROM classes ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query classes: %w", err)
	}
	defer rows.Close()

	snap := &classifier.Snapshot{Dimension: dimension, Classes: []classifier.Class{}}
	for rows.Next() {
		var (
			class       classifier.Class
			centroidStr string
		)
		if err := rows.Scan(&class.Label, &class.Count, &centroidStr); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		if err := json.Unmarshal([]byte(centroidStr), &class.Centroid); err != nil {
			return nil, fmt.Errorf("decode centroid for %q: %w", class.Label, err)
		}
		snap.Classes = append(snap.Classes, class)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate classes: %w", err)
	}
	return snap, nil
}

func save(ctx context.Context, q querier, snap *classifier.Snapshot) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM classes`); err != nil {
		return fmt.Errorf("clear classes: %w", err)
	}
	for i, class := range snap.Classes {
		centroidJSON, err := json.Marshal(class.Centroid)
		if err != nil {
			return fmt.Errorf("encode centroid for %q: %w", class.Label, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO classes(label, position, count, centroid) VALUES(?, ?, ?, ?)`,
			class.Label, i, class.Count, string(centroidJSON),
		); err != nil {
			return fmt.Errorf("insert class %q: %w", class.Label, err)
		}
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		dimensionKey, strconv.Itoa(snap.Dimension),
	); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	return nil
}
