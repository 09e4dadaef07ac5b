package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"aaronromeo.com/inboxsweep/pkg/models/action"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLite stores intents in a local database file. It is the default backend.
type SQLite struct {
	path string

	mu sync.Mutex
	db *sqlx.DB
}

type sqliteRow struct {
	ID         string `db:"id"`
	Type       string `db:"type"`
	Target     string `db:"target"`
	CreatedAt  string `db:"created_at"`
	RetryCount int    `db:"retry_count"`
	LastError  string `db:"last_error"`
}

func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Init opens (or creates) the database, enables WAL mode and runs pending migrations.
func (s *SQLite) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}

	if s.path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return fmt.Errorf("setting busy timeout: %w", err)
	}
	if err := runSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("running migrations: %w", err)
	}

	s.db = db
	return nil
}

func runSQLiteMigrations(ctx context.Context, db *sqlx.DB) error {
	currentVersion := 0

	var tableCount int
	err := db.GetContext(ctx, &tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := db.GetContext(ctx, &currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLite) conn() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("sqlite store %s is not initialized", s.path)
	}
	return s.db, nil
}

func (s *SQLite) Add(ctx context.Context, intent action.Intent) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	row, err := toSQLiteRow(intent)
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, `
		INSERT INTO intents (id, type, target, created_at, retry_count, last_error)
		VALUES (:id, :type, :target, :created_at, :retry_count, :last_error)`, row)
	if err != nil {
		return fmt.Errorf("inserting intent: %w", err)
	}
	return nil
}

func (s *SQLite) GetAll(ctx context.Context) ([]action.Intent, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var rows []sqliteRow
	if err := db.SelectContext(ctx, &rows, `
		SELECT id, type, target, created_at, retry_count, last_error
		FROM intents ORDER BY seq`); err != nil {
		return nil, fmt.Errorf("listing intents: %w", err)
	}

	intents := make([]action.Intent, 0, len(rows))
	for _, r := range rows {
		intent, err := r.intent()
		if err != nil {
			return nil, err
		}
		intents = append(intents, intent)
	}
	return intents, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (action.Intent, bool, error) {
	db, err := s.conn()
	if err != nil {
		return action.Intent{}, false, err
	}
	var r sqliteRow
	err = db.GetContext(ctx, &r, `
		SELECT id, type, target, created_at, retry_count, last_error
		FROM intents WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return action.Intent{}, false, nil
	}
	if err != nil {
		return action.Intent{}, false, fmt.Errorf("getting intent: %w", err)
	}
	intent, err := r.intent()
	if err != nil {
		return action.Intent{}, false, err
	}
	return intent, true, nil
}

func (s *SQLite) Put(ctx context.Context, intent action.Intent) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	row, err := toSQLiteRow(intent)
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, `
		UPDATE intents
		SET type = :type, target = :target, retry_count = :retry_count, last_error = :last_error
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("updating intent: %w", err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM intents WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting intent: %w", err)
	}
	return nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM intents"); err != nil {
		return 0, fmt.Errorf("counting intents: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func toSQLiteRow(intent action.Intent) (sqliteRow, error) {
	row, err := toRow(intent)
	if err != nil {
		return sqliteRow{}, err
	}
	return sqliteRow{
		ID:         row.ID,
		Type:       row.Type,
		Target:     row.Target,
		CreatedAt:  row.CreatedAt.Format(time.RFC3339Nano),
		RetryCount: row.RetryCount,
		LastError:  row.LastError,
	}, nil
}

func (r sqliteRow) intent() (action.Intent, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return action.Intent{}, fmt.Errorf("parsing created_at of %s: %w", r.ID, err)
	}
	return intentRow{
		ID:         r.ID,
		Type:       r.Type,
		Target:     r.Target,
		CreatedAt:  createdAt,
		RetryCount: r.RetryCount,
		LastError:  r.LastError,
	}.intent()
}
