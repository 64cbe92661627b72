package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// SQLStore persists snapshots in a SQL table. It works with SQLite
// (github.com/mattn/go-sqlite3) and PostgreSQL (github.com/jackc/pgx/v5/stdlib).
//
// Schema (PostgreSQL):
//
//	CREATE TABLE processes (
//	    process_id    TEXT PRIMARY KEY,
//	    full_state    JSONB NOT NULL,
//	    is_hot        BOOLEAN NOT NULL DEFAULT FALSE,
//	    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type SQLStore struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
	ownsDB    bool
	closed    atomic.Bool
}

// SQLDialect selects placeholder and DDL syntax.
type SQLDialect int

const (
	// DialectSQLite uses ? placeholders and TEXT columns.
	DialectSQLite SQLDialect = iota
	// DialectPostgreSQL uses $n placeholders and a JSONB state column.
	DialectPostgreSQL
)

// String returns the dialect name.
func (d SQLDialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgreSQL:
		return "postgres"
	default:
		return fmt.Sprintf("SQLDialect(%d)", int(d))
	}
}

// DefaultTableName is the table used when none is configured.
const DefaultTableName = "processes"

// SQLStoreOption configures SQLStore behavior.
type SQLStoreOption func(*sqlStoreConfig)

type sqlStoreConfig struct {
	tableName string
	dialect   SQLDialect
	ownsDB    bool
}

// WithTableName sets the snapshot table name. Default: "processes".
func WithTableName(name string) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		if name != "" {
			c.tableName = name
		}
	}
}

// WithDialect sets the SQL dialect. Default: DialectSQLite.
func WithDialect(d SQLDialect) SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.dialect = d
	}
}

// WithOwnedDB makes Close also close the underlying *sql.DB.
func WithOwnedDB() SQLStoreOption {
	return func(c *sqlStoreConfig) {
		c.ownsDB = true
	}
}

// NewSQLStore wraps db. Call Migrate before first use on a fresh database.
func NewSQLStore(db *sql.DB, opts ...SQLStoreOption) *SQLStore {
	cfg := &sqlStoreConfig{
		tableName: DefaultTableName,
		dialect:   DialectSQLite,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &SQLStore{
		db:        db,
		tableName: cfg.tableName,
		dialect:   cfg.dialect,
		ownsDB:    cfg.ownsDB,
	}
}

// Dialect returns the configured dialect.
func (s *SQLStore) Dialect() SQLDialect {
	return s.dialect
}

// Migrate creates the snapshot table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	var query string
	switch s.dialect {
	case DialectPostgreSQL:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				process_id TEXT PRIMARY KEY,
				full_state JSONB NOT NULL,
				is_hot BOOLEAN NOT NULL DEFAULT FALSE,
				last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)
		`, s.tableName)
	default:
		query = fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				process_id TEXT PRIMARY KEY,
				full_state TEXT NOT NULL,
				is_hot INTEGER NOT NULL DEFAULT 0,
				last_activity TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			)
		`, s.tableName)
	}

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("store: migrate %s: %w", s.tableName, err)
	}

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_last_activity ON %s(last_activity)`,
		s.tableName, s.tableName)
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("store: migrate %s index: %w", s.tableName, err)
	}
	return nil
}

// Load returns the stored snapshot, or (nil, nil) if the row is absent.
func (s *SQLStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}

	query := fmt.Sprintf(`SELECT full_state FROM %s WHERE process_id = %s`,
		s.tableName, s.placeholder(1))

	var state []byte
	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: load %q: %w", sessionID, err)
	}
	return state, nil
}

// Save upserts rec keyed by its session id.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if rec.SessionID == "" {
		return ErrEmptySessionID
	}

	lastActivity := rec.LastActivity
	if lastActivity.IsZero() {
		lastActivity = time.Now()
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (process_id, full_state, is_hot, last_activity)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (process_id) DO UPDATE SET
			full_state = EXCLUDED.full_state,
			is_hot = EXCLUDED.is_hot,
			last_activity = EXCLUDED.last_activity
	`, s.tableName, s.placeholder(1), s.stateParam(2), s.placeholder(3), s.placeholder(4))

	_, err := s.db.ExecContext(ctx, query, rec.SessionID, string(rec.State), rec.Hot, lastActivity.UTC())
	if err != nil {
		return fmt.Errorf("store: save %q: %w", rec.SessionID, err)
	}
	return nil
}

// Close marks the store closed. The database handle is closed only when the
// store was created with WithOwnedDB.
func (s *SQLStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) stateParam(n int) string {
	if s.dialect == DialectPostgreSQL {
		return fmt.Sprintf("$%d::jsonb", n)
	}
	return "?"
}
