package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/stead/internal/ir"
	"github.com/roach88/stead/internal/querysql"
	"github.com/roach88/stead/internal/source"
)

var _ source.DataSource = (*Store)(nil)

// Schema version tracking for the store's own bookkeeping tables:
// 0 - empty database
// 1 - stead_meta key/value table
const currentSchemaVersion = 1

// Store is a SQLite-backed DataSource.
// It owns one database file and the tables of every class and relation
// whose metadata names this data source.
type Store struct {
	name     string
	db       *sql.DB
	schema   *ir.Schema
	compiler *querysql.SQLCompiler

	mu sync.Mutex
	tx *sql.Tx
}

// Open creates or opens a SQLite database at the given path and binds it to
// the data source name used by schema metadata.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(name, path string, schema *ir.Schema) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{
		name:     name,
		db:       db,
		schema:   schema,
		compiler: querysql.NewSQLCompiler(schema),
	}, nil
}

// Name returns the data source name.
func (s *Store) Name() string {
	return s.name
}

// Close closes the database connection, rolling back any open unit of work.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		s.tx.Rollback()
		s.tx = nil
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates the tables of every class and relation stored in this
// data source and records the schema digest. Existing tables are left as is.
// Returns the DDL statements that were executed, in order.
func (s *Store) EnsureSchema(ctx context.Context) ([]string, error) {
	stmts := []string{}
	for i := range s.schema.Classes {
		class := &s.schema.Classes[i]
		if class.DataSource != s.name {
			continue
		}
		stmts = append(stmts, s.compiler.CreateTable(class))
	}
	for i := range s.schema.Relations {
		rel := &s.schema.Relations[i]
		if rel.DataSource != s.name {
			continue
		}
		ddl, err := s.compiler.CreateLinkTable(rel)
		if err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		stmts = append(stmts, ddl)
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}

	digest, err := schemaDigest(s.schema)
	if err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stead_meta (key, value) VALUES ('schema_digest', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, digest); err != nil {
		return nil, fmt.Errorf("ensure schema: record digest: %w", err)
	}
	return stmts, nil
}

// SchemaDigest returns the digest recorded by the last EnsureSchema, or ""
// if the schema was never applied.
func (s *Store) SchemaDigest(ctx context.Context) (string, error) {
	var digest string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM stead_meta WHERE key = 'schema_digest'`).Scan(&digest)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read schema digest: %w", err)
	}
	return digest, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// runMigrations applies incremental migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 creates the metadata table.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS stead_meta (
			key   TEXT PRIMARY KEY NOT NULL,
			value TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
