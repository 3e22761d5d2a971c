package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver ("pgx")
	_ "modernc.org/sqlite"             // SQLite driver
)

const (
	currentSchemaVersion = 1
)

// Dialect selects SQL placeholder style and DDL.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Store is the relational system-of-record shared by every stage worker.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	MaxOpenConns    int           // Postgres pool size (SQLite always uses one writer)
	ConnMaxLifetime time.Duration // Postgres connection recycling
}

// Open opens the store at dsn with default options. A postgres:// or
// postgresql:// URL selects Postgres; anything else is a SQLite file path.
func Open(dsn string) (*Store, error) {
	return OpenWithOptions(dsn, nil)
}

// OpenWithOptions opens the store and applies the bootstrap schema.
func OpenWithOptions(dsn string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}
	if dsn == "" {
		return nil, fmt.Errorf("database url is empty")
	}

	dialect := DialectSQLite
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = DialectPostgres
	}

	var db *sql.DB
	var err error
	switch dialect {
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		maxOpen := opts.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 8
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		sqliteDSN := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
		db, err = sql.Open("sqlite", sqliteDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		// SQLite works best with a single writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	s := &Store{db: db, dialect: dialect}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports which backend the store talks to.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Version returns the server version string.
func (s *Store) Version(ctx context.Context) (string, error) {
	q := "SELECT sqlite_version()"
	if s.dialect == DialectPostgres {
		q = "SHOW server_version"
	}
	var version string
	if err := s.db.QueryRowContext(ctx, q).Scan(&version); err != nil {
		return "", err
	}
	return version, nil
}

// rebind rewrites ? placeholders into $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrate applies the bootstrap schema
func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmts := schemaV1SQLite
	if s.dialect == DialectPostgres {
		// Workers boot concurrently; serialize DDL on one advisory lock.
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(7402114)"); err != nil {
			return fmt.Errorf("failed to take migration lock: %w", err)
		}
		stmts = schemaV1Postgres
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
	}

	version, err := s.schemaVersion(ctx, tx)
	if err != nil {
		return err
	}
	if version < currentSchemaVersion {
		if _, err := tx.ExecContext(ctx, s.rebind(
			"INSERT INTO schema_version (version) VALUES (?) ON CONFLICT (version) DO NOTHING"),
			currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context, q querier) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transaction executes a function within a transaction. Any error from fn
// rolls the whole transaction back.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
