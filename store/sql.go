package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Dialect selects placeholder and upsert syntax for the SQL adapter.
type Dialect int

const (
	// DialectPostgres targets PostgreSQL (driver "pgx" from jackc/pgx/v5/stdlib).
	DialectPostgres Dialect = iota
	// DialectSQLite targets SQLite (driver "sqlite" from modernc.org/sqlite).
	DialectSQLite
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "session_blobs"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL stores the blob in a single row keyed by the storage key.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	table   string
	key     string
	now     func() time.Time

	upsertQuery string
	selectQuery string
	deleteQuery string
}

var _ Adapter = (*SQL)(nil)

// SQLConfig configures NewSQL.
type SQLConfig struct {
	Dialect Dialect
	Table   string
	Key     string
}

// NewSQL builds a SQL adapter over an open *sql.DB.
func NewSQL(db *sql.DB, cfg SQLConfig) (*SQL, error) {
	if db == nil {
		return nil, errors.New("sql store requires a database handle")
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}

	s := &SQL{
		db:      db,
		dialect: cfg.Dialect,
		table:   table,
		key:     key,
		now:     time.Now,
	}

	switch cfg.Dialect {
	case DialectPostgres:
		s.upsertQuery = "INSERT INTO " + table + " (storage_key, blob, updated_at) VALUES ($1, $2, $3) " +
			"ON CONFLICT (storage_key) DO UPDATE SET blob = EXCLUDED.blob, updated_at = EXCLUDED.updated_at"
		s.selectQuery = "SELECT blob FROM " + table + " WHERE storage_key = $1"
		s.deleteQuery = "DELETE FROM " + table + " WHERE storage_key = $1"
	case DialectSQLite:
		s.upsertQuery = "INSERT INTO " + table + " (storage_key, blob, updated_at) VALUES (?, ?, ?) " +
			"ON CONFLICT (storage_key) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at"
		s.selectQuery = "SELECT blob FROM " + table + " WHERE storage_key = ?"
		s.deleteQuery = "DELETE FROM " + table + " WHERE storage_key = ?"
	default:
		return nil, fmt.Errorf("unsupported dialect %d", cfg.Dialect)
	}

	return s, nil
}

func (s *SQL) Name() string {
	if s.dialect == DialectSQLite {
		return "sqlite"
	}
	return "postgres"
}

// EnsureSchema creates the blob table when it does not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	blobType := "BYTEA"
	if s.dialect == DialectSQLite {
		blobType = "BLOB"
	}
	ddl := "CREATE TABLE IF NOT EXISTS " + s.table + " (" +
		"storage_key TEXT PRIMARY KEY, " +
		"blob " + blobType + " NOT NULL, " +
		"updated_at BIGINT NOT NULL)"
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *SQL) Save(ctx context.Context, blob []byte) error {
	if blob == nil {
		blob = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, s.upsertQuery, s.key, blob, s.now().UnixMilli()); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *SQL) Load(ctx context.Context) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, s.selectQuery, s.key).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, wrapUnavailable(err)
	}
	return blob, nil
}

func (s *SQL) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.deleteQuery, s.key); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}
