package tablestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/drblury/cookflow/internal/runtime/jsoncodec"
	"github.com/drblury/cookflow/internal/runtime/logging"
)

// Dialect captures the statements that differ between SQL engines.
type Dialect struct {
	Name        string
	Driver      string
	createTable string
	upsert      string
	get         string
	missing     func(error) bool
}

// SQLiteDialect stores properties as JSON text.
var SQLiteDialect = Dialect{
	Name:   "sqlite",
	Driver: "sqlite3",
	createTable: `CREATE TABLE IF NOT EXISTS "%s" (
		partition_key TEXT NOT NULL,
		row_key TEXT NOT NULL,
		properties TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (partition_key, row_key)
	)`,
	upsert: `INSERT INTO "%s" (partition_key, row_key, properties, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (partition_key, row_key)
		DO UPDATE SET properties = excluded.properties, updated_at = excluded.updated_at`,
	get: `SELECT properties FROM "%s" WHERE partition_key = ? AND row_key = ?`,
	missing: func(err error) bool {
		return strings.Contains(err.Error(), "no such table")
	},
}

// PostgresDialect stores properties as JSONB.
var PostgresDialect = Dialect{
	Name:   "postgres",
	Driver: "postgres",
	createTable: `CREATE TABLE IF NOT EXISTS "%s" (
		partition_key TEXT NOT NULL,
		row_key TEXT NOT NULL,
		properties JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (partition_key, row_key)
	)`,
	upsert: `INSERT INTO "%s" (partition_key, row_key, properties, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (partition_key, row_key)
		DO UPDATE SET properties = EXCLUDED.properties, updated_at = EXCLUDED.updated_at`,
	get: `SELECT properties FROM "%s" WHERE partition_key = $1 AND row_key = $2`,
	missing: func(err error) bool {
		// 42P01 is undefined_table.
		return strings.Contains(err.Error(), "42P01") || strings.Contains(err.Error(), "does not exist")
	},
}

// SQL keeps each table as a relational table keyed on
// (partition_key, row_key) with the properties held as a JSON document.
type SQL struct {
	db      *sql.DB
	dialect Dialect
	logger  logging.ServiceLogger
	now     func() time.Time
}

// OpenSQLite opens (or creates) a SQLite database file. Use ":memory:" for
// a throwaway database.
func OpenSQLite(path string, logger logging.ServiceLogger) (*SQL, error) {
	if path == "" {
		return nil, errors.New("tablestore: sqlite file path is required")
	}
	db, err := sql.Open(SQLiteDialect.Driver, path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared and writes serialized
	db.SetMaxOpenConns(1)
	return NewSQL(db, SQLiteDialect, logger), nil
}

// OpenPostgres connects to PostgreSQL and verifies the connection.
func OpenPostgres(ctx context.Context, url string, logger logging.ServiceLogger) (*SQL, error) {
	if url == "" {
		return nil, errors.New("tablestore: PostgreSQL connection string is required")
	}
	db, err := sql.Open(PostgresDialect.Driver, url)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return NewSQL(db, PostgresDialect, logger), nil
}

// NewSQL wraps an already opened database.
func NewSQL(db *sql.DB, dialect Dialect, logger logging.ServiceLogger) *SQL {
	if logger == nil {
		logger = logging.NewNopServiceLogger()
	}
	return &SQL{
		db:      db,
		dialect: dialect,
		logger:  logger.With(logging.LogFields{"table_backend": dialect.Name}),
		now:     time.Now,
	}
}

func (s *SQL) CreateTable(ctx context.Context, name string) error {
	if err := validateTableName(name); err != nil {
		return err
	}
	// #nosec G201 - table name is checked by validateTableName
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(s.dialect.createTable, name)); err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	s.logger.Debug("Table ready", logging.LogFields{"table": name})
	return nil
}

func (s *SQL) Upsert(ctx context.Context, table string, entity Entity) error {
	if err := validateTableName(table); err != nil {
		return err
	}
	if err := validateKeys(entity); err != nil {
		return err
	}
	props := entity.Properties
	if props == nil {
		props = map[string]any{}
	}
	doc, err := jsoncodec.MarshalToString(props)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}

	// #nosec G201 - table name is checked by validateTableName
	query := fmt.Sprintf(s.dialect.upsert, table)
	if _, err := s.db.ExecContext(ctx, query, entity.PartitionKey, entity.RowKey, doc, s.now().UTC()); err != nil {
		if s.dialect.missing(err) {
			return fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return fmt.Errorf("upsert into %q: %w", table, err)
	}
	return nil
}

func (s *SQL) Get(ctx context.Context, table, partitionKey, rowKey string) (Entity, bool, error) {
	if err := validateTableName(table); err != nil {
		return Entity{}, false, err
	}

	var doc []byte
	// #nosec G201 - table name is checked by validateTableName
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(s.dialect.get, table), partitionKey, rowKey).Scan(&doc)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return Entity{}, false, nil
	case err != nil:
		if s.dialect.missing(err) {
			return Entity{}, false, fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return Entity{}, false, fmt.Errorf("read from %q: %w", table, err)
	}

	props := map[string]any{}
	if err := jsoncodec.Unmarshal(doc, &props); err != nil {
		return Entity{}, false, fmt.Errorf("decode properties: %w", err)
	}
	return Entity{PartitionKey: partitionKey, RowKey: rowKey, Properties: props}, true, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
