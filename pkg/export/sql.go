package export

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectMSSQL    = "mssql"
	DialectODBC     = "odbc"
)

var ErrInvalidTable = errors.New("export: invalid table name")

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLConfig selects the target database. KeyField names the item field
// stored in item_id and defaults to "id".
type SQLConfig struct {
	Dialect  string `yaml:"dialect"`
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	KeyField string `yaml:"key_field"`
}

// SQLSink stores items as JSON documents in a single table:
//
//	collection | item_id | data | exported_at
//
// The table is created when missing, except over ODBC where it must exist.
// The ODBC dialect is available in binaries built with -tags odbc.
type SQLSink struct {
	db       *sql.DB
	dialect  string
	table    string
	keyField string
	owned    bool
	insert   string
}

// OpenSQLSink opens the database named by cfg and prepares the table.
func OpenSQLSink(ctx context.Context, cfg SQLConfig) (*SQLSink, error) {
	driver, err := driverName(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", cfg.Dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("export: ping %s: %w", cfg.Dialect, err)
	}
	s, err := NewSQLSink(ctx, db, cfg.Dialect, cfg.Table, cfg.KeyField)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLSink writes through an existing handle. Close leaves db open.
func NewSQLSink(ctx context.Context, db *sql.DB, dialect, table, keyField string) (*SQLSink, error) {
	if _, err := driverName(dialect); err != nil {
		return nil, err
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	if keyField == "" {
		keyField = "id"
	}
	s := &SQLSink{db: db, dialect: dialect, table: table, keyField: keyField}
	s.insert = fmt.Sprintf("INSERT INTO %s (collection, item_id, data, exported_at) VALUES (%s)",
		table, placeholders(dialect, 4))

	if ddl := createTable(dialect, table); ddl != "" {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("export: create table %s: %w", table, err)
		}
	}
	return s, nil
}

// Write inserts the batch in one transaction.
func (s *SQLSink) Write(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("export: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.insert)
	if err != nil {
		return fmt.Errorf("export: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, item := range b.Items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("export: marshal item: %w", err)
		}
		var id any
		if v, ok := item[s.keyField]; ok && v != nil {
			id = fmt.Sprint(v)
		}
		if _, err := stmt.ExecContext(ctx, b.Collection, id, string(data), now); err != nil {
			return fmt.Errorf("export: insert into %s: %w", s.table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLSink) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func driverName(dialect string) (string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	case DialectMySQL:
		return "mysql", nil
	case DialectMSSQL:
		return "mssql", nil
	case DialectODBC:
		return "odbc", nil
	default:
		return "", fmt.Errorf("export: unsupported SQL dialect %q", dialect)
	}
}

func placeholders(dialect string, n int) string {
	p := make([]string, n)
	for i := range p {
		switch dialect {
		case DialectPostgres:
			p[i] = fmt.Sprintf("$%d", i+1)
		case DialectMSSQL:
			p[i] = fmt.Sprintf("@p%d", i+1)
		default:
			p[i] = "?"
		}
	}
	return strings.Join(p, ", ")
}

func createTable(dialect, table string) string {
	switch dialect {
	case DialectMSSQL:
		return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (
	collection NVARCHAR(255) NOT NULL,
	item_id NVARCHAR(255) NULL,
	data NVARCHAR(MAX) NOT NULL,
	exported_at DATETIME2 NOT NULL)`, table, table)
	case DialectODBC:
		return ""
	default:
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	collection VARCHAR(255) NOT NULL,
	item_id VARCHAR(255) NULL,
	data TEXT NOT NULL,
	exported_at TIMESTAMP NOT NULL)`, table)
	}
}
