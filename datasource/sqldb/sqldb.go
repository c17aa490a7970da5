// Package sqldb runs SQL directly through database/sql, with pgx for
// PostgreSQL and the pure-Go modernc driver for SQLite files.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/inspirepan/copilot/sqltools"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const defaultTimeout = 30 * time.Second

// Config selects the driver and connection string.
type Config struct {
	Dialect sqltools.Dialect
	DSN     string
	// Timeout bounds each query; zero means 30s.
	Timeout time.Duration
}

// DB implements sqltools.Datasource over a *sql.DB.
type DB struct {
	db      *sql.DB
	dialect sqltools.Dialect
	timeout time.Duration
}

// Open connects and pings the database.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	driver, err := driverName(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, cfg.Dialect, cfg.Timeout), nil
}

// New wraps an existing handle.
func New(db *sql.DB, dialect sqltools.Dialect, timeout time.Duration) *DB {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &DB{db: db, dialect: dialect, timeout: timeout}
}

func driverName(d sqltools.Dialect) (string, error) {
	switch d {
	case sqltools.DialectPostgres:
		return "pgx", nil
	case sqltools.DialectSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", d)
	}
}

func (d *DB) Dialect() sqltools.Dialect { return d.dialect }

// Query runs sql and reads every row.
func (d *DB) Query(ctx context.Context, query string) (*sqltools.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &sqltools.Result{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Exec runs a statement that returns no rows.
func (d *DB) Exec(ctx context.Context, stmt string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	_, err := d.db.ExecContext(ctx, stmt)
	return err
}

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

var _ sqltools.Datasource = (*DB)(nil)
