// Package database provides database connection and initialization functionality.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB wraps the database connection with the dialect it speaks
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
	path    string // empty for server databases
	name    string // Database name for logging
}

// Config holds database configuration
type Config struct {
	Driver string // "sqlite" or "mysql"
	DSN    string // file path for sqlite, go-sql-driver DSN for mysql
	Name   string // Friendly name for logging
}

// New opens the store, applies connection settings and verifies it answers.
func New(cfg Config) (*DB, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "trinistocks"
	}

	var (
		connStr string
		path    string
	)
	switch dialect {
	case SQLite:
		path, err = ensureSQLitePath(cfg.DSN)
		if err != nil {
			return nil, err
		}
		connStr = buildSQLiteConnectionString(path)
	case MySQL:
		connStr, err = buildMySQLConnectionString(cfg.DSN)
		if err != nil {
			return nil, err
		}
	}

	conn, err := sqlx.Open(cfg.Driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Name, err)
	}

	configureConnectionPool(conn.DB, dialect)

	// Test connection with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", cfg.Name, err)
	}

	return &DB{conn: conn, dialect: dialect, path: path, name: cfg.Name}, nil
}

// Wrap adopts an already open connection. Tests use it to run the
// repositories against a driver of their choosing.
func Wrap(conn *sql.DB, driverName string, name string) (*DB, error) {
	dialect, err := DialectFor(driverName)
	if err != nil {
		return nil, err
	}
	return &DB{conn: sqlx.NewDb(conn, driverName), dialect: dialect, name: name}, nil
}

func ensureSQLitePath(dsn string) (string, error) {
	// file: URIs (in-memory databases) are used as-is
	if strings.HasPrefix(dsn, "file:") {
		return dsn, nil
	}
	absPath, err := filepath.Abs(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path to absolute: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}
	return absPath, nil
}

// buildSQLiteConnectionString enables WAL so the daily-summary workers can
// write concurrently, and waits on locks instead of failing with SQLITE_BUSY.
func buildSQLiteConnectionString(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	connStr := path + sep + "_pragma=journal_mode(WAL)"
	connStr += "&_pragma=synchronous(NORMAL)"
	connStr += "&_pragma=busy_timeout(10000)"
	connStr += "&_pragma=foreign_keys(1)"
	connStr += "&_pragma=temp_store(MEMORY)"
	connStr += "&_pragma=cache_size(-64000)" // 64MB cache (negative = KB)
	return connStr
}

// buildMySQLConnectionString forces the settings the pipeline relies on:
// DATE columns scan as time.Time and migrations may hold several statements.
func buildMySQLConnectionString(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql DSN: %w", err)
	}
	cfg.ParseTime = true
	cfg.MultiStatements = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}
	return cfg.FormatDSN(), nil
}

// configureConnectionPool sets up the connection pool for batch runs
func configureConnectionPool(conn *sql.DB, dialect Dialect) {
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(time.Hour)
	conn.SetConnMaxIdleTime(10 * time.Minute)

	// a single writer avoids lock churn inside one process
	if dialect == SQLite {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying connection
// Used by repositories to execute queries
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// Dialect returns the SQL dialect of the store
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Name returns the database name for logging
func (db *DB) Name() string {
	return db.name
}

// Path returns the database file path (sqlite only)
func (db *DB) Path() string {
	return db.path
}

// WithTransaction executes a function within a database transaction.
// If the function returns an error or panics, the transaction is rolled back.
func WithTransaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) (err error) {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rollbackErr)
			} else {
				err = fmt.Errorf("transaction failed: %w", err)
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(tx)
	return err
}

// HealthCheck pings the store and, for SQLite, runs a quick integrity check
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed for %s: %w", db.name, err)
	}
	if db.dialect != SQLite {
		return nil
	}

	var result string
	if err := db.conn.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed for %s: %w", db.name, err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed for %s: %s", db.name, result)
	}
	return nil
}
