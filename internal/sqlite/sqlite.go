// Package sqlite stores the block planner's data in SQLite. Writes go through a single connection while reads
// share a pool, and the schema in schema.sql is applied declaratively on startup.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	_ "embed"
)

//go:embed schema.sql
var schemaDefinition string

type Database struct {
	ReadWrite *sql.DB
	ReadOnly  *sql.DB
	logger    *slog.Logger
}

// NewDatabase opens the database at url, migrates it to the embedded schema and starts the background
// optimizer, which stops when ctx is done.
//
// Use ":memory:" as url for a private in-memory database, which is what the tests do.
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	db, err := connect(ctx, url, logger)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err = db.migrateTo(ctx, schemaDefinition); err != nil {
		return nil, errors.Join(fmt.Errorf("migrate schema: %w", err), db.Close())
	}

	go db.startDatabaseOptimizer(ctx, time.Hour)

	return db, nil
}

//nolint:gochecknoglobals // the driver may only be registered once per process.
var registerDriver sync.Once

const optimizedDriver = "sqlite3optimized"

func registerOptimizedDriver() {
	sql.Register(optimizedDriver,
		&sqlite3.SQLiteDriver{
			Extensions: nil,
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				// Temporary indices live in memory and pages are memory-mapped to save syscalls.
				if _, err := conn.Exec("PRAGMA temp_store = memory;"+
					"PRAGMA mmap_size = 30000000000;", nil); err != nil {
					return fmt.Errorf("exec optimization pragmas: %w", err)
				}
				return nil
			},
		})
}

// dsnOptions are the go-sqlite3 connection options shared by both pools. See
// https://pkg.go.dev/github.com/mattn/go-sqlite3#SQLiteDriver.Open.
func dsnOptions() string {
	return strings.Join([]string{
		"_loc=auto",
		"_defer_foreign_keys=1",
		"_journal_mode=wal",
		"_busy_timeout=5000",
		"_synchronous=normal",
		"_foreign_keys=on",
	}, "&")
}

func connect(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	// Shared cache lets both pools see the same in-memory database. A random name keeps parallel tests apart.
	// See https://www.sqlite.org/inmemorydb.html.
	memory := ""
	if strings.Contains(url, ":memory:") {
		url = rand.Text()
		memory = "&mode=memory&cache=shared"
	}
	readWriteDSN := fmt.Sprintf("file:%s?mode=rwc&_txlock=immediate&%s%s", url, dsnOptions(), memory)
	readOnlyDSN := fmt.Sprintf("file:%s?mode=ro&_txlock=deferred&_query_only=true&%s%s", url, dsnOptions(), memory)

	registerDriver.Do(registerOptimizedDriver)

	readWrite, err := sql.Open(optimizedDriver, readWriteDSN)
	if err != nil {
		return nil, fmt.Errorf("open read-write database: %w", err)
	}
	// SQLite allows a single writer, so the write pool is a single connection.
	readWrite.SetMaxOpenConns(1)
	readWrite.SetMaxIdleConns(1)
	readWrite.SetConnMaxLifetime(time.Hour)
	readWrite.SetConnMaxIdleTime(time.Hour)

	// sql.DB connects lazily. The ping creates the database file before the read-only pool opens it.
	if err = readWrite.PingContext(ctx); err != nil {
		return nil, errors.Join(fmt.Errorf("ping read-write database: %w", err), readWrite.Close())
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "opened database", slog.String("dsn", readWriteDSN))

	readOnly, err := sql.Open(optimizedDriver, readOnlyDSN)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("open read-only database: %w", err), readWrite.Close())
	}
	const maxReadConns = 10
	readOnly.SetMaxOpenConns(maxReadConns)
	readOnly.SetMaxIdleConns(maxReadConns)
	readOnly.SetConnMaxLifetime(time.Hour)
	readOnly.SetConnMaxIdleTime(time.Hour)

	return &Database{
		ReadWrite: readWrite,
		ReadOnly:  readOnly,
		logger:    logger,
	}, nil
}

// Close closes both connection pools.
func (db *Database) Close() error {
	return errors.Join(db.ReadOnly.Close(), db.ReadWrite.Close())
}

// Rollback returns a function that rolls tx back unless it has already been committed. Failures are logged.
func (db *Database) Rollback(ctx context.Context, tx *sql.Tx) func() {
	return func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back transaction",
				slog.Any("error", fmt.Errorf("rollback: %w", err)))
		}
	}
}
