package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Driver names registered by the pgx stdlib and go-ora packages.
const (
	DriverPostgres = "pgx"
	DriverOracle   = "oracle"
)

type DB struct {
	*sql.DB
	Dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{
		DB:      db,
		Dialect: dialect,
	}
}

// DialectFor maps an engine name (postgres, oracle) to its driver and dialect.
func DialectFor(engine string) (string, Dialect, error) {
	switch engine {
	case "postgres":
		return DriverPostgres, &PostgresDialect{}, nil
	case "oracle":
		return DriverOracle, &OracleDialect{}, nil
	default:
		return "", nil, fmt.Errorf("unsupported database driver: %s", engine)
	}
}

// Open connects to the instrument store and verifies the connection.
func Open(ctx context.Context, engine, dsn string) (*DB, error) {
	driver, dialect, err := DialectFor(engine)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, dialect), nil
}

// WithTx runs fn inside a transaction. The transaction is rolled back when fn
// fails or panics.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			rollback(ctx, tx, db.Dialect)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		rollback(ctx, tx, db.Dialect)
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func rollback(ctx context.Context, tx *sql.Tx, dialect Dialect) {
	if err := tx.Rollback(); err != nil {
		slog.WarnContext(ctx, "Failed to roll back transaction", "dialect", dialect.Name(), "error", err)
	}
}
