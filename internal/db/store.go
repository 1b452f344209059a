package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/abkawan/banking-directory/internal/models"
)

// dialect holds the SQL that differs between the supported engines.
type dialect struct {
	name      string
	schema    []string
	forUpdate string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the relational backing store for customers, accounts and ledger entries.
type Store struct {
	queries
	db *sql.DB
}

// Tx exposes the same queries bound to one database transaction.
type Tx struct {
	queries
	tx *sql.Tx
}

func newStore(db *sql.DB, d dialect) *Store {
	return &Store{queries: queries{q: db, d: d}, db: db}
}

// NewStoreFromDB wraps an already opened handle. driver is "postgres" or "sqlite".
func NewStoreFromDB(db *sql.DB, driver string) (*Store, error) {
	switch driver {
	case postgresDialect.name:
		return newStore(db, postgresDialect), nil
	case sqliteDialect.name:
		return newStore(db, sqliteDialect), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Open connects to driver ("postgres" or "sqlite") at dsn.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case postgresDialect.name:
		return NewPostgres(dsn)
	case sqliteDialect.name:
		return NewSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Driver() string {
	return s.d.name
}

// initialize the database schema
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range s.d.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// WithTx runs fn inside one transaction. Any error from fn, or a panic, rolls
// the transaction back; otherwise it is committed.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(&Tx{queries: queries{q: sqlTx, d: s.d}, tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return persistence("commit transaction", err)
	}
	return nil
}

func persistence(op string, err error) error {
	return &models.PersistenceError{Op: op, Err: err}
}

// classify turns a driver error into a directory error. Unique violations on the
// known columns map to their sentinels, anything else is a persistence failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return persistence(op, err)
	}
	if column, ok := uniqueViolation(err); ok {
		switch column {
		case "account_number":
			return fmt.Errorf("%s: %w", op, models.ErrDuplicateAccountNumber)
		case "email":
			return fmt.Errorf("%s: %w", op, models.ErrDuplicateEmail)
		}
	}
	return persistence(op, err)
}
