package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_name TEXT NOT NULL,
			account_number INTEGER NOT NULL UNIQUE,
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			customer_id INTEGER NOT NULL REFERENCES customers(id),
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT NOT NULL UNIQUE,
			transaction_type TEXT NOT NULL CHECK (transaction_type IN ('Deposit', 'Withdrawal')),
			amount INTEGER NOT NULL CHECK (amount > 0),
			balance_after INTEGER NOT NULL,
			account_id INTEGER NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_account_id_idx ON ledger_entries (account_id, id)`,
	},
}

// sqlitePragmas turn on foreign keys and make every transaction take the
// write lock up front, so concurrent writers queue instead of failing mid-way.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"

// NewSQLite opens (creating if needed) the SQLite database at path.
// ":memory:" gives a private in-memory database.
func NewSQLite(path string) (*Store, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}
	return newStore(db, sqliteDialect), nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + sqlitePragmas
}
