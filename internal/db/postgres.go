package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name:      "postgres",
	forUpdate: " FOR UPDATE",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id BIGSERIAL PRIMARY KEY,
			account_name TEXT NOT NULL,
			account_number INTEGER NOT NULL UNIQUE,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			customer_id BIGINT NOT NULL REFERENCES customers(id),
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id BIGSERIAL PRIMARY KEY,
			reference VARCHAR(36) NOT NULL UNIQUE,
			transaction_type VARCHAR(16) NOT NULL CHECK (transaction_type IN ('Deposit', 'Withdrawal')),
			amount BIGINT NOT NULL CHECK (amount > 0),
			balance_after BIGINT NOT NULL,
			account_id BIGINT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_account_id_idx ON ledger_entries (account_id, id)`,
	},
}

// NewPostgres connects to PostgreSQL at connStr
func NewPostgres(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return newStore(db, postgresDialect), nil
}
