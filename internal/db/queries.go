package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/abkawan/banking-directory/internal/models"
)

// queries implements every statement once, over either the pool or a transaction.
type queries struct {
	q querier
	d dialect
}

const customerColumns = `id, name, email`

const accountColumns = `id, account_name, account_number, balance, customer_id, created_at`

const entryColumns = `id, reference, transaction_type, amount, balance_after, account_id, created_at`

// InsertCustomer stores c and sets its ID.
func (q queries) InsertCustomer(ctx context.Context, c *models.Customer) error {
	err := q.q.QueryRowContext(ctx,
		`INSERT INTO customers (name, email) VALUES ($1, $2) RETURNING id`,
		c.Name, c.Email,
	).Scan(&c.ID)
	return classify("insert customer", err)
}

// retrieves a customer by exact email
func (q queries) CustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = $1`, email)
	return scanCustomer(row, "get customer by email")
}

// retrieves a customer by ID
func (q queries) CustomerByID(ctx context.Context, id int64) (*models.Customer, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id)
	return scanCustomer(row, "get customer")
}

// CustomerByIDForUpdate locks the customer row, serializing work on its accounts.
func (q queries) CustomerByIDForUpdate(ctx context.Context, id int64) (*models.Customer, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`+q.d.forUpdate, id)
	return scanCustomer(row, "get customer for update")
}

func (q queries) ListCustomers(ctx context.Context) ([]models.Customer, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY id`)
	if err != nil {
		return nil, classify("list customers", err)
	}
	defer rows.Close()

	customers := make([]models.Customer, 0)
	for rows.Next() {
		var c models.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Email); err != nil {
			return nil, classify("scan customer", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list customers", err)
	}
	return customers, nil
}

// DeleteCustomer removes the customer row. Callers check for remaining accounts first.
func (q queries) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return classify("delete customer", err)
	}
	return expectOne(res, "delete customer", models.ErrCustomerNotFound)
}

func (q queries) CountAccounts(ctx context.Context, customerID int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE customer_id = $1`, customerID).Scan(&n)
	if err != nil {
		return 0, classify("count accounts", err)
	}
	return n, nil
}

func (q queries) AccountNumberExists(ctx context.Context, number int) (bool, error) {
	var exists int
	err := q.q.QueryRowContext(ctx,
		`SELECT 1 FROM accounts WHERE account_number = $1 LIMIT 1`, number).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify("check account number", err)
	}
	return true, nil
}

// InsertAccount stores a and sets its ID. A taken account number yields
// models.ErrDuplicateAccountNumber.
func (q queries) InsertAccount(ctx context.Context, a *models.Account) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	err := q.q.QueryRowContext(ctx, `
	INSERT INTO accounts (account_name, account_number, balance, customer_id, created_at)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id`,
		a.AccountName, a.AccountNumber, a.Balance, a.CustomerID, a.CreatedAt,
	).Scan(&a.ID)
	return classify("insert account", err)
}

// retrieves an account by its public number
func (q queries) AccountByNumber(ctx context.Context, number int) (*models.Account, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number)
	return scanAccount(row, "get account")
}

// AccountByNumberForUpdate is AccountByNumber with a row lock where the engine has one.
func (q queries) AccountByNumberForUpdate(ctx context.Context, number int) (*models.Account, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`+q.d.forUpdate, number)
	return scanAccount(row, "get account for update")
}

func (q queries) AccountsByCustomer(ctx context.Context, customerID int64) ([]models.Account, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1 ORDER BY id`, customerID)
	if err != nil {
		return nil, classify("list customer accounts", err)
	}
	return scanAccounts(rows)
}

// ListAccounts returns every account, grouped by owner.
func (q queries) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY customer_id, id`)
	if err != nil {
		return nil, classify("list accounts", err)
	}
	return scanAccounts(rows)
}

// updates the account balance
func (q queries) UpdateBalance(ctx context.Context, accountID, balance int64) error {
	res, err := q.q.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`, balance, accountID)
	if err != nil {
		return classify("update balance", err)
	}
	return expectOne(res, "update balance", models.ErrAccountNotFound)
}

func (q queries) DeleteAccount(ctx context.Context, accountID int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return classify("delete account", err)
	}
	return expectOne(res, "delete account", models.ErrAccountNotFound)
}

// InsertEntry appends e to the ledger and sets its ID.
func (q queries) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	err := q.q.QueryRowContext(ctx, `
	INSERT INTO ledger_entries (reference, transaction_type, amount, balance_after, account_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id`,
		e.Reference, string(e.Type), e.Amount, e.BalanceAfter, e.AccountID, e.CreatedAt,
	).Scan(&e.ID)
	return classify("insert ledger entry", err)
}

// EntriesByAccount returns the account's entries in insertion order, never nil.
func (q queries) EntriesByAccount(ctx context.Context, accountID int64) ([]models.LedgerEntry, error) {
	rows, err := q.q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, classify("list ledger entries", err)
	}
	defer rows.Close()

	entries := make([]models.LedgerEntry, 0)
	for rows.Next() {
		var e models.LedgerEntry
		var txType string
		if err := rows.Scan(&e.ID, &e.Reference, &txType, &e.Amount, &e.BalanceAfter, &e.AccountID, &e.CreatedAt); err != nil {
			return nil, classify("scan ledger entry", err)
		}
		e.Type = models.TransactionType(txType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list ledger entries", err)
	}
	return entries, nil
}

func (q queries) CountEntries(ctx context.Context, accountID int64) (int, error) {
	var n int
	err := q.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE account_id = $1`, accountID).Scan(&n)
	if err != nil {
		return 0, classify("count ledger entries", err)
	}
	return n, nil
}

// DeleteEntries removes the account's whole history and reports how many rows went.
func (q queries) DeleteEntries(ctx context.Context, accountID int64) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM ledger_entries WHERE account_id = $1`, accountID)
	if err != nil {
		return 0, classify("delete ledger entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("delete ledger entries", err)
	}
	return n, nil
}

func scanCustomer(row *sql.Row, op string) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrCustomerNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return &c, nil
}

func scanAccount(row *sql.Row, op string) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.AccountName, &a.AccountNumber, &a.Balance, &a.CustomerID, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrAccountNotFound
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return &a, nil
}

func scanAccounts(rows *sql.Rows) ([]models.Account, error) {
	defer rows.Close()

	accounts := make([]models.Account, 0)
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.ID, &a.AccountName, &a.AccountNumber, &a.Balance, &a.CustomerID, &a.CreatedAt); err != nil {
			return nil, classify("scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list accounts", err)
	}
	return accounts, nil
}

func expectOne(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	switch n {
	case 0:
		return notFound
	case 1:
		return nil
	default:
		return persistence(op, fmt.Errorf("expected 1 row affected, got %d", n))
	}
}
