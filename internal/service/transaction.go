package service

import (
	"context"
	"fmt"

	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/models"
)

// Deposit credits amount to the account and records the entry atomically with
// the new balance.
func (d *Directory) Deposit(ctx context.Context, number int, amount int64) (*models.LedgerEntry, error) {
	return d.apply(ctx, number, amount, (*models.Account).Deposit)
}

// Withdraw debits amount from the account. An overdraft leaves the balance and
// the ledger unchanged.
func (d *Directory) Withdraw(ctx context.Context, number int, amount int64) (*models.LedgerEntry, error) {
	return d.apply(ctx, number, amount, (*models.Account).Withdraw)
}

func (d *Directory) apply(ctx context.Context, number int, amount int64, op func(*models.Account, int64) (*models.LedgerEntry, error)) (*models.LedgerEntry, error) {
	if amount <= 0 {
		return nil, models.ErrInvalidAmount
	}

	unlock := d.locks.lock(accountKey(number))
	defer unlock()

	var (
		account *models.Account
		entry   *models.LedgerEntry
	)
	err := d.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		if account, err = tx.AccountByNumberForUpdate(ctx, number); err != nil {
			return err
		}
		if entry, err = op(account, amount); err != nil {
			return err
		}
		if err = tx.UpdateBalance(ctx, account.ID, account.Balance); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("Transaction recorded",
		"account_number", number,
		"type", entry.Type,
		"amount", entry.Amount,
		"balance", entry.BalanceAfter,
	)
	d.publish(ctx, *account, entry)
	return entry, nil
}

// TransactionsFor returns the account's entries in the order they were
// recorded. An account without history yields an empty slice.
func (d *Directory) TransactionsFor(ctx context.Context, number int) ([]models.LedgerEntry, error) {
	account, err := d.store.AccountByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	entries, err := d.store.EntriesByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return entries, nil
}
