package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/abkawan/banking-directory/internal/db"
	"github.com/abkawan/banking-directory/internal/models"
)

// CreateAccount opens an account for a stored customer. The account number is
// drawn at random and redrawn until the store confirms it is free. A positive
// initialBalance is recorded as an opening deposit.
func (d *Directory) CreateAccount(ctx context.Context, customer *models.Customer, initialBalance int64) (*models.Account, error) {
	if customer == nil || customer.ID == 0 {
		return nil, models.ErrCustomerNotFound
	}
	// Validate initial balance
	if initialBalance < 0 {
		return nil, models.ErrInvalidAmount
	}

	unlock := d.locks.lock(customerKey(customer.ID))
	defer unlock()

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		number := d.nextNumber()
		if !models.ValidAccountNumber(number) {
			return nil, fmt.Errorf("%w: generated %d", models.ErrAccountNumberOutOfRange, number)
		}

		account, opening, err := d.insertAccount(ctx, customer.ID, number, initialBalance)
		if errors.Is(err, models.ErrDuplicateAccountNumber) {
			d.logger.Debug("Account number taken, drawing another", "account_number", number, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}

		d.logger.Info("Account created",
			"account_number", account.AccountNumber,
			"customer_id", account.CustomerID,
			"balance", account.Balance,
		)
		d.publish(ctx, *account, opening)
		return account, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", models.ErrAccountNumbersExhausted, d.maxAttempts)
}

func (d *Directory) insertAccount(ctx context.Context, customerID int64, number int, initialBalance int64) (*models.Account, *models.LedgerEntry, error) {
	var (
		account *models.Account
		opening *models.LedgerEntry
	)
	err := d.store.WithTx(ctx, func(tx *db.Tx) error {
		owner, err := tx.CustomerByIDForUpdate(ctx, customerID)
		if err != nil {
			return err
		}

		taken, err := tx.AccountNumberExists(ctx, number)
		if err != nil {
			return err
		}
		if taken {
			return models.ErrDuplicateAccountNumber
		}

		account = &models.Account{
			AccountName:   owner.Name,
			AccountNumber: number,
			CustomerID:    owner.ID,
		}
		if err := tx.InsertAccount(ctx, account); err != nil {
			return err
		}
		if initialBalance == 0 {
			return nil
		}

		if opening, err = account.Deposit(initialBalance); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, account.ID, account.Balance); err != nil {
			return err
		}
		return tx.InsertEntry(ctx, opening)
	})
	if err != nil {
		return nil, nil, err
	}
	return account, opening, nil
}

// retrieves an account by its number
func (d *Directory) FindAccountByNumber(ctx context.Context, number int) (*models.Account, error) {
	return d.store.AccountByNumber(ctx, number)
}

func (d *Directory) Balance(ctx context.Context, number int) (int64, error) {
	account, err := d.store.AccountByNumber(ctx, number)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// AccountDetails returns the account with its whole history.
func (d *Directory) AccountDetails(ctx context.Context, number int) (*models.AccountDetails, error) {
	account, err := d.store.AccountByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	entries, err := d.store.EntriesByAccount(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}
	return &models.AccountDetails{Account: *account, Entries: entries}, nil
}

// DeleteAccount removes a confirmed account together with its ledger entries,
// and the owning customer when this was their last account.
func (d *Directory) DeleteAccount(ctx context.Context, req models.DeleteAccountRequest) (models.DeleteOutcome, error) {
	if !req.Confirmed {
		return 0, models.ErrDeletionNotConfirmed
	}

	unlock := d.locks.lock(accountKey(req.AccountNumber))
	defer unlock()

	var (
		outcome models.DeleteOutcome
		account *models.Account
		removed int64
	)
	err := d.store.WithTx(ctx, func(tx *db.Tx) error {
		var err error
		if account, err = tx.AccountByNumber(ctx, req.AccountNumber); err != nil {
			return err
		}
		// lock the owner first so a concurrent delete or create on the same
		// customer sees the final account count
		if _, err = tx.CustomerByIDForUpdate(ctx, account.CustomerID); err != nil {
			return err
		}
		if account, err = tx.AccountByNumberForUpdate(ctx, req.AccountNumber); err != nil {
			return err
		}

		if removed, err = tx.DeleteEntries(ctx, account.ID); err != nil {
			return err
		}
		if err = tx.DeleteAccount(ctx, account.ID); err != nil {
			return err
		}

		remaining, err := tx.CountAccounts(ctx, account.CustomerID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			outcome = models.AccountDeleted
			return nil
		}
		if err = tx.DeleteCustomer(ctx, account.CustomerID); err != nil {
			return err
		}
		outcome = models.AccountAndCustomerDeleted
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete account: %w", err)
	}

	d.logger.Info("Account deleted",
		"account_number", account.AccountNumber,
		"customer_id", account.CustomerID,
		"entries_removed", removed,
		"outcome", outcome.String(),
	)
	return outcome, nil
}
