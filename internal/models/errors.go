package models

import (
	"errors"
	"fmt"
)

var (
	// validation failures
	ErrInvalidName            = errors.New("name must contain only letters and cannot be empty")
	ErrInvalidEmail           = errors.New("invalid email address")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidTransactionType = errors.New("transaction type must be Deposit or Withdrawal")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrBalanceOverflow        = errors.New("deposit would overflow the account balance")

	// lookups
	ErrAccountNotFound  = errors.New("account not found")
	ErrCustomerNotFound = errors.New("customer not found")

	// directory rules
	ErrDeletionNotConfirmed    = errors.New("account deletion was not confirmed")
	ErrCustomerHasAccounts     = errors.New("customer still has accounts")
	ErrAccountNumbersExhausted = errors.New("could not allocate a free account number")
	ErrAccountNumberOutOfRange = errors.New("account number outside the allowed range")

	// archive
	ErrArchivedEntryNotFound = errors.New("archived ledger entry not found")

	// ErrDuplicateAccountNumber and ErrDuplicateEmail are raised by the store on
	// unique-constraint violations. The directory retries or recovers from both.
	ErrDuplicateAccountNumber = errors.New("duplicate account number")
	ErrDuplicateEmail         = errors.New("duplicate customer email")

	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError wraps a storage-layer fault with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}
