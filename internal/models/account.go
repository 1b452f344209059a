package models

import (
	"math"
	"time"
)

const (
	// account numbers are drawn uniformly from this closed range
	MinAccountNumber = 10000
	MaxAccountNumber = 99999
)

// Account holds a balance in whole currency units. The balance is never negative.
type Account struct {
	ID            int64     `json:"id"`
	AccountName   string    `json:"account_name"`
	AccountNumber int       `json:"account_number"`
	Balance       int64     `json:"balance"`
	CustomerID    int64     `json:"customer_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// Deposit adds amount to the balance and returns the entry to persist with it.
// The account is left untouched on error.
func (a *Account) Deposit(amount int64) (*LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if a.Balance > math.MaxInt64-amount {
		return nil, ErrBalanceOverflow
	}

	entry, err := NewLedgerEntry(a.ID, Deposit, amount, a.Balance+amount)
	if err != nil {
		return nil, err
	}
	a.Balance = entry.BalanceAfter
	return entry, nil
}

// Withdraw removes amount from the balance and returns the entry to persist with it.
// The account is left untouched on error.
func (a *Account) Withdraw(amount int64) (*LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > a.Balance {
		return nil, ErrInsufficientBalance
	}

	entry, err := NewLedgerEntry(a.ID, Withdrawal, amount, a.Balance-amount)
	if err != nil {
		return nil, err
	}
	a.Balance = entry.BalanceAfter
	return entry, nil
}

// ValidAccountNumber reports whether n lies in the range account numbers are drawn from.
func ValidAccountNumber(n int) bool {
	return n >= MinAccountNumber && n <= MaxAccountNumber
}

// AccountDetails is an account together with its full history.
type AccountDetails struct {
	Account Account       `json:"account"`
	Entries []LedgerEntry `json:"transactions"`
}

// AccountSummary is the per-account line of a customer summary.
type AccountSummary struct {
	Balance      int64 `json:"balance"`
	Transactions int   `json:"transactions"`
}

// DeleteAccountRequest carries a deletion the caller has already confirmed with the user.
type DeleteAccountRequest struct {
	AccountNumber int
	Confirmed     bool
}

type DeleteOutcome int

const (
	// AccountDeleted means the owner still has other accounts
	AccountDeleted DeleteOutcome = iota + 1

	// AccountAndCustomerDeleted means the account was the owner's last one
	AccountAndCustomerDeleted
)

func (o DeleteOutcome) String() string {
	switch o {
	case AccountDeleted:
		return "AccountDeleted"
	case AccountAndCustomerDeleted:
		return "AccountAndCustomerDeleted"
	default:
		return "Unknown"
	}
}
