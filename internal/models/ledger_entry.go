package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	// Deposit represents money paid into an account
	Deposit TransactionType = "Deposit"

	// Withdrawal represents money taken out of an account
	Withdrawal TransactionType = "Withdrawal"
)

func (t TransactionType) Valid() bool {
	return t == Deposit || t == Withdrawal
}

// LedgerEntry is the immutable record of one deposit or withdrawal.
// Entries are only ever appended; they disappear only when their account is deleted.
type LedgerEntry struct {
	ID           int64           `json:"id"`
	Reference    string          `json:"reference"`
	AccountID    int64           `json:"account_id"`
	Type         TransactionType `json:"transaction_type"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewLedgerEntry builds an unsaved entry for accountID.
func NewLedgerEntry(accountID int64, txType TransactionType, amount, balanceAfter int64) (*LedgerEntry, error) {
	if !txType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTransactionType, txType)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	return &LedgerEntry{
		Reference:    uuid.New().String(),
		AccountID:    accountID,
		Type:         txType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Tuple returns the (type, amount) pair the history report prints.
func (e LedgerEntry) Tuple() (TransactionType, int64) {
	return e.Type, e.Amount
}

func (e LedgerEntry) String() string {
	return fmt.Sprintf("%s: %d Ksh", e.Type, e.Amount)
}
