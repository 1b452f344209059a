package models

import "time"

// LedgerEvent is published after a ledger entry commits and archived downstream.
type LedgerEvent struct {
	Reference     string          `json:"reference" bson:"_id"`
	EntryID       int64           `json:"entry_id" bson:"entry_id"`
	AccountNumber int             `json:"account_number" bson:"account_number"`
	AccountName   string          `json:"account_name" bson:"account_name"`
	CustomerID    int64           `json:"customer_id" bson:"customer_id"`
	Type          TransactionType `json:"transaction_type" bson:"transaction_type"`
	Amount        int64           `json:"amount" bson:"amount"`
	BalanceAfter  int64           `json:"balance_after" bson:"balance_after"`
	OccurredAt    time.Time       `json:"occurred_at" bson:"occurred_at"`
}

// NewLedgerEvent describes entry as recorded against account.
func NewLedgerEvent(account Account, entry LedgerEntry) LedgerEvent {
	return LedgerEvent{
		Reference:     entry.Reference,
		EntryID:       entry.ID,
		AccountNumber: account.AccountNumber,
		AccountName:   account.AccountName,
		CustomerID:    account.CustomerID,
		Type:          entry.Type,
		Amount:        entry.Amount,
		BalanceAfter:  entry.BalanceAfter,
		OccurredAt:    entry.CreatedAt,
	}
}
