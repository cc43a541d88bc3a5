package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	AccountID     string          `json:"account_id"`
	AccountNumber string          `json:"account_number"`
	CustomerID    string          `json:"customer_id,omitempty"`
	CustomerName  string          `json:"customer_name"`
	LedgerBalance decimal.Decimal `json:"ledger_balance"`
	Currency      string          `json:"currency"`
}

type Transaction struct {
	TxnID                     string          `json:"txn_id"`
	AccountID                 string          `json:"account_id"`
	Type                      string          `json:"type"` // "income" or "outcome"
	CounterpartyName          string          `json:"counterparty_name"`
	CounterpartyAccountNumber string          `json:"counterparty_account_number"`
	Category                  string          `json:"category"`
	Description               string          `json:"description,omitempty"`
	Amount                    decimal.Decimal `json:"amount"`
	Currency                  string          `json:"currency,omitempty"`
	Timestamp                 time.Time       `json:"timestamp"`
	TransferID                string          `json:"transfer_id,omitempty"`
}

// Limits holds the spending policy of one account. LastResetDate is a
// YYYY-MM-DD calendar date in the business timezone.
type Limits struct {
	AccountID      string          `json:"account_id"`
	PerTxnLimit    decimal.Decimal `json:"per_txn_limit"`
	DailyLimit     decimal.Decimal `json:"daily_limit"`
	RemainingToday decimal.Decimal `json:"remaining_today"`
	Currency       string          `json:"currency"`
	LastResetDate  string          `json:"last_reset_date"`
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	AccountID  string
	Type       string
	TransferID string
	From       time.Time
	To         time.Time
}

// Match reports whether txn satisfies the filter. From and To are inclusive.
func (f TransactionFilter) Match(txn Transaction) bool {
	if f.AccountID != "" && txn.AccountID != f.AccountID {
		return false
	}
	if f.Type != "" && txn.Type != f.Type {
		return false
	}
	if f.TransferID != "" && txn.TransferID != f.TransferID {
		return false
	}
	if !f.From.IsZero() && txn.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && txn.Timestamp.After(f.To) {
		return false
	}
	return true
}

// LimitsCheckResult is the full diagnostic of a policy gate evaluation.
// All three predicates are always computed.
type LimitsCheckResult struct {
	AccountID                string          `json:"account_id"`
	Amount                   decimal.Decimal `json:"amount"`
	Currency                 string          `json:"currency"`
	SufficientBalance        bool            `json:"sufficient_balance"`
	WithinPerTxnLimit        bool            `json:"within_per_txn_limit"`
	WithinDailyLimit         bool            `json:"within_daily_limit"`
	Approved                 bool            `json:"approved"`
	CurrentBalance           decimal.Decimal `json:"current_balance"`
	RemainingAfter           decimal.Decimal `json:"remaining_after"`
	PerTxnLimit              decimal.Decimal `json:"per_txn_limit"`
	DailyLimit               decimal.Decimal `json:"daily_limit"`
	RemainingToday           decimal.Decimal `json:"remaining_today"`
	DailyLimitRemainingAfter decimal.Decimal `json:"daily_limit_remaining_after"`
	ErrorMessage             string          `json:"error_message,omitempty"`
	UsedDefaultPolicy        bool            `json:"used_default_policy"`
}

type TransferRequest struct {
	TransferID             string          `json:"transfer_id,omitempty"`
	AccountID              string          `json:"account_id"`
	Amount                 decimal.Decimal `json:"amount"`
	Description            string          `json:"description"`
	PaymentMethodID        string          `json:"payment_method_id,omitempty"`
	Timestamp              time.Time       `json:"timestamp"`
	RecipientName          string          `json:"recipient_name"`
	RecipientAccountNumber string          `json:"recipient_account_number"`
	PaymentType            string          `json:"payment_type"`
}

type TransferResult struct {
	TransferID       string          `json:"transfer_id"`
	Status           string          `json:"status"`
	SenderAccountID  string          `json:"sender_account_id"`
	RecipientID      string          `json:"recipient_account_id"`
	RecipientNumber  string          `json:"recipient_account_number,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	SenderTxnID      string          `json:"sender_txn_id"`
	RecipientTxnID   string          `json:"recipient_txn_id"`
	SenderBalance    decimal.Decimal `json:"sender_balance"`
	RecipientBalance decimal.Decimal `json:"recipient_balance"`
	RemainingToday   decimal.Decimal `json:"remaining_today"`
	Timestamp        time.Time       `json:"timestamp"`
	Replayed         bool            `json:"replayed"`
}
