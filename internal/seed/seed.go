// Package seed reads the read-only tabular source that provides the initial
// accounts, limits and historical transactions. Files are CSV with a header
// row; column order does not matter.
package seed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayo6706/ledger-gate/internal/domain"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/shopspring/decimal"
)

const (
	AccountsFile     = "accounts.csv"
	LimitsFile       = "limits.csv"
	TransactionsFile = "transactions.csv"
)

// Data is the full seed snapshot.
type Data struct {
	Accounts     []models.Account
	Limits       []models.Limits
	Transactions []models.Transaction
}

// Load reads every seed file from dir. accounts.csv is required; the others
// are optional.
func Load(dir string) (*Data, error) {
	accounts, err := LoadAccounts(filepath.Join(dir, AccountsFile))
	if err != nil {
		return nil, err
	}
	limits, err := LoadLimits(filepath.Join(dir, LimitsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	txns, err := LoadTransactions(filepath.Join(dir, TransactionsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return &Data{Accounts: accounts, Limits: limits, Transactions: txns}, nil
}

func LoadAccounts(path string) ([]models.Account, error) {
	var out []models.Account
	err := readRows(path, []string{"account_id", "account_number", "customer_name", "ledger_balance", "currency"}, func(r row) error {
		balance, err := r.decimal("ledger_balance")
		if err != nil {
			return err
		}
		out = append(out, models.Account{
			AccountID:     r.get("account_id"),
			AccountNumber: r.get("account_number"),
			CustomerID:    r.get("customer_id"),
			CustomerName:  r.get("customer_name"),
			LedgerBalance: balance,
			Currency:      domain.NormalizeCurrency(r.get("currency")),
		})
		return nil
	})
	return out, err
}

func LoadLimits(path string) ([]models.Limits, error) {
	var out []models.Limits
	err := readRows(path, []string{"account_id", "per_txn_limit", "daily_limit", "remaining_today", "currency", "last_reset_date"}, func(r row) error {
		perTxn, err := r.decimal("per_txn_limit")
		if err != nil {
			return err
		}
		daily, err := r.decimal("daily_limit")
		if err != nil {
			return err
		}
		remaining, err := r.decimal("remaining_today")
		if err != nil {
			return err
		}
		resetDate := r.get("last_reset_date")
		if _, err := time.Parse(domain.DateLayout, resetDate); err != nil {
			return fmt.Errorf("last_reset_date %q: %w", resetDate, err)
		}
		if remaining.GreaterThan(daily) {
			remaining = daily
		}
		out = append(out, models.Limits{
			AccountID:      r.get("account_id"),
			PerTxnLimit:    perTxn,
			DailyLimit:     daily,
			RemainingToday: domain.ClampZero(remaining),
			Currency:       domain.NormalizeCurrency(r.get("currency")),
			LastResetDate:  resetDate,
		})
		return nil
	})
	return out, err
}

func LoadTransactions(path string) ([]models.Transaction, error) {
	var out []models.Transaction
	err := readRows(path, []string{"txn_id", "account_id", "type", "amount", "timestamp"}, func(r row) error {
		amount, err := r.decimal("amount")
		if err != nil {
			return err
		}
		txType := strings.ToLower(r.get("type"))
		if txType != domain.TxTypeIncome && txType != domain.TxTypeOutcome {
			return fmt.Errorf("type %q must be income or outcome", txType)
		}
		ts, err := parseTimestamp(r.get("timestamp"))
		if err != nil {
			return err
		}
		out = append(out, models.Transaction{
			TxnID:                     r.get("txn_id"),
			AccountID:                 r.get("account_id"),
			Type:                      txType,
			CounterpartyName:          r.get("counterparty_name"),
			CounterpartyAccountNumber: r.get("counterparty_account_number"),
			Category:                  r.get("category"),
			Description:               r.get("description"),
			Amount:                    amount,
			Currency:                  domain.NormalizeCurrency(r.get("currency")),
			Timestamp:                 ts,
		})
		return nil
	})
	return out, err
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", domain.DateLayout} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q is not a recognised format", s)
}

type row struct {
	index  map[string]int
	fields []string
}

func (r row) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r row) decimal(col string) (decimal.Decimal, error) {
	d, err := domain.ParseAmount(r.get(col))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", col, err)
	}
	return d, nil
}

func readRows(path string, required []string, fn func(row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read seed header %s: %w", filepath.Base(path), err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("seed %s: missing column %q", filepath.Base(path), col)
		}
	}

	line := 1
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		line++
		if err != nil {
			return fmt.Errorf("seed %s line %d: %w", filepath.Base(path), line, err)
		}
		if blank(fields) {
			continue
		}
		r := row{index: index, fields: fields}
		for _, col := range required {
			if r.get(col) == "" {
				return fmt.Errorf("seed %s line %d: %s is empty", filepath.Base(path), line, col)
			}
		}
		if err := fn(r); err != nil {
			return fmt.Errorf("seed %s line %d: %w", filepath.Base(path), line, err)
		}
	}
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
