package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/ayo6706/ledger-gate/internal/domain"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/observability"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReconciliationReport lists every integrity finding of one run.
type ReconciliationReport struct {
	Accounts  int      `json:"accounts"`
	Transfers int      `json:"transfers"`
	Issues    []string `json:"issues"`
}

func (r *ReconciliationReport) Balanced() bool {
	return len(r.Issues) == 0
}

// ReconciliationService verifies ledger integrity invariants.
type ReconciliationService struct {
	store        StateStore
	seedBalances map[string]decimal.Decimal
}

// NewReconciliationService creates a reconciliation service. seedAccounts
// are the balances the process started from, before any transfer.
func NewReconciliationService(store StateStore, seedAccounts []models.Account) *ReconciliationService {
	balances := make(map[string]decimal.Decimal, len(seedAccounts))
	for _, a := range seedAccounts {
		balances[a.AccountID] = a.LedgerBalance
	}
	return &ReconciliationService{store: store, seedBalances: balances}
}

// Run checks that every balance equals its seed balance plus transfer credits
// minus transfer debits, and that every transfer has exactly two equal legs.
func (s *ReconciliationService) Run(ctx context.Context) (*ReconciliationReport, error) {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	txns, err := s.store.ListTransactions(ctx, models.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	report := &ReconciliationReport{Accounts: len(accounts)}
	net := make(map[string]decimal.Decimal)
	legs := make(map[string][]models.Transaction)
	for _, t := range txns {
		if t.TransferID == "" {
			continue
		}
		legs[t.TransferID] = append(legs[t.TransferID], t)
		switch t.Type {
		case domain.TxTypeIncome:
			net[t.AccountID] = net[t.AccountID].Add(t.Amount)
		case domain.TxTypeOutcome:
			net[t.AccountID] = net[t.AccountID].Sub(t.Amount)
		}
	}
	report.Transfers = len(legs)

	for _, a := range accounts {
		seedBalance, ok := s.seedBalances[a.AccountID]
		if !ok {
			continue
		}
		expected := domain.Round(seedBalance.Add(net[a.AccountID]))
		if !expected.Equal(a.LedgerBalance) {
			observability.IncrementLedgerImbalance("balance")
			report.Issues = append(report.Issues, fmt.Sprintf("account %s: balance %s, expected %s",
				a.AccountID, a.LedgerBalance.StringFixed(domain.CurrencyScale), expected.StringFixed(domain.CurrencyScale)))
		}
	}

	ids := make([]string, 0, len(legs))
	for id := range legs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if issue := checkLegs(legs[id]); issue != "" {
			observability.IncrementLedgerImbalance("legs")
			report.Issues = append(report.Issues, fmt.Sprintf("transfer %s: %s", id, issue))
		}
	}

	if !report.Balanced() {
		for _, issue := range report.Issues {
			zap.L().Error("CRITICAL: ledger imbalance detected", zap.String("issue", issue))
		}
		return report, nil
	}

	zap.L().Info("Ledger Balanced", zap.Int("accounts", report.Accounts), zap.Int("transfers", report.Transfers))
	return report, nil
}

func checkLegs(legs []models.Transaction) string {
	if len(legs) != 2 {
		return fmt.Sprintf("has %d legs", len(legs))
	}
	a, b := legs[0], legs[1]
	if a.Type == b.Type {
		return "legs share type " + a.Type
	}
	if !a.Amount.Equal(b.Amount) {
		return fmt.Sprintf("leg amounts differ: %s vs %s", a.Amount, b.Amount)
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return "leg timestamps differ"
	}
	return ""
}
