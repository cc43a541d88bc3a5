package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ayo6706/ledger-gate/internal/models"
)

type AccountService struct {
	store StateStore
}

func NewAccountService(store StateStore) *AccountService {
	return &AccountService{
		store: store,
	}
}

func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, models.NewValidationError("account_id", "account_id is required")
	}
	return s.store.GetAccount(ctx, accountID)
}

func (s *AccountService) ListAccounts(ctx context.Context) ([]models.Account, error) {
	return s.store.ListAccounts(ctx)
}

// SearchTransactions returns the account's transactions inside [from, to],
// oldest first. A zero bound is open.
func (s *AccountService) SearchTransactions(ctx context.Context, accountID string, from, to time.Time) ([]models.Transaction, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, models.NewValidationError("account_id", "account_id is required")
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, models.NewValidationError("to", "to must not be before from")
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}

	txns, err := s.store.ListTransactions(ctx, models.TransactionFilter{AccountID: accountID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Timestamp.Before(txns[j].Timestamp)
	})
	return txns, nil
}
