package service

import (
	"context"
	"time"

	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/repository"
)

// StateStore defines the account, limits and transaction access required by services.
type StateStore interface {
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error)
	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetLimits(ctx context.Context, accountID string) (*models.Limits, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	GetTransfer(ctx context.Context, transferID string) (*models.TransferResult, bool, error)
	ResetDailyLimitsIfStale(ctx context.Context) (int, error)
	RunInTx(ctx context.Context, fn func(tx *repository.Tx) error) error
	IsStale(l models.Limits) bool
	Now() time.Time
}

// DecisionStore is the append-only backend of the decision ledger.
type DecisionStore interface {
	Append(ctx context.Context, entry models.DecisionLedgerEntry) error
	Get(ctx context.Context, ledgerID string) (*models.DecisionLedgerEntry, error)
	Find(ctx context.Context, q models.DecisionQuery) ([]models.DecisionLedgerEntry, int, error)
}

var (
	_ StateStore    = (*repository.Store)(nil)
	_ DecisionStore = (*repository.BoltDecisionStore)(nil)
	_ DecisionStore = (*repository.PgDecisionStore)(nil)
)

type conversationKey struct{}

// WithConversationID tags ctx with the conversation that triggered a call so
// decisions recorded by the core can be joined with the caller's own entries.
func WithConversationID(ctx context.Context, conversationID string) context.Context {
	if conversationID == "" {
		return ctx
	}
	return context.WithValue(ctx, conversationKey{}, conversationID)
}

// ConversationIDFromContext returns the conversation id set by WithConversationID.
func ConversationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(conversationKey{}).(string)
	return v
}
