package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ayo6706/ledger-gate/internal/domain"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/observability"
	"github.com/shopspring/decimal"
)

// LimitPolicy is the spending policy applied to accounts without a limits row.
type LimitPolicy struct {
	PerTxnLimit decimal.Decimal
	DailyLimit  decimal.Decimal
}

// LimitsService is the read-only policy gate in front of the transfer orchestrator.
type LimitsService struct {
	store    StateStore
	defaults LimitPolicy
}

func NewLimitsService(store StateStore, defaults LimitPolicy) *LimitsService {
	return &LimitsService{store: store, defaults: defaults}
}

// CheckLimits evaluates balance sufficiency and both spending limits for a
// proposed debit. A failed check is reported in the result, never as an error.
func (s *LimitsService) CheckLimits(ctx context.Context, accountID string, amount decimal.Decimal, currency string) (*models.LimitsCheckResult, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, models.NewValidationError("account_id", "account_id is required")
	}
	if !amount.IsPositive() {
		return nil, models.NewValidationError("amount", "amount must be greater than zero")
	}
	if !amount.Equal(domain.Round(amount)) {
		return nil, models.NewValidationError("amount",
			fmt.Sprintf("amount must have at most %d decimal places", domain.CurrencyScale))
	}

	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	currency, err = matchCurrency(account, currency)
	if err != nil {
		return nil, err
	}
	limits, usedDefault, err := s.effectiveLimits(ctx, account)
	if err != nil {
		return nil, err
	}

	res := &models.LimitsCheckResult{
		AccountID:                account.AccountID,
		Amount:                   amount,
		Currency:                 currency,
		SufficientBalance:        account.LedgerBalance.GreaterThanOrEqual(amount),
		WithinPerTxnLimit:        amount.LessThanOrEqual(limits.PerTxnLimit),
		WithinDailyLimit:         amount.LessThanOrEqual(limits.RemainingToday),
		CurrentBalance:           account.LedgerBalance,
		RemainingAfter:           account.LedgerBalance.Sub(amount),
		PerTxnLimit:              limits.PerTxnLimit,
		DailyLimit:               limits.DailyLimit,
		RemainingToday:           limits.RemainingToday,
		DailyLimitRemainingAfter: limits.RemainingToday.Sub(amount),
		UsedDefaultPolicy:        usedDefault,
	}
	res.Approved = res.SufficientBalance && res.WithinPerTxnLimit && res.WithinDailyLimit
	res.ErrorMessage = limitsErrorMessage(res)

	if res.Approved {
		observability.IncrementPolicyCheck(models.PolicyDecisionApproved)
	} else {
		observability.IncrementPolicyCheck(models.PolicyDecisionRejected)
	}
	return res, nil
}

// GetAccountLimits returns the limits in force for an account today.
func (s *LimitsService) GetAccountLimits(ctx context.Context, accountID string) (*models.Limits, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, models.NewValidationError("account_id", "account_id is required")
	}
	account, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	limits, _, err := s.effectiveLimits(ctx, account)
	if err != nil {
		return nil, err
	}
	return limits, nil
}

// Evaluation converts a check result into the policy evaluation recorded in
// the decision ledger.
func Evaluation(res *models.LimitsCheckResult) *models.PolicyEvaluation {
	ev := &models.PolicyEvaluation{
		PolicyName: "spending_limits",
		Decision:   models.PolicyDecisionApproved,
		Checks: map[string]bool{
			"sufficient_balance":   res.SufficientBalance,
			"within_per_txn_limit": res.WithinPerTxnLimit,
			"within_daily_limit":   res.WithinDailyLimit,
		},
	}
	if !res.Approved {
		ev.Decision = models.PolicyDecisionRejected
		ev.Reasons = []string{res.ErrorMessage}
	}
	if res.UsedDefaultPolicy {
		ev.PolicyName = "spending_limits_default"
	}
	return ev
}

// effectiveLimits reads the stored row, or the default policy when there is
// none, as it stands after today's rollover. Nothing is persisted.
func (s *LimitsService) effectiveLimits(ctx context.Context, account *models.Account) (*models.Limits, bool, error) {
	limits, err := s.store.GetLimits(ctx, account.AccountID)
	if errors.Is(err, models.ErrLimitsNotFound) {
		return &models.Limits{
			AccountID:      account.AccountID,
			PerTxnLimit:    s.defaults.PerTxnLimit,
			DailyLimit:     s.defaults.DailyLimit,
			RemainingToday: s.defaults.DailyLimit,
			Currency:       account.Currency,
			LastResetDate:  s.store.Now().Format(domain.DateLayout),
		}, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	if s.store.IsStale(*limits) {
		limits.RemainingToday = limits.DailyLimit
		limits.LastResetDate = s.store.Now().Format(domain.DateLayout)
	}
	return limits, false, nil
}

func matchCurrency(account *models.Account, currency string) (string, error) {
	currency = domain.NormalizeCurrency(currency)
	if currency == "" {
		return account.Currency, nil
	}
	if currency != domain.NormalizeCurrency(account.Currency) {
		return "", models.NewValidationError("currency",
			fmt.Sprintf("currency %s does not match account currency %s", currency, account.Currency))
	}
	return account.Currency, nil
}

func limitsErrorMessage(res *models.LimitsCheckResult) string {
	requested := domain.NewMoney(res.Amount, res.Currency)
	switch {
	case !res.SufficientBalance:
		return fmt.Sprintf("insufficient balance: available %s, requested %s",
			domain.NewMoney(res.CurrentBalance, res.Currency), requested)
	case !res.WithinPerTxnLimit:
		return fmt.Sprintf("amount %s exceeds per-transaction limit of %s",
			requested, domain.NewMoney(res.PerTxnLimit, res.Currency))
	case !res.WithinDailyLimit:
		return fmt.Sprintf("amount %s exceeds remaining daily limit of %s",
			requested, domain.NewMoney(res.RemainingToday, res.Currency))
	default:
		return ""
	}
}
