package service

import (
	"context"
	"testing"
	"time"

	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckLimitsApproved(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.limits.CheckLimits(context.Background(), "CHK-001", dec("500"), "USD")
	require.NoError(t, err)
	assert.True(t, res.SufficientBalance)
	assert.True(t, res.WithinPerTxnLimit)
	assert.True(t, res.WithinDailyLimit)
	assert.True(t, res.Approved)
	assert.Empty(t, res.ErrorMessage)
	assert.False(t, res.UsedDefaultPolicy)
	assert.Equal(t, "101927.94", res.RemainingAfter.StringFixed(2))
	assert.Equal(t, "199500.00", res.DailyLimitRemainingAfter.StringFixed(2))
	assert.Equal(t, "USD", res.Currency)
}

func TestCheckLimitsPerTransactionExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.limits.CheckLimits(ctx, "CHK-001", dec("60000"), "usd")
	require.NoError(t, err)
	assert.True(t, res.SufficientBalance)
	assert.False(t, res.WithinPerTxnLimit)
	assert.True(t, res.WithinDailyLimit)
	assert.False(t, res.Approved)
	assert.Equal(t, "amount 60000.00 USD exceeds per-transaction limit of 50000.00 USD", res.ErrorMessage)

	acc, err := env.store.GetAccount(ctx, "CHK-001")
	require.NoError(t, err)
	assert.Equal(t, "102427.94", acc.LedgerBalance.StringFixed(2))
}

func TestCheckLimitsReportsFirstFailureButComputesAll(t *testing.T) {
	env := newTestEnv(t)

	// CHK-002: balance 2500, per-transaction 1000, remaining 3000.
	res, err := env.limits.CheckLimits(context.Background(), "CHK-002", dec("3000"), "")
	require.NoError(t, err)
	assert.False(t, res.SufficientBalance)
	assert.False(t, res.WithinPerTxnLimit)
	assert.True(t, res.WithinDailyLimit)
	assert.Equal(t, "insufficient balance: available 2500.00 USD, requested 3000.00 USD", res.ErrorMessage)
	assert.Equal(t, "-500.00", res.RemainingAfter.StringFixed(2))
}

func TestCheckLimitsDailyExceeded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.UpdateRemainingLimit(ctx, "CHK-001", dec("100")))

	res, err := env.limits.CheckLimits(ctx, "CHK-001", dec("500"), "USD")
	require.NoError(t, err)
	assert.True(t, res.SufficientBalance)
	assert.True(t, res.WithinPerTxnLimit)
	assert.False(t, res.WithinDailyLimit)
	assert.Equal(t, "amount 500.00 USD exceeds remaining daily limit of 100.00 USD", res.ErrorMessage)
}

func TestCheckLimitsIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.limits.CheckLimits(ctx, "CHK-001", dec("75000"), "USD")
	require.NoError(t, err)
	second, err := env.limits.CheckLimits(ctx, "CHK-001", dec("75000"), "USD")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCheckLimitsDefaultPolicy(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.limits.CheckLimits(context.Background(), "CHK-003", dec("6000"), "USD")
	require.NoError(t, err)
	assert.True(t, res.UsedDefaultPolicy)
	assert.True(t, res.SufficientBalance)
	assert.False(t, res.WithinPerTxnLimit)
	assert.True(t, res.PerTxnLimit.Equal(testDefaults.PerTxnLimit))
	assert.True(t, res.RemainingToday.Equal(testDefaults.DailyLimit))

	ev := Evaluation(res)
	assert.Equal(t, models.PolicyDecisionRejected, ev.Decision)
	assert.Equal(t, "spending_limits_default", ev.PolicyName)
	assert.False(t, ev.Checks["within_per_txn_limit"])
	require.Len(t, ev.Reasons, 1)
}

func TestCheckLimitsProjectsRolloverWithoutPersisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.UpdateRemainingLimit(ctx, "CHK-001", dec("100")))

	env.clock.Set(time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC))
	res, err := env.limits.CheckLimits(ctx, "CHK-001", dec("500"), "USD")
	require.NoError(t, err)
	assert.True(t, res.WithinDailyLimit)
	assert.Equal(t, "200000.00", res.RemainingToday.StringFixed(2))

	stored, err := env.store.GetLimits(ctx, "CHK-001")
	require.NoError(t, err)
	assert.Equal(t, "100.00", stored.RemainingToday.StringFixed(2))
	assert.Equal(t, "2026-03-10", stored.LastResetDate)

	view, err := env.limits.GetAccountLimits(ctx, "CHK-001")
	require.NoError(t, err)
	assert.Equal(t, "200000.00", view.RemainingToday.StringFixed(2))
	assert.Equal(t, "2026-03-11", view.LastResetDate)
}

func TestCheckLimitsErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.limits.CheckLimits(ctx, " ", dec("1"), "USD")
	assert.True(t, models.IsValidation(err))

	_, err = env.limits.CheckLimits(ctx, "CHK-001", dec("0"), "USD")
	assert.True(t, models.IsValidation(err))

	_, err = env.limits.CheckLimits(ctx, "CHK-001", dec("0.001"), "USD")
	assert.True(t, models.IsValidation(err))

	_, err = env.limits.CheckLimits(ctx, "CHK-001", dec("10"), "EUR")
	assert.True(t, models.IsValidation(err))

	_, err = env.limits.CheckLimits(ctx, "CHK-404", dec("10"), "USD")
	assert.ErrorIs(t, err, models.ErrAccountNotFound)

	_, err = env.limits.GetAccountLimits(ctx, "CHK-404")
	assert.True(t, models.IsNotFound(err))
}

func TestGetAccountLimitsDefault(t *testing.T) {
	env := newTestEnv(t)

	l, err := env.limits.GetAccountLimits(context.Background(), "CHK-003")
	require.NoError(t, err)
	assert.Equal(t, "CHK-003", l.AccountID)
	assert.Equal(t, "USD", l.Currency)
	assert.True(t, l.DailyLimit.Equal(testDefaults.DailyLimit))
}
