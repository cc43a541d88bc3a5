package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ledger-gate/internal/domain"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payment(from, toNumber, amount string) models.TransferRequest {
	return models.TransferRequest{
		AccountID:              from,
		Amount:                 dec(amount),
		Description:            "rent share",
		RecipientName:          "Carla Gomez",
		RecipientAccountNumber: toNumber,
		PaymentType:            domain.PaymentTypeTransfer,
	}
}

func balance(t *testing.T, env *testEnv, accountID string) string {
	t.Helper()
	acc, err := env.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acc.LedgerBalance.StringFixed(2)
}

func TestProcessPaymentAfterApprovedCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithConversationID(context.Background(), "conv-a")

	check, err := env.limits.CheckLimits(ctx, "CHK-001", dec("500"), "USD")
	require.NoError(t, err)
	require.True(t, check.SufficientBalance && check.WithinPerTxnLimit && check.WithinDailyLimit)

	res, err := env.transfers.ProcessPayment(ctx, payment("CHK-001", "123-456-003", "500"))
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, res.Status)
	assert.False(t, res.Replayed)
	assert.Equal(t, "CHK-003", res.RecipientID)
	assert.Equal(t, "101927.94", res.SenderBalance.StringFixed(2))
	assert.Equal(t, "199500.00", res.RemainingToday.StringFixed(2))

	assert.Equal(t, "101927.94", balance(t, env, "CHK-001"))
	assert.Equal(t, "15500.50", balance(t, env, "CHK-003"))

	legs, err := env.store.ListTransactions(ctx, models.TransactionFilter{TransferID: res.TransferID})
	require.NoError(t, err)
	require.Len(t, legs, 2)
	out, in := legs[0], legs[1]
	assert.Equal(t, domain.TxTypeOutcome, out.Type)
	assert.Equal(t, "CHK-001", out.AccountID)
	assert.Equal(t, "123-456-003", out.CounterpartyAccountNumber)
	assert.Equal(t, domain.TxTypeIncome, in.Type)
	assert.Equal(t, "CHK-003", in.AccountID)
	assert.Equal(t, "Alice Martin", in.CounterpartyName)
	assert.Equal(t, "123-456-001", in.CounterpartyAccountNumber)
	assert.True(t, out.Amount.Equal(in.Amount))
	assert.True(t, out.Timestamp.Equal(in.Timestamp))
	assert.Equal(t, res.SenderTxnID, out.TxnID)
	assert.Equal(t, res.RecipientTxnID, in.TxnID)

	limits, err := env.store.GetLimits(ctx, "CHK-001")
	require.NoError(t, err)
	assert.Equal(t, "199500.00", limits.RemainingToday.StringFixed(2))

	history, err := env.ledger.GetConversationHistory(ctx, "conv-a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.ActionProcessPayment, history[0].Action)
	assert.Equal(t, domain.CoreAgentName, history[0].AgentName)
	assert.Equal(t, "CUST-001", history[0].CustomerID)
	require.NotNil(t, history[0].Output.PaymentResult)
	assert.Equal(t, res.TransferID, history[0].Output.PaymentResult.TransferID)
}

func TestProcessPaymentUnknownRecipient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.transfers.ProcessPayment(ctx, payment("CHK-001", "999-999-999", "500"))
	require.Error(t, err)
	assert.True(t, models.IsNotFound(err))
	assert.ErrorIs(t, err, models.ErrRecipientNotFound)

	assert.Equal(t, "102427.94", balance(t, env, "CHK-001"))
	txns, err := env.store.ListTransactions(ctx, models.TransactionFilter{AccountID: "CHK-001"})
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestProcessPaymentRecipientIsResolvedByNumberOnly(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.transfers.ProcessPayment(context.Background(), payment("CHK-001", "CHK-003", "10"))
	assert.ErrorIs(t, err, models.ErrRecipientNotFound)
}

func TestProcessPaymentUnknownSender(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.transfers.ProcessPayment(context.Background(), payment("CHK-404", "123-456-003", "10"))
	assert.ErrorIs(t, err, models.ErrSenderNotFound)
	assert.Equal(t, "15000.50", balance(t, env, "CHK-003"))
}

func TestProcessPaymentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		mut   func(*models.TransferRequest)
		field string
	}{
		{"missing sender", func(r *models.TransferRequest) { r.AccountID = "" }, "account_id"},
		{"zero amount", func(r *models.TransferRequest) { r.Amount = dec("0") }, "amount"},
		{"sub-cent amount", func(r *models.TransferRequest) { r.Amount = dec("1.005") }, "amount"},
		{"missing recipient", func(r *models.TransferRequest) { r.RecipientAccountNumber = "" }, "recipient_account_number"},
		{"unknown type", func(r *models.TransferRequest) { r.PaymentType = "crypto" }, "payment_type"},
		{"card without method", func(r *models.TransferRequest) { r.PaymentType = domain.PaymentTypeCard }, "payment_method_id"},
		{"self transfer", func(r *models.TransferRequest) { r.RecipientAccountNumber = "123-456-001" }, "recipient_account_number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := payment("CHK-001", "123-456-003", "10")
			tc.mut(&req)
			_, err := env.transfers.ProcessPayment(ctx, req)
			require.Error(t, err)
			var de *models.DomainError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, models.KindValidation, de.Kind)
			assert.Equal(t, tc.field, de.Field)
		})
	}
	assert.Equal(t, "102427.94", balance(t, env, "CHK-001"))
}

func TestProcessPaymentCardWithMethod(t *testing.T) {
	env := newTestEnv(t)
	req := payment("CHK-001", "123-456-002", "25.10")
	req.PaymentType = domain.PaymentTypeCard
	req.PaymentMethodID = "pm-visa-4242"

	res, err := env.transfers.ProcessPayment(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "2525.10", res.RecipientBalance.StringFixed(2))

	txns, err := env.store.ListTransactions(context.Background(), models.TransactionFilter{TransferID: res.TransferID})
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, domain.PaymentTypeCard, txns[0].Category)
}

func TestProcessPaymentReplayByTransferID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := payment("CHK-001", "123-456-003", "500")
	req.TransferID = "idem-1"

	first, err := env.transfers.ProcessPayment(ctx, req)
	require.NoError(t, err)
	second, err := env.transfers.ProcessPayment(ctx, req)
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.SenderTxnID, second.SenderTxnID)
	assert.Equal(t, "101927.94", balance(t, env, "CHK-001"))

	legs, err := env.store.ListTransactions(ctx, models.TransactionFilter{TransferID: "idem-1"})
	require.NoError(t, err)
	assert.Len(t, legs, 2)
}

func TestProcessPaymentReusedTransferIDConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	original := payment("CHK-001", "123-456-003", "500")
	original.TransferID = "key-1"
	_, err := env.transfers.ProcessPayment(ctx, original)
	require.NoError(t, err)

	cases := []struct {
		name string
		req  models.TransferRequest
	}{
		{name: "different sender", req: payment("CHK-002", "123-456-003", "500")},
		{name: "different recipient", req: payment("CHK-001", "123-456-002", "500")},
		{name: "different amount", req: payment("CHK-001", "123-456-003", "900")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.req.TransferID = "key-1"
			res, err := env.transfers.ProcessPayment(ctx, tc.req)
			assert.Nil(t, res)
			assert.True(t, models.IsConflict(err))
			assert.ErrorIs(t, err, models.ErrTransferIDReused)
		})
	}

	assert.Equal(t, "101927.94", balance(t, env, "CHK-001"))
	assert.Equal(t, "2500.00", balance(t, env, "CHK-002"))
	legs, err := env.store.ListTransactions(ctx, models.TransactionFilter{TransferID: "key-1"})
	require.NoError(t, err)
	assert.Len(t, legs, 2)
}

func TestProcessPaymentClampsRemainingAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.UpdateRemainingLimit(ctx, "CHK-002", dec("100")))

	res, err := env.transfers.ProcessPayment(ctx, payment("CHK-002", "123-456-003", "500"))
	require.NoError(t, err)
	assert.True(t, res.RemainingToday.IsZero())

	l, err := env.store.GetLimits(ctx, "CHK-002")
	require.NoError(t, err)
	assert.True(t, l.RemainingToday.IsZero())
}

func TestProcessPaymentWithoutLimitsRowConsumesDefaultPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.transfers.ProcessPayment(ctx, payment("CHK-003", "123-456-001", "1000"))
	require.NoError(t, err)
	assert.Equal(t, "14000.50", balance(t, env, "CHK-003"))
	assert.Equal(t, "9000.00", res.RemainingToday.StringFixed(2))

	l, err := env.store.GetLimits(ctx, "CHK-003")
	require.NoError(t, err)
	assert.True(t, l.PerTxnLimit.Equal(testDefaults.PerTxnLimit))
	assert.True(t, l.DailyLimit.Equal(testDefaults.DailyLimit))
	assert.Equal(t, "9000.00", l.RemainingToday.StringFixed(2))
	assert.Equal(t, "USD", l.Currency)
	assert.Equal(t, "2026-03-10", l.LastResetDate)
}

func TestDefaultDailyLimitIsUsedUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, want := range []string{"10000.00", "6000.00"} {
		check, err := env.limits.CheckLimits(ctx, "CHK-003", dec("4000"), "USD")
		require.NoError(t, err)
		require.True(t, check.Approved, "round %d", i)
		assert.Equal(t, want, check.RemainingToday.StringFixed(2))

		_, err = env.transfers.ProcessPayment(ctx, payment("CHK-003", "123-456-001", "4000"))
		require.NoError(t, err)
	}

	check, err := env.limits.CheckLimits(ctx, "CHK-003", dec("4000"), "USD")
	require.NoError(t, err)
	assert.False(t, check.Approved)
	assert.False(t, check.WithinDailyLimit)
	assert.Equal(t, "2000.00", check.RemainingToday.StringFixed(2))
	assert.Contains(t, check.ErrorMessage, "remaining daily limit")

	view, err := env.limits.GetAccountLimits(ctx, "CHK-003")
	require.NoError(t, err)
	assert.Equal(t, "2000.00", view.RemainingToday.StringFixed(2))
}

func TestProcessPaymentResetsStaleLimitsFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.UpdateRemainingLimit(ctx, "CHK-001", dec("100")))

	env.clock.Set(time.Date(2026, 3, 11, 7, 30, 0, 0, time.UTC))
	res, err := env.transfers.ProcessPayment(ctx, payment("CHK-001", "123-456-003", "500"))
	require.NoError(t, err)
	assert.Equal(t, "199500.00", res.RemainingToday.StringFixed(2))

	l, err := env.store.GetLimits(ctx, "CHK-001")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-11", l.LastResetDate)
}

type failingRecorder struct{}

func (failingRecorder) LogDecision(context.Context, models.DecisionInput) (string, error) {
	return "", errors.New("ledger offline")
}

func TestProcessPaymentLedgerFailureIsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	svc := NewTransferService(env.store, testDefaults, failingRecorder{})

	res, err := svc.ProcessPayment(context.Background(), payment("CHK-001", "123-456-003", "500"))
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCompleted, res.Status)
	assert.Equal(t, "101927.94", balance(t, env, "CHK-001"))
}

func TestConcurrentPaymentsKeepBooksBalanced(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := payment("CHK-001", "123-456-003", "10")
			req.TransferID = fmt.Sprintf("tr-%02d", i)
			_, err := env.transfers.ProcessPayment(ctx, req)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, "102177.94", balance(t, env, "CHK-001"))
	assert.Equal(t, "15250.50", balance(t, env, "CHK-003"))

	l, err := env.store.GetLimits(ctx, "CHK-001")
	require.NoError(t, err)
	assert.Equal(t, "199750.00", l.RemainingToday.StringFixed(2))

	report, err := env.recon.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced(), report.Issues)
	assert.Equal(t, n, report.Transfers)
}
