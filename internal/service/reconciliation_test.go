package service

import (
	"context"
	"testing"

	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconciliationRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, amount := range []string{"500", "1250.25", "0.75"} {
		_, err := env.transfers.ProcessPayment(ctx, payment("CHK-001", "123-456-003", amount))
		require.NoError(t, err)
	}
	_, err := env.transfers.ProcessPayment(ctx, payment("CHK-003", "123-456-002", "99.99"))
	require.NoError(t, err)

	report, err := env.recon.Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.Balanced(), report.Issues)
	assert.Equal(t, 4, report.Transfers)
	assert.Equal(t, 3, report.Accounts)

	// seed + credits - debits
	assert.Equal(t, "100676.94", balance(t, env, "CHK-001"))
	assert.Equal(t, "16651.51", balance(t, env, "CHK-003"))
	assert.Equal(t, "2599.99", balance(t, env, "CHK-002"))

	require.NoError(t, env.store.UpdateAccountBalance(ctx, "CHK-002", dec("1")))
	report, err = env.recon.Run(ctx)
	require.NoError(t, err)
	require.False(t, report.Balanced())
	assert.Contains(t, report.Issues[0], "account CHK-002")
}

func TestReconciliationDetectsOrphanLeg(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.store.AddTransaction(ctx, models.Transaction{
		AccountID:  "CHK-003",
		Type:       "income",
		Amount:     dec("0"),
		TransferID: "orphan",
	})
	require.NoError(t, err)

	report, err := env.recon.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "transfer orphan: has 1 legs", report.Issues[0])
}
