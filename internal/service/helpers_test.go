package service

import (
	"sync"
	"testing"
	"time"

	"github.com/ayo6706/ledger-gate/internal/db"
	"github.com/ayo6706/ledger-gate/internal/repository"
	"github.com/ayo6706/ledger-gate/internal/seed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type testEnv struct {
	seed      *seed.Data
	store     *repository.Store
	clock     *fakeClock
	ledger    *DecisionLedgerService
	limits    *LimitsService
	transfers *TransferService
	accounts  *AccountService
	recon     *ReconciliationService
}

var testDefaults = LimitPolicy{
	PerTxnLimit: decimal.RequireFromString("5000"),
	DailyLimit:  decimal.RequireFromString("10000"),
}

// newTestEnv builds every service over the seed fixtures and a fresh overlay.
// The business day is 2026-03-10 in UTC, the seeded reset date.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	data, err := seed.Load("../seed/testdata")
	require.NoError(t, err)

	bdb, err := db.OpenOverlay(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = bdb.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	store, err := repository.NewStore(bdb, data)
	require.NoError(t, err)
	store.WithClock(clock.Now).WithLocation(time.UTC)

	ledgerClock := &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), step: time.Second}
	ledger := NewDecisionLedgerService(repository.NewBoltDecisionStore(bdb), ledgerClock.Now)

	return &testEnv{
		seed:      data,
		store:     store,
		clock:     clock,
		ledger:    ledger,
		limits:    NewLimitsService(store, testDefaults),
		transfers: NewTransferService(store, testDefaults, ledger),
		accounts:  NewAccountService(store),
		recon:     NewReconciliationService(store, data.Accounts),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
