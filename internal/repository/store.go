package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ayo6706/ledger-gate/internal/db"
	"github.com/ayo6706/ledger-gate/internal/domain"
	"github.com/ayo6706/ledger-gate/internal/models"
	"github.com/ayo6706/ledger-gate/internal/observability"
	"github.com/ayo6706/ledger-gate/internal/seed"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// Store is the single source of truth for accounts, limits and transactions.
// Reads are served from memory; every write commits to the bbolt overlay
// first and is applied to memory only after the commit succeeded.
type Store struct {
	db *bbolt.DB

	// writeMu serializes RunInTx so a commit and its memory apply are
	// observed atomically by the next writer.
	writeMu sync.Mutex

	mu       sync.RWMutex
	accounts map[string]models.Account
	order    []string
	limits   map[string]models.Limits
	txns     []models.Transaction

	clock    func() time.Time
	location *time.Location
}

// NewStore loads the seed snapshot into memory and overlays the durable
// runtime state on top of it. Overlay rows win per key.
func NewStore(bdb *bbolt.DB, data *seed.Data) (*Store, error) {
	if bdb == nil {
		return nil, errors.New("overlay db is required")
	}
	s := &Store{
		db:       bdb,
		accounts: make(map[string]models.Account),
		limits:   make(map[string]models.Limits),
		clock:    time.Now,
		location: time.Local,
	}
	if data != nil {
		for _, a := range data.Accounts {
			s.putAccountLocked(a)
		}
		for _, l := range data.Limits {
			s.limits[l.AccountID] = l
		}
		s.txns = append(s.txns, data.Transactions...)
	}
	if err := s.loadOverlay(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithClock overrides the time source, used for daily limit rollover.
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithLocation sets the business timezone that defines a calendar day.
func (s *Store) WithLocation(loc *time.Location) *Store {
	if loc != nil {
		s.location = loc
	}
	return s
}

// Now returns the current time in the business timezone.
func (s *Store) Now() time.Time {
	return s.clock().In(s.location)
}

// Today returns the current business date as YYYY-MM-DD.
func (s *Store) Today() string {
	return s.Now().Format(domain.DateLayout)
}

// IsStale reports whether l was last reset before the current business day.
func (s *Store) IsStale(l models.Limits) bool {
	return l.LastResetDate < s.Today()
}

func (s *Store) loadOverlay() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if err := forEachJSON(tx, db.BucketAccounts, func(a models.Account) {
			s.putAccountLocked(a)
		}); err != nil {
			return err
		}
		if err := forEachJSON(tx, db.BucketLimits, func(l models.Limits) {
			s.limits[l.AccountID] = l
		}); err != nil {
			return err
		}
		return forEachJSON(tx, db.BucketTransactions, func(t models.Transaction) {
			s.txns = append(s.txns, t)
		})
	})
}

func forEachJSON[T any](tx *bbolt.Tx, bucket string, fn func(T)) error {
	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("overlay bucket %s is missing", bucket)
	}
	return b.ForEach(func(k, v []byte) error {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return fmt.Errorf("decode %s/%s: %w", bucket, k, err)
		}
		fn(item)
		return nil
	})
}

func (s *Store) putAccountLocked(a models.Account) {
	if _, ok := s.accounts[a.AccountID]; !ok {
		s.order = append(s.order, a.AccountID)
	}
	s.accounts[a.AccountID] = a
}

// GetAccount returns the account with the given internal id.
func (s *Store) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, models.NewNotFoundError(models.ErrAccountNotFound, accountID)
	}
	return &a, nil
}

// FindAccountByNumber scans the live directory for an external account number.
func (s *Store) FindAccountByNumber(ctx context.Context, accountNumber string) (*models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if a := s.accounts[id]; a.AccountNumber == accountNumber {
			return &a, nil
		}
	}
	return nil, models.NewNotFoundError(models.ErrAccountNotFound, accountNumber)
}

// ListAccounts returns every account in seed order.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.accounts[id])
	}
	return out, nil
}

// GetLimits returns the stored limits row of an account.
func (s *Store) GetLimits(ctx context.Context, accountID string) (*models.Limits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.limits[accountID]
	if !ok {
		return nil, models.NewNotFoundError(models.ErrLimitsNotFound, accountID)
	}
	return &l, nil
}

// ListTransactions returns the transactions matching filter in insertion order.
func (s *Store) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Transaction, 0)
	for _, t := range s.txns {
		if filter.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetTransfer returns a committed transfer result by transfer id.
func (s *Store) GetTransfer(ctx context.Context, transferID string) (*models.TransferResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var (
		res   *models.TransferResult
		found bool
	)
	err := s.db.View(func(btx *bbolt.Tx) error {
		var err error
		res, found, err = getTransfer(btx, transferID)
		return err
	})
	if err != nil {
		return nil, false, models.NewPersistenceError("read transfer", err)
	}
	return res, found, nil
}

// UpdateAccountBalance sets the ledger balance of an account.
func (s *Store) UpdateAccountBalance(ctx context.Context, accountID string, newBalance decimal.Decimal) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		a, err := tx.Account(accountID)
		if err != nil {
			return err
		}
		a.LedgerBalance = newBalance
		return tx.PutAccount(a)
	})
}

// AddTransaction appends a transaction record and returns its id.
func (s *Store) AddTransaction(ctx context.Context, txn models.Transaction) (string, error) {
	var id string
	err := s.RunInTx(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.AppendTransaction(txn)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// UpdateRemainingLimit sets remaining_today, clamped to [0, daily_limit].
func (s *Store) UpdateRemainingLimit(ctx context.Context, accountID string, newRemaining decimal.Decimal) error {
	return s.RunInTx(ctx, func(tx *Tx) error {
		l, err := tx.Limits(accountID)
		if err != nil {
			return err
		}
		l.RemainingToday = newRemaining
		return tx.PutLimits(l)
	})
}

// ResetDailyLimitsIfStale restores remaining_today to daily_limit on every
// limits row whose last reset predates today. It returns the number of rows
// reset; a second call on the same day resets nothing.
func (s *Store) ResetDailyLimitsIfStale(ctx context.Context) (int, error) {
	today := s.Today()

	s.mu.RLock()
	var stale []string
	for id, l := range s.limits {
		if l.LastResetDate < today {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()
	if len(stale) == 0 {
		return 0, nil
	}
	sort.Strings(stale)

	reset := 0
	err := s.RunInTx(ctx, func(tx *Tx) error {
		reset = 0
		for _, id := range stale {
			l, err := tx.Limits(id)
			if err != nil {
				return err
			}
			if l.LastResetDate >= today {
				continue
			}
			l.RemainingToday = l.DailyLimit
			l.LastResetDate = today
			if err := tx.PutLimits(l); err != nil {
				return err
			}
			reset++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		observability.AddLimitResets(reset)
		zap.L().Info("daily limits reset", zap.Int("accounts", reset), zap.String("date", today))
	}
	return reset, nil
}

// RunInTx executes fn inside one bbolt write transaction. Staged changes are
// applied to memory only when the commit succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(tx *Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var staged *Tx
	err := s.db.Update(func(btx *bbolt.Tx) error {
		staged = newTx(s, btx)
		return fn(staged)
	})
	if err != nil {
		var de *models.DomainError
		if errors.As(err, &de) {
			return err
		}
		return models.NewPersistenceError("commit overlay", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range staged.accountOrder {
		s.putAccountLocked(staged.accounts[id])
	}
	for id, l := range staged.limits {
		s.limits[id] = l
	}
	s.txns = append(s.txns, staged.txns...)
	return nil
}

// Tx is a unit of work over the overlay. Reads see the writes staged earlier
// in the same Tx.
type Tx struct {
	store *Store
	btx   *bbolt.Tx

	accounts     map[string]models.Account
	accountOrder []string
	limits       map[string]models.Limits
	txns         []models.Transaction
}

func newTx(s *Store, btx *bbolt.Tx) *Tx {
	return &Tx{
		store:    s,
		btx:      btx,
		accounts: make(map[string]models.Account),
		limits:   make(map[string]models.Limits),
	}
}

func (t *Tx) Account(accountID string) (models.Account, error) {
	if a, ok := t.accounts[accountID]; ok {
		return a, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	a, ok := t.store.accounts[accountID]
	if !ok {
		return models.Account{}, models.NewNotFoundError(models.ErrAccountNotFound, accountID)
	}
	return a, nil
}

func (t *Tx) PutAccount(a models.Account) error {
	if a.AccountID == "" {
		return models.NewValidationError("account_id", "account_id is required")
	}
	if err := putJSON(t.btx, db.BucketAccounts, []byte(a.AccountID), a); err != nil {
		return err
	}
	if _, ok := t.accounts[a.AccountID]; !ok {
		t.accountOrder = append(t.accountOrder, a.AccountID)
	}
	t.accounts[a.AccountID] = a
	return nil
}

func (t *Tx) Limits(accountID string) (models.Limits, error) {
	if l, ok := t.limits[accountID]; ok {
		return l, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	l, ok := t.store.limits[accountID]
	if !ok {
		return models.Limits{}, models.NewNotFoundError(models.ErrLimitsNotFound, accountID)
	}
	return l, nil
}

// PutLimits stores l with remaining_today clamped to [0, daily_limit].
func (t *Tx) PutLimits(l models.Limits) error {
	if l.AccountID == "" {
		return models.NewValidationError("account_id", "account_id is required")
	}
	l.RemainingToday = domain.ClampZero(l.RemainingToday)
	if l.RemainingToday.GreaterThan(l.DailyLimit) {
		l.RemainingToday = l.DailyLimit
	}
	if err := putJSON(t.btx, db.BucketLimits, []byte(l.AccountID), l); err != nil {
		return err
	}
	t.limits[l.AccountID] = l
	return nil
}

// AppendTransaction writes a new immutable transaction and returns its id.
func (t *Tx) AppendTransaction(txn models.Transaction) (string, error) {
	if txn.AccountID == "" {
		return "", models.NewValidationError("account_id", "account_id is required")
	}
	if txn.Type != domain.TxTypeIncome && txn.Type != domain.TxTypeOutcome {
		return "", models.NewValidationError("type", "type must be income or outcome")
	}
	if txn.TxnID == "" {
		txn.TxnID = uuid.NewString()
	}
	if txn.Timestamp.IsZero() {
		txn.Timestamp = t.store.Now()
	}

	b := t.btx.Bucket([]byte(db.BucketTransactions))
	if b == nil {
		return "", models.NewPersistenceError("append transaction", errors.New("transactions bucket is missing"))
	}
	seq, err := b.NextSequence()
	if err != nil {
		return "", models.NewPersistenceError("append transaction", err)
	}
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	if err := putJSON(t.btx, db.BucketTransactions, key, txn); err != nil {
		return "", err
	}
	t.txns = append(t.txns, txn)
	return txn.TxnID, nil
}

// Transfer returns the committed result stored under transferID, if any.
func (t *Tx) Transfer(transferID string) (*models.TransferResult, bool, error) {
	res, found, err := getTransfer(t.btx, transferID)
	if err != nil {
		return nil, false, models.NewPersistenceError("read transfer", err)
	}
	return res, found, nil
}

// PutTransfer records the result of a committed transfer.
func (t *Tx) PutTransfer(res models.TransferResult) error {
	if res.TransferID == "" {
		return models.NewValidationError("transfer_id", "transfer_id is required")
	}
	return putJSON(t.btx, db.BucketTransfers, []byte(res.TransferID), res)
}

func getTransfer(btx *bbolt.Tx, transferID string) (*models.TransferResult, bool, error) {
	b := btx.Bucket([]byte(db.BucketTransfers))
	if b == nil {
		return nil, false, errors.New("transfers bucket is missing")
	}
	raw := b.Get([]byte(transferID))
	if raw == nil {
		return nil, false, nil
	}
	var res models.TransferResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("decode transfer %s: %w", transferID, err)
	}
	return &res, true, nil
}

func putJSON(btx *bbolt.Tx, bucket string, key []byte, v any) error {
	b := btx.Bucket([]byte(bucket))
	if b == nil {
		return models.NewPersistenceError("write "+bucket, fmt.Errorf("bucket %s is missing", bucket))
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return models.NewPersistenceError("encode "+bucket, err)
	}
	if err := b.Put(key, payload); err != nil {
		return models.NewPersistenceError("write "+bucket, err)
	}
	return nil
}
