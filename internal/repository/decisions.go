package repository

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ayo6706/ledger-gate/internal/db"
	"github.com/ayo6706/ledger-gate/internal/models"
	"go.etcd.io/bbolt"
)

// BoltDecisionStore keeps the decision ledger in the overlay database.
// Entries are keyed by insertion sequence; a second bucket maps ledger ids
// to sequences. There is no update or delete path.
type BoltDecisionStore struct {
	db *bbolt.DB
}

func NewBoltDecisionStore(bdb *bbolt.DB) *BoltDecisionStore {
	return &BoltDecisionStore{db: bdb}
}

// Append writes entry once. A reused ledger id is rejected.
func (s *BoltDecisionStore) Append(ctx context.Context, entry models.DecisionLedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return models.NewPersistenceError("encode decision", err)
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		entries := tx.Bucket([]byte(db.BucketDecisions))
		ids := tx.Bucket([]byte(db.BucketDecisionIDs))
		if entries == nil || ids == nil {
			return errors.New("decision buckets are missing")
		}
		if ids.Get([]byte(entry.LedgerID)) != nil {
			return models.ErrDuplicateLedgerID
		}
		seq, err := entries.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		if err := entries.Put(key, payload); err != nil {
			return err
		}
		return ids.Put([]byte(entry.LedgerID), key)
	})
	if errors.Is(err, models.ErrDuplicateLedgerID) {
		return fmt.Errorf("append decision %s: %w", entry.LedgerID, err)
	}
	if err != nil {
		return models.NewPersistenceError("append decision", err)
	}
	return nil
}

func (s *BoltDecisionStore) Get(ctx context.Context, ledgerID string) (*models.DecisionLedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		entry models.DecisionLedgerEntry
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(db.BucketDecisionIDs)).Get([]byte(ledgerID))
		if key == nil {
			return nil
		}
		raw := tx.Bucket([]byte(db.BucketDecisions)).Get(key)
		if raw == nil {
			return fmt.Errorf("decision %s indexed but missing", ledgerID)
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return nil, models.NewPersistenceError("read decision", err)
	}
	if !found {
		return nil, models.NewNotFoundError(models.ErrDecisionNotFound, ledgerID)
	}
	return &entry, nil
}

// Find returns the page selected by q and the size of the full filtered set.
func (s *BoltDecisionStore) Find(ctx context.Context, q models.DecisionQuery) ([]models.DecisionLedgerEntry, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var matched []models.DecisionLedgerEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(db.BucketDecisions)).ForEach(func(_, v []byte) error {
			var e models.DecisionLedgerEntry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if q.Match(e) {
				matched = append(matched, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, 0, models.NewPersistenceError("scan decisions", err)
	}

	// matched is in insertion order; the stable sort keeps it for equal timestamps.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})
	if !q.Ascending {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	return page(matched, q.Offset, q.Limit), len(matched), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
