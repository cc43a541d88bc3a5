package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.etcd.io/bbolt"
)

// Overlay bucket names. One bucket per entity kind.
const (
	BucketAccounts     = "accounts"
	BucketLimits       = "limits"
	BucketTransactions = "transactions"
	BucketTransfers    = "transfers"
	BucketDecisions    = "decisions"
	BucketDecisionIDs  = "decision_ids"
)

var overlayBuckets = []string{
	BucketAccounts,
	BucketLimits,
	BucketTransactions,
	BucketTransfers,
	BucketDecisions,
	BucketDecisionIDs,
}

// OverlayFile is the name of the bbolt file created inside the data directory.
const OverlayFile = "overlay.db"

// OpenOverlay opens (or creates) the durable runtime overlay in dataDir and
// makes sure every bucket exists.
func OpenOverlay(dataDir string) (*bbolt.DB, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := filepath.Join(filepath.Clean(dataDir), OverlayFile)
	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open overlay db: %w", err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		for _, name := range overlayBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = bdb.Close()
		return nil, err
	}
	return bdb, nil
}

// Connect opens a pgx pool used by the Postgres decision ledger.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return pool, nil
}
