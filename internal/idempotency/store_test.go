package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, time.Hour), mr
}

func TestReserveFinalizeLookup(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Reserve(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrInProgress)

	_, err = store.Finalize(ctx, "k1", "h1", 201, []byte(`{"status":"COMPLETED"}`), "application/json")
	require.NoError(t, err)

	rec, err := store.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"status":"COMPLETED"}`, string(rec.Body))
	assert.Equal(t, "redis", rec.ServedBy)

	_, err = store.Lookup(ctx, "k1", "other")
	assert.ErrorIs(t, err, ErrHashMismatch)

	mr.FastForward(2 * time.Hour)
	_, err = store.Lookup(ctx, "k1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReservationExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k2", "h")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(reservationTTL + time.Second)
	ok, err = store.Reserve(ctx, "k2", "h")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseAllowsRetry(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k3", "h")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, store.Release(ctx, "k3"))

	ok, err = store.Reserve(ctx, "k3", "h")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWaitForCompletion(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k4", "h")
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_, _ = store.Finalize(context.Background(), "k4", "h", 200, []byte(`{}`), "application/json")
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	rec, err := store.WaitForCompletion(waitCtx, "k4", "h")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)
}

func TestLookupRedisDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.Lookup(context.Background(), "k5", "h")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
