package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/store"
)

const idemTable = "idempotency"

func newTestCoordinator(db *store.Memory) *Coordinator {
	return NewCoordinator(db, idemTable, time.Hour, zap.NewNop())
}

func readRecord(t *testing.T, db *store.Memory, fingerprint string) Record {
	t.Helper()
	var rec Record
	require.NoError(t, db.Get(context.Background(), store.Key{Table: idemTable, ID: fingerprint}, &rec))
	return rec
}

func TestProcess_FirstCallRunsOperation(t *testing.T) {
	db := store.NewMemory()
	c := newTestCoordinator(db)

	var calls int32
	resp, replayed, err := c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]string{"order_id": "o-1"}, nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, int32(1), calls)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(resp))

	rec := readRecord(t, db, "fp-1")
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.JSONEq(t, `{"order_id":"o-1"}`, rec.Response)
	assert.Greater(t, rec.ExpiresAt, time.Now().Unix())
}

func TestProcess_ReplayDoesNotRerun(t *testing.T) {
	db := store.NewMemory()
	c := newTestCoordinator(db)

	var calls int32
	op := func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return map[string]string{"order_id": "o-1"}, nil
	}

	first, _, err := c.Process(context.Background(), "fp-1", op)
	require.NoError(t, err)
	second, replayed, err := c.Process(context.Background(), "fp-1", op)
	require.NoError(t, err)

	assert.True(t, replayed)
	assert.Equal(t, int32(1), calls, "side effects must occur exactly once")
	assert.Equal(t, string(first), string(second), "all calls observe the same result")
}

func TestProcess_ExactlyOnceUnderConcurrency(t *testing.T) {
	db := store.NewMemory()
	c := newTestCoordinator(db)

	const n = 16
	var calls int32
	var wg sync.WaitGroup
	results := make([]error, n)
	responses := make([]json.RawMessage, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, _, err := c.Process(context.Background(), "fp-race", func(ctx context.Context) (interface{}, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(10 * time.Millisecond) // widen the in-flight window
				return map[string]string{"winner": "one"}, nil
			})
			results[i] = err
			responses[i] = resp
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls, "operation must execute exactly once")
	for i := 0; i < n; i++ {
		if results[i] == nil {
			assert.JSONEq(t, `{"winner":"one"}`, string(responses[i]))
		} else {
			assert.ErrorIs(t, results[i], ErrConcurrentRequest)
		}
	}
}

func TestProcess_InFlightDuplicateFailsFast(t *testing.T) {
	db := store.NewMemory()
	c := newTestCoordinator(db)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, _ = c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
			close(started)
			<-release
			return "ok", nil
		})
	}()
	<-started

	_, _, err := c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
		t.Fatal("duplicate must not execute")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrConcurrentRequest)

	close(release)
	<-done
}

func TestProcess_FailedAttemptCanBeRetried(t *testing.T) {
	db := store.NewMemory()
	c := newTestCoordinator(db)

	boom := errors.New("kitchen on fire")
	_, _, err := c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom, "operation error is re-raised")

	failed := readRecord(t, db, "fp-1")
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, boom.Error(), failed.ErrorMessage)

	resp, replayed, err := c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.JSONEq(t, `"recovered"`, string(resp))

	retried := readRecord(t, db, "fp-1")
	assert.Equal(t, StatusCompleted, retried.Status)
	assert.Equal(t, failed.CreatedAt.Unix(), retried.CreatedAt.Unix(),
		"retry of a failed record keeps the original created_at")
}

func TestProcess_StuckProcessingRetriesAfterExpiry(t *testing.T) {
	db := store.NewMemory()
	c := newTestCoordinator(db)

	// Simulate a crash: claim the fingerprint but never record an outcome.
	start := time.Now().UTC()
	c.nowFunc = func() time.Time { return start }
	_, _, err := c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("crash stand-in")
	})
	require.Error(t, err)
	// Force the record back to processing as a crash would leave it.
	require.NoError(t, db.RunTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var rec Record
		if err := tx.Get(ctx, store.Key{Table: idemTable, ID: "fp-1"}, &rec); err != nil {
			return err
		}
		return tx.Update(store.Key{Table: idemTable, ID: "fp-1"}, map[string]interface{}{
			"status": StatusProcessing,
		})
	}))

	// Before expiry: fail fast.
	_, _, err = c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
		return "too early", nil
	})
	assert.ErrorIs(t, err, ErrConcurrentRequest)

	// Past expires_at the fingerprint is claimable exactly once more.
	c.nowFunc = func() time.Time { return start.Add(2 * time.Hour) }
	resp, replayed, err := c.Process(context.Background(), "fp-1", func(ctx context.Context) (interface{}, error) {
		return "second life", nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.JSONEq(t, `"second life"`, string(resp))
	assert.Equal(t, StatusCompleted, readRecord(t, db, "fp-1").Status)
}

func TestProcessTTL_OverridesDefault(t *testing.T) {
	db := store.NewMemory()
	c := newTestCoordinator(db)

	now := time.Now().UTC()
	c.nowFunc = func() time.Time { return now }
	_, _, err := c.ProcessTTL(context.Background(), "fp-1", 10*time.Minute, func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	rec := readRecord(t, db, "fp-1")
	assert.Equal(t, now.Add(10*time.Minute).Unix(), rec.ExpiresAt)
}
