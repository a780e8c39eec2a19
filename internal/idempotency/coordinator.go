package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/store"
)

// ErrConcurrentRequest means another execution with the same fingerprint is
// still in flight. Callers should back off and re-poll, not retry immediately.
var ErrConcurrentRequest = errors.New("request with this fingerprint already in progress")

// Operation is an effectful unit guarded by a fingerprint. Its result must
// be JSON-serializable so replays can return it verbatim.
type Operation func(ctx context.Context) (interface{}, error)

// Coordinator gives an arbitrary operation an exactly-once contract keyed by
// a fingerprint. The claim and the outcome are written in separate
// transactions around the operation; a crash in between leaves the record
// "processing" until expires_at, which bounds the liveness gap by the TTL.
type Coordinator struct {
	db      store.Adapter
	table   string
	ttl     time.Duration
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewCoordinator returns a Coordinator writing records to table. ttl <= 0
// falls back to DefaultTTL.
func NewCoordinator(db store.Adapter, table string, ttl time.Duration, logger *zap.Logger) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Coordinator{
		db:      db,
		table:   table,
		ttl:     ttl,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Process runs op at most once for the fingerprint, using the coordinator's
// default TTL. See ProcessTTL.
func (c *Coordinator) Process(ctx context.Context, fingerprint string, op Operation) (json.RawMessage, bool, error) {
	return c.ProcessTTL(ctx, fingerprint, c.ttl, op)
}

// ProcessTTL runs op at most once for the fingerprint:
//   - completed, unexpired record: the stored response is returned with
//     replayed=true and op is never invoked;
//   - processing, unexpired record: ErrConcurrentRequest;
//   - absent, failed, or expired record: the record is atomically claimed as
//     "processing" (keeping the original created_at when a failed attempt is
//     retried), op runs outside that transaction, and the outcome is recorded
//     as completed with the serialized result or failed with the error.
func (c *Coordinator) ProcessTTL(ctx context.Context, fingerprint string, ttl time.Duration, op Operation) (json.RawMessage, bool, error) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	key := store.Key{Table: c.table, ID: fingerprint}

	var replay json.RawMessage
	err := c.db.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		replay = nil
		now := c.nowFunc().UTC()
		claim := Record{
			Fingerprint: fingerprint,
			Status:      StatusProcessing,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   now.Add(ttl).Unix(),
		}

		var rec Record
		err := tx.Get(ctx, key, &rec)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// first attempt
		case err != nil:
			return fmt.Errorf("read idempotency record: %w", err)
		case rec.Status == StatusCompleted && !rec.expired(now):
			replay = json.RawMessage(rec.Response)
			return nil
		case rec.Status == StatusProcessing && !rec.expired(now):
			return ErrConcurrentRequest
		case rec.Status == StatusFailed && !rec.expired(now):
			// retry of a failed attempt keeps the original created_at
			claim.CreatedAt = rec.CreatedAt
		}
		return tx.Put(key, claim)
	})
	if err != nil {
		return nil, false, err
	}
	if replay != nil {
		c.logger.Info("idempotent replay",
			zap.String("fingerprint", fingerprint))
		return replay, true, nil
	}

	result, opErr := op(ctx)
	if opErr != nil {
		c.recordOutcome(ctx, key, StatusFailed, "", opErr.Error())
		return nil, false, opErr
	}

	response, err := json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("serialize operation result: %w", err)
		c.recordOutcome(ctx, key, StatusFailed, "", err.Error())
		return nil, false, err
	}
	c.recordOutcome(ctx, key, StatusCompleted, string(response), "")
	return response, false, nil
}

// recordOutcome writes the terminal status for a claimed fingerprint. Best
// effort: if the write fails the record stays "processing" until TTL expiry,
// which is logged for reconciliation rather than surfaced.
func (c *Coordinator) recordOutcome(ctx context.Context, key store.Key, status, response, errMsg string) {
	err := c.db.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var rec Record
		if err := tx.Get(ctx, key, &rec); err != nil {
			return fmt.Errorf("read idempotency record: %w", err)
		}
		fields := map[string]interface{}{
			"status":     status,
			"updated_at": c.nowFunc().UTC(),
		}
		if response != "" {
			fields["response"] = response
		}
		if errMsg != "" {
			fields["error_message"] = errMsg
		}
		return tx.Update(key, fields)
	})
	if err != nil {
		c.logger.Error("failed to record idempotency outcome",
			zap.String("fingerprint", key.ID),
			zap.String("status", status),
			zap.Error(err))
	}
}
