package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/store"
)

// Service performs stock deduction and restoration for sets of order lines.
// Every mutation happens inside an already-open adapter transaction, so a
// failing line aborts the whole batch with nothing written.
type Service struct {
	table   string
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewService returns a Service over the given stock table.
func NewService(table string, logger *zap.Logger) *Service {
	return &Service{
		table:   table,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Deduct stages quantity−requested for each line inside tx. Any invalid line
// fails the call: a deduction that cannot be honored must block the order.
// Items with stock tracking disabled are skipped.
func (s *Service) Deduct(ctx context.Context, tx store.Tx, storeID string, lines []Line) error {
	for _, line := range lines {
		key := store.Key{Table: s.table, ID: line.ItemID}

		var stock StockLevel
		err := tx.Get(ctx, key, &stock)
		if errors.Is(err, store.ErrNotFound) {
			return &ItemNotFoundError{ItemID: line.ItemID}
		}
		if err != nil {
			return fmt.Errorf("read stock for %s: %w", line.ItemID, err)
		}
		if stock.StoreID != storeID {
			return &StoreMismatchError{ItemID: line.ItemID, WantStore: storeID, GotStore: stock.StoreID}
		}
		if !stock.ManageStock {
			continue
		}
		units, err := stock.Units()
		if err != nil {
			return &MalformedStockError{ItemID: line.ItemID, Reason: err.Error()}
		}
		if units < line.Quantity {
			return &InsufficientStockError{ItemID: line.ItemID, Required: line.Quantity, Available: units}
		}
		if err := tx.Update(key, map[string]interface{}{
			"quantity":   units - line.Quantity,
			"updated_at": s.nowFunc().UTC(),
		}); err != nil {
			return fmt.Errorf("stage deduction for %s: %w", line.ItemID, err)
		}
	}
	return nil
}

// Restore stages quantity+requested for each line inside tx. Unlike Deduct,
// a missing or malformed item is logged and skipped rather than aborting the
// batch: failing a cancellation the customer is entitled to is worse than an
// incomplete restoration, which is left for manual reconciliation.
func (s *Service) Restore(ctx context.Context, tx store.Tx, storeID string, lines []Line) error {
	for _, line := range lines {
		key := store.Key{Table: s.table, ID: line.ItemID}

		var stock StockLevel
		err := tx.Get(ctx, key, &stock)
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("stock restore: item missing, skipping",
				zap.String("item_id", line.ItemID),
				zap.String("store_id", storeID))
			continue
		}
		if err != nil {
			return fmt.Errorf("read stock for %s: %w", line.ItemID, err)
		}
		if stock.StoreID != storeID {
			s.logger.Warn("stock restore: store mismatch, skipping",
				zap.String("item_id", line.ItemID),
				zap.String("item_store_id", stock.StoreID),
				zap.String("store_id", storeID))
			continue
		}
		if !stock.ManageStock {
			continue
		}
		units, err := stock.Units()
		if err != nil {
			s.logger.Warn("stock restore: malformed quantity, skipping",
				zap.String("item_id", line.ItemID),
				zap.Error(err))
			continue
		}
		if err := tx.Update(key, map[string]interface{}{
			"quantity":   units + line.Quantity,
			"updated_at": s.nowFunc().UTC(),
		}); err != nil {
			return fmt.Errorf("stage restoration for %s: %w", line.ItemID, err)
		}
	}
	return nil
}
