package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/store"
)

// DeriveStatus computes the display label for a stock level. Items without
// stock tracking always read as in stock.
func DeriveStatus(manageStock bool, quantity, lowThreshold int64) string {
	if !manageStock {
		return StockStatusIn
	}
	switch {
	case quantity <= 0:
		return StockStatusOut
	case quantity <= lowThreshold:
		return StockStatusLow
	default:
		return StockStatusIn
	}
}

// StatusDeriver recomputes the denormalized stock_status label after stock
// changes. It runs off the write path (driven by stock-changed events) and
// writes the label only when it differs, so repeated events settle without
// redundant writes.
type StatusDeriver struct {
	db               store.Adapter
	table            string
	defaultThreshold int64
	logger           *zap.Logger
}

// NewStatusDeriver returns a deriver over the stock table. defaultThreshold
// applies to documents without their own low_stock_threshold.
func NewStatusDeriver(db store.Adapter, table string, defaultThreshold int64, logger *zap.Logger) *StatusDeriver {
	return &StatusDeriver{
		db:               db,
		table:            table,
		defaultThreshold: defaultThreshold,
		logger:           logger,
	}
}

// Refresh recomputes the label for one item and reports whether it changed.
// A missing item is not an error: it may have been deleted after the event
// was queued.
func (d *StatusDeriver) Refresh(ctx context.Context, itemID string) (bool, error) {
	key := store.Key{Table: d.table, ID: itemID}
	changed := false

	err := d.db.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		changed = false

		var stock StockLevel
		err := tx.Get(ctx, key, &stock)
		if errors.Is(err, store.ErrNotFound) {
			d.logger.Info("stock status refresh: item gone", zap.String("item_id", itemID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("read stock for %s: %w", itemID, err)
		}

		units, err := stock.Units()
		if err != nil {
			// Advisory label only; leave malformed documents alone.
			d.logger.Warn("stock status refresh: malformed quantity, skipping",
				zap.String("item_id", itemID),
				zap.Error(err))
			return nil
		}

		threshold := stock.LowStockThreshold
		if threshold <= 0 {
			threshold = d.defaultThreshold
		}
		label := DeriveStatus(stock.ManageStock, units, threshold)
		if label == stock.StockStatus {
			return nil
		}
		changed = true
		return tx.Update(key, map[string]interface{}{"stock_status": label})
	})
	return changed, err
}
