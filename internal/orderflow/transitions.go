package orderflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/aws"
	"github.com/imrishuroy/resto-orderflow/internal/inventory"
	"github.com/imrishuroy/resto-orderflow/internal/store"
)

// UpdateStatus moves an order along the lifecycle state machine. The call is
// idempotent per (order, target status, actor): a repeat is a retry of the
// same logical request and replays the first outcome. Cancellation restores
// the order's stock in the same transaction that flips the status.
func (s *Service) UpdateStatus(ctx context.Context, orderID, newStatus string, actor Actor) (*StatusView, error) {
	if !KnownStatus(newStatus) {
		return nil, NewError(CodeInvalidStateTransition, "unknown target status").
			WithDetails(map[string]interface{}{"requested_status": newStatus})
	}
	if !s.roles.HasRole(actor, ElevatedRoles...) {
		return nil, NewError(CodePermissionDenied, "actor is not permitted to change order status").
			WithDetails(map[string]interface{}{"actor": actor.ID})
	}

	fingerprint := statusFingerprint(orderID, newStatus, actor.ID)
	response, _, err := s.idem.Process(ctx, fingerprint, func(ctx context.Context) (interface{}, error) {
		return s.transitionOnce(ctx, orderID, newStatus, actor)
	})
	if err != nil {
		return nil, s.classify(err, CodeUpdateFailed, "order status update failed")
	}

	var view StatusView
	if err := json.Unmarshal(response, &view); err != nil {
		return nil, NewError(CodeUpdateFailed, "decode stored status view").WithCause(err)
	}
	return &view, nil
}

// transitionOnce is the guarded body: one transaction validating the edge,
// restoring stock on cancellation, and appending to the status history.
func (s *Service) transitionOnce(ctx context.Context, orderID, newStatus string, actor Actor) (*StatusView, error) {
	key := store.Key{Table: s.table, ID: orderID}
	var view StatusView
	var cancelled Order

	err := s.db.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		var order Order
		err := tx.Get(ctx, key, &order)
		if errors.Is(err, store.ErrNotFound) {
			return NewError(CodeNotFound, "order not found").
				WithDetails(map[string]interface{}{"order_id": orderID})
		}
		if err != nil {
			return fmt.Errorf("read order %s: %w", orderID, err)
		}

		if IsTerminal(order.Status) {
			return NewError(CodeInvalidStateTransition, "order is in a terminal status").
				WithDetails(transitionDetails(order.Status, newStatus))
		}
		if !CanTransition(order.Status, newStatus) {
			return NewError(CodeInvalidStateTransition, "transition is not allowed").
				WithDetails(transitionDetails(order.Status, newStatus))
		}

		if newStatus == StatusCancelled {
			lines := make([]inventory.Line, 0, len(order.Items))
			for _, it := range order.Items {
				lines = append(lines, inventory.Line{ItemID: it.ItemID, Quantity: it.Quantity})
			}
			if err := s.inventory.Restore(ctx, tx, order.StoreID, lines); err != nil {
				return wrapInventoryError(err)
			}
			cancelled = order
		}

		now := s.nowFunc().UTC()
		history := append(order.StatusHistory, StatusHistoryEntry{
			Status:    newStatus,
			Actor:     actor.ID,
			Timestamp: now,
		})
		if err := tx.Update(key, map[string]interface{}{
			"status":         newStatus,
			"status_history": history,
			"updated_at":     now,
		}); err != nil {
			return fmt.Errorf("stage order update: %w", err)
		}
		view = StatusView{OrderID: orderID, Status: newStatus, UpdatedAt: now}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order status updated",
		zap.String("order_id", orderID),
		zap.String("new_status", newStatus),
		zap.String("actor", actor.ID))

	if newStatus == StatusCancelled {
		s.count(ctx, aws.MetricOrdersCancelled, cancelled.StoreID)
		s.publishStockChanged(ctx, cancelled.StoreID, cancelled.Items, "order_cancelled")
	}
	return &view, nil
}

// GetOrder reads one order document.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	err := s.db.Get(ctx, store.Key{Table: s.table, ID: orderID}, &order)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewError(CodeNotFound, "order not found").
			WithDetails(map[string]interface{}{"order_id": orderID})
	}
	if err != nil {
		return nil, fmt.Errorf("read order %s: %w", orderID, err)
	}
	return &order, nil
}

func transitionDetails(current, requested string) map[string]interface{} {
	return map[string]interface{}{
		"current_status":   current,
		"requested_status": requested,
	}
}
