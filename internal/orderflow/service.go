package orderflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/resto-orderflow/internal/aws"
	"github.com/imrishuroy/resto-orderflow/internal/idempotency"
	"github.com/imrishuroy/resto-orderflow/internal/inventory"
	"github.com/imrishuroy/resto-orderflow/internal/store"
)

// StockEventPublisher notifies the stock-status deriver after a committed
// transaction changed stock. Publishing is best effort and off the
// correctness path.
type StockEventPublisher interface {
	PublishStockChanged(ctx context.Context, event aws.StockChangedEvent) error
}

// MetricsEmitter counts engine events. May be nil.
type MetricsEmitter interface {
	Count(ctx context.Context, name, storeID string)
}

// Config groups the explicit dependencies of the lifecycle service.
type Config struct {
	DB          store.Adapter
	Inventory   *inventory.Service
	Idempotency *idempotency.Coordinator
	Roles       RoleChecker
	Publisher   StockEventPublisher // optional
	Metrics     MetricsEmitter      // optional
	OrdersTable string
	Logger      *zap.Logger
}

// Service orchestrates order creation and status transitions. Every
// externally visible write happens inside one adapter transaction, and every
// operation is wrapped by the idempotency coordinator.
type Service struct {
	db        store.Adapter
	inventory *inventory.Service
	idem      *idempotency.Coordinator
	roles     RoleChecker
	publisher StockEventPublisher
	metrics   MetricsEmitter
	table     string
	logger    *zap.Logger
	nowFunc   func() time.Time
}

// NewService wires a lifecycle service from its dependencies.
func NewService(cfg Config) *Service {
	return &Service{
		db:        cfg.DB,
		inventory: cfg.Inventory,
		idem:      cfg.Idempotency,
		roles:     cfg.Roles,
		publisher: cfg.Publisher,
		metrics:   cfg.Metrics,
		table:     cfg.OrdersTable,
		logger:    cfg.Logger,
		nowFunc:   time.Now,
	}
}

// CreateOrder turns a submitted order into a durably committed order record
// with a server-computed total and atomically deducted stock. Retries with
// the same logical parameters replay the first result instead of deducting
// twice.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderInput, actor Actor) (*Order, error) {
	total, err := s.computeTotal(input)
	if err != nil {
		return nil, err
	}

	fingerprint := createFingerprint(actor.ID, input.StoreID, input.Items, total)
	response, replayed, err := s.idem.Process(ctx, fingerprint, func(ctx context.Context) (interface{}, error) {
		return s.createOnce(ctx, input, actor, total)
	})
	if err != nil {
		return nil, s.classify(err, CodeCreateFailed, "order creation failed")
	}
	if replayed {
		s.count(ctx, aws.MetricIdempotentReplays, input.StoreID)
	}

	var order Order
	if err := json.Unmarshal(response, &order); err != nil {
		return nil, NewError(CodeCreateFailed, "decode stored order").WithCause(err)
	}
	return &order, nil
}

// createOnce is the guarded body: one transaction deducting stock and
// writing the order, then a read of the committed document.
func (s *Service) createOnce(ctx context.Context, input CreateOrderInput, actor Actor, total float64) (*Order, error) {
	orderID := s.db.NewID()
	key := store.Key{Table: s.table, ID: orderID}
	lines := make([]inventory.Line, 0, len(input.Items))
	for _, it := range input.Items {
		lines = append(lines, inventory.Line{ItemID: it.ItemID, Quantity: it.Quantity})
	}

	err := s.db.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.inventory.Deduct(ctx, tx, input.StoreID, lines); err != nil {
			return wrapInventoryError(err)
		}
		now := s.nowFunc().UTC()
		order := Order{
			OrderID:     orderID,
			CustomerID:  input.CustomerID,
			StoreID:     input.StoreID,
			Items:       input.Items,
			TotalAmount: total,
			Status:      StatusPendingPayment,
			StatusHistory: []StatusHistoryEntry{
				{Status: StatusPendingPayment, Actor: actor.ID, Timestamp: now},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Put(key, order)
	})
	if err != nil {
		var ise *inventory.InsufficientStockError
		if errors.As(err, &ise) {
			s.count(ctx, aws.MetricInsufficientStock, input.StoreID)
		}
		return nil, err
	}

	var committed Order
	if err := s.db.Get(ctx, key, &committed); err != nil {
		s.logger.Error("order committed but re-read failed",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, NewError(CodeReadAfterCreateFailed, "order created but could not be read back").
			WithDetails(map[string]interface{}{"order_id": orderID}).
			WithCause(err)
	}

	s.logger.Info("order created",
		zap.String("order_id", orderID),
		zap.String("store_id", input.StoreID),
		zap.String("actor", actor.ID),
		zap.Float64("total_amount", total),
		zap.Int("item_count", len(input.Items)))
	s.count(ctx, aws.MetricOrdersCreated, input.StoreID)
	s.publishStockChanged(ctx, input.StoreID, input.Items, "order_created")

	return &committed, nil
}

// computeTotal validates the line items and returns the authoritative total.
func (s *Service) computeTotal(input CreateOrderInput) (float64, error) {
	if len(input.Items) == 0 {
		return 0, NewError(CodeInvalidItemData, "order has no items")
	}
	var total float64
	for _, it := range input.Items {
		if it.Quantity <= 0 {
			return 0, NewError(CodeInvalidItemData, "item quantity must be positive").
				WithDetails(map[string]interface{}{"item_id": it.ItemID, "quantity": it.Quantity})
		}
		if it.UnitPrice < 0 {
			return 0, NewError(CodeInvalidItemData, "item price must not be negative").
				WithDetails(map[string]interface{}{"item_id": it.ItemID, "unit_price": it.UnitPrice})
		}
		total += float64(it.Quantity) * it.UnitPrice
	}
	if total <= 0 {
		return 0, NewError(CodeInvalidTotalAmount, "computed total must be positive").
			WithDetails(map[string]interface{}{"total_amount": total})
	}
	if input.ClientTotal != 0 && cents(input.ClientTotal) != cents(total) {
		s.logger.Warn("client total differs from computed total, ignoring client value",
			zap.Float64("client_total", input.ClientTotal),
			zap.Float64("computed_total", total))
	}
	return total, nil
}

// classify maps infrastructure and coordinator errors onto caller-facing
// codes, passing already-coded errors through unchanged.
func (s *Service) classify(err error, fallback ErrorCode, message string) error {
	if oe, ok := AsError(err); ok {
		return oe
	}
	if errors.Is(err, idempotency.ErrConcurrentRequest) {
		return NewError(CodeConcurrentRequest, "an identical request is already in progress").WithCause(err)
	}
	s.logger.Error(message, zap.Error(err))
	return NewError(fallback, message).WithCause(err)
}

func (s *Service) publishStockChanged(ctx context.Context, storeID string, items []OrderItem, reason string) {
	if s.publisher == nil {
		return
	}
	itemIDs := make([]string, 0, len(items))
	for _, it := range items {
		itemIDs = append(itemIDs, it.ItemID)
	}
	event := aws.StockChangedEvent{StoreID: storeID, ItemIDs: itemIDs, Reason: reason}
	if err := s.publisher.PublishStockChanged(ctx, event); err != nil {
		s.logger.Warn("failed to publish stock-changed event",
			zap.String("store_id", storeID),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func (s *Service) count(ctx context.Context, name, storeID string) {
	if s.metrics != nil {
		s.metrics.Count(ctx, name, storeID)
	}
}

// wrapInventoryError surfaces an inventory failure under the inventory_error
// code without losing the structured reason.
func wrapInventoryError(err error) error {
	type detailed interface {
		error
		Details() map[string]interface{}
	}
	var de detailed
	if errors.As(err, &de) {
		return NewError(CodeInventoryError, de.Error()).
			WithDetails(de.Details()).
			WithCause(err)
	}
	return fmt.Errorf("inventory: %w", err)
}

func cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
