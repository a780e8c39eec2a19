package inventory

import (
	"fmt"
	"math"
	"time"
)

// Stock-status labels derived from quantity. Advisory, display-only: the
// transaction engine never reads them for correctness.
const (
	StockStatusIn  = "in_stock"
	StockStatusLow = "low_stock"
	StockStatusOut = "out_of_stock"
)

// StockLevel is the document stored per item in the stock table. Quantity is
// kept untyped because documents written by earlier tooling occasionally
// carry strings or fractions there; Units validates on read.
type StockLevel struct {
	ItemID            string      `dynamodbav:"id"` // PK
	StoreID           string      `dynamodbav:"store_id"`
	ManageStock       bool        `dynamodbav:"manage_stock"`
	Quantity          interface{} `dynamodbav:"quantity"`
	LowStockThreshold int64       `dynamodbav:"low_stock_threshold,omitempty"`
	StockStatus       string      `dynamodbav:"stock_status,omitempty"`
	UpdatedAt         time.Time   `dynamodbav:"updated_at"`
}

// Units returns the stored quantity as a non-negative whole number, or an
// error when the stored value cannot be read as one.
func (s *StockLevel) Units() (int64, error) {
	switch q := s.Quantity.(type) {
	case float64:
		if q < 0 || q != math.Trunc(q) {
			return 0, fmt.Errorf("quantity %v is not a non-negative integer", q)
		}
		return int64(q), nil
	case int64:
		if q < 0 {
			return 0, fmt.Errorf("quantity %d is negative", q)
		}
		return q, nil
	case int:
		if q < 0 {
			return 0, fmt.Errorf("quantity %d is negative", q)
		}
		return int64(q), nil
	default:
		return 0, fmt.Errorf("quantity has type %T, want number", s.Quantity)
	}
}

// Line is one order line item as seen by the inventory service.
type Line struct {
	ItemID   string
	Quantity int64
}

// ItemNotFoundError: the stock document for an ordered item does not exist.
type ItemNotFoundError struct {
	ItemID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item %s not found", e.ItemID)
}

func (e *ItemNotFoundError) Details() map[string]interface{} {
	return map[string]interface{}{"item_id": e.ItemID}
}

// StoreMismatchError: the item belongs to a different store than the order.
type StoreMismatchError struct {
	ItemID    string
	WantStore string
	GotStore  string
}

func (e *StoreMismatchError) Error() string {
	return fmt.Sprintf("item %s belongs to store %s, not %s", e.ItemID, e.GotStore, e.WantStore)
}

func (e *StoreMismatchError) Details() map[string]interface{} {
	return map[string]interface{}{"item_id": e.ItemID, "store_id": e.GotStore}
}

// MalformedStockError: the stored quantity is not a non-negative integer.
type MalformedStockError struct {
	ItemID string
	Reason string
}

func (e *MalformedStockError) Error() string {
	return fmt.Sprintf("item %s has malformed stock data: %s", e.ItemID, e.Reason)
}

func (e *MalformedStockError) Details() map[string]interface{} {
	return map[string]interface{}{"item_id": e.ItemID, "reason": e.Reason}
}

// InsufficientStockError carries required/available so callers can render a
// precise message.
type InsufficientStockError struct {
	ItemID    string
	Required  int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: required %d, available %d",
		e.ItemID, e.Required, e.Available)
}

func (e *InsufficientStockError) Details() map[string]interface{} {
	return map[string]interface{}{
		"item_id":   e.ItemID,
		"required":  e.Required,
		"available": e.Available,
	}
}
