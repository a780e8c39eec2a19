package orderflow

import "time"

// Order statuses. pending_payment -> confirmed -> preparing ->
// ready_for_pickup -> completed, with cancelled reachable from any
// non-terminal status. completed and cancelled are terminal.
const (
	StatusPendingPayment = "pending_payment"
	StatusConfirmed      = "confirmed"
	StatusPreparing      = "preparing"
	StatusReadyForPickup = "ready_for_pickup"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
)

// transitions holds every legal edge. Anything not listed is rejected:
// unknown target statuses fail closed instead of falling through.
var transitions = map[string][]string{
	StatusPendingPayment: {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusPreparing, StatusCancelled},
	StatusPreparing:      {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusCompleted, StatusCancelled},
}

// IsTerminal reports whether no further transition is permitted.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// CanTransition reports whether from -> to is an explicit legal edge.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// KnownStatus reports whether s is one of the defined order statuses.
func KnownStatus(s string) bool {
	switch s {
	case StatusPendingPayment, StatusConfirmed, StatusPreparing,
		StatusReadyForPickup, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Elevated roles permitted to drive status transitions. Customers are not.
const (
	RoleAdmin    = "admin"
	RoleManager  = "manager"
	RoleStaff    = "staff"
	RoleCustomer = "customer"
)

// ElevatedRoles lists the roles allowed to call UpdateStatus.
var ElevatedRoles = []string{RoleAdmin, RoleManager, RoleStaff}

// Actor identifies who is performing an operation.
type Actor struct {
	ID    string
	Roles []string
}

// RoleChecker is the permission evaluator consumed before status
// transitions. Policy itself lives outside this engine.
type RoleChecker interface {
	HasRole(actor Actor, roles ...string) bool
}

// OrderItem is one line of an order.
type OrderItem struct {
	ItemID    string  `dynamodbav:"item_id" json:"item_id"`
	Quantity  int64   `dynamodbav:"quantity" json:"quantity"`
	UnitPrice float64 `dynamodbav:"unit_price" json:"unit_price"`
}

// StatusHistoryEntry is one element of an order's append-only status log.
type StatusHistoryEntry struct {
	Status    string    `dynamodbav:"status" json:"status"`
	Actor     string    `dynamodbav:"actor" json:"actor"`
	Timestamp time.Time `dynamodbav:"timestamp" json:"timestamp"`
}

// Order is the document stored per order. TotalAmount is always computed
// server-side from Items; orders are never deleted, cancellation is a status.
type Order struct {
	OrderID       string               `dynamodbav:"id" json:"order_id"` // PK
	CustomerID    string               `dynamodbav:"customer_id" json:"customer_id"`
	StoreID       string               `dynamodbav:"store_id" json:"store_id"`
	Items         []OrderItem          `dynamodbav:"items" json:"items"`
	TotalAmount   float64              `dynamodbav:"total_amount" json:"total_amount"`
	Status        string               `dynamodbav:"status" json:"status"`
	StatusHistory []StatusHistoryEntry `dynamodbav:"status_history" json:"status_history"`
	CreatedAt     time.Time            `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt     time.Time            `dynamodbav:"updated_at" json:"updated_at"`
}

// StatusView is the field subset returned by UpdateStatus.
type StatusView struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateOrderInput is the payload for CreateOrder. ClientTotal is whatever
// total the client claimed; it is logged on mismatch, never trusted.
type CreateOrderInput struct {
	CustomerID  string
	StoreID     string
	Items       []OrderItem
	ClientTotal float64
}
