package validation

// Item represents a single order line item.
type Item struct {
	ItemID   string  `json:"item_id" validate:"required"`
	Quantity int64   `json:"quantity" validate:"required,min=1"` // must be >= 1
	Price    float64 `json:"price" validate:"gte=0"`             // price per unit
}

// CreateOrderRequest is the payload for POST /orders. TotalAmount is the
// total the client claims; the engine recomputes its own and only logs a
// mismatch.
type CreateOrderRequest struct {
	CustomerID  string                 `json:"customer_id" validate:"required"`
	StoreID     string                 `json:"store_id" validate:"required"`
	Items       []Item                 `json:"items" validate:"required,min=1,dive"`
	TotalAmount float64                `json:"total_amount,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// UpdateStatusRequest is the payload for PATCH /orders/:id/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,order_status"`
}
