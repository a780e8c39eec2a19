package idempotency

import "time"

// Status values for idempotency records
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultTTL is how long a record guards its fingerprint. Expired records
// are treated as absent and reaped by the table's TTL on expires_at.
const DefaultTTL = 1440 * time.Minute

// Record is the shape persisted per fingerprint in the idempotency table.
// At most one record exists per fingerprint; while status is "processing"
// no second execution of the guarded operation may start.
type Record struct {
	Fingerprint  string    `dynamodbav:"id"` // PK
	Status       string    `dynamodbav:"status"`
	Response     string    `dynamodbav:"response,omitempty"` // JSON-serialized result of a completed operation
	ErrorMessage string    `dynamodbav:"error_message,omitempty"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
	ExpiresAt    int64     `dynamodbav:"expires_at"` // TTL epoch seconds
}

func (r *Record) expired(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() >= r.ExpiresAt
}
