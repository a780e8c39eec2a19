package orderflow

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable classification surfaced to callers.
// Callers switch on codes, never on message text.
type ErrorCode string

const (
	CodeInvalidItemData        ErrorCode = "invalid_item_data"
	CodeInvalidTotalAmount     ErrorCode = "invalid_total_amount"
	CodeInventoryError         ErrorCode = "inventory_error"
	CodeNotFound               ErrorCode = "not_found"
	CodePermissionDenied       ErrorCode = "permission_denied"
	CodeInvalidStateTransition ErrorCode = "invalid_state_transition"
	CodeConcurrentRequest      ErrorCode = "concurrent_request"
	CodeCreateFailed           ErrorCode = "create_failed"
	CodeUpdateFailed           ErrorCode = "update_failed"
	CodeReadAfterCreateFailed  ErrorCode = "read_after_create_failed"
)

// Error is a business rejection with a code and structured details.
type Error struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError returns an Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches structured details for the caller to render.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error for logs without changing the code.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// AsError extracts an *Error from an error chain.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}
