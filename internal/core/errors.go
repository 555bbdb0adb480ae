// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Data errors
	ErrDataGap             = &Error{Code: "DATA_GAP", Message: "missing bars in market data"}
	ErrInsufficientHistory = &Error{Code: "INSUFFICIENT_HISTORY", Message: "indicator window not full"}
	ErrMalformedData       = &Error{Code: "MALFORMED_DATA", Message: "malformed market data"}
	ErrNoData              = &Error{Code: "NO_DATA", Message: "no data available"}

	// Order and ledger errors
	ErrOrderRejected     = &Error{Code: "ORDER_REJECTED", Message: "order rejected"}
	ErrSizingVeto        = &Error{Code: "SIZING_VETO", Message: "risk sizing produced no order"}
	ErrDuplicatePosition = &Error{Code: "DUPLICATE_POSITION", Message: "position already open"}
	ErrNoPosition        = &Error{Code: "NO_POSITION", Message: "no open position"}

	// Exchange errors
	ErrExchangeTimeout = &Error{Code: "EXCHANGE_TIMEOUT", Message: "exchange call timed out"}
	ErrExchangeFailed  = &Error{Code: "EXCHANGE_FAILED", Message: "exchange call failed"}

	// Notifier errors
	ErrNotifierFailed = &Error{Code: "NOTIFIER_FAILED", Message: "notifier failed"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
