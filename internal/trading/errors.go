// Package trading defines the rejection taxonomy shared by the trade
// execution engine and the HTTP boundary. Business-rule rejections carry the
// numbers the caller needs to render a message; infrastructure failures are
// wrapped so internal detail never leaks past the boundary.
package trading

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by queries for a portfolio or position that does
// not exist where creation is not implied.
var ErrNotFound = errors.New("not found")

// InvalidOrderError rejects malformed input before any storage access.
type InvalidOrderError struct {
	Reason string
}

func (e *InvalidOrderError) Error() string {
	return "invalid order: " + e.Reason
}

// InsufficientBalanceError rejects a BUY whose total exceeds the cash balance.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s", e.Required, e.Available)
}

// InsufficientHoldingsError rejects a SELL whose quantity exceeds the held
// position.
type InsufficientHoldingsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientHoldingsError) Error() string {
	return fmt.Sprintf("insufficient holdings: requested %s, available %s", e.Requested, e.Available)
}

// ExecutionFailedError wraps a storage or infrastructure failure that forced
// a rollback. The wrapped error is for logs, not for the caller.
type ExecutionFailedError struct {
	Err error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("trade execution failed: %v", e.Err)
}

func (e *ExecutionFailedError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is a business-rule rejection rather than
// an infrastructure failure.
func IsRejection(err error) bool {
	var invalid *InvalidOrderError
	var balance *InsufficientBalanceError
	var holdings *InsufficientHoldingsError
	return errors.As(err, &invalid) || errors.As(err, &balance) || errors.As(err, &holdings)
}
