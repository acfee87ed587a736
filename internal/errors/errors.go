// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrGateTimeout        = errors.New("timed out waiting for execution slot")
	ErrPositionNotFound   = errors.New("position not found")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrTotalCapReached    = errors.New("total position limit reached")
	ErrNothingToClose     = errors.New("nothing to close")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrSchedulerStopped   = errors.New("scheduler stopped")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrStorageClosed      = errors.New("storage closed")
)

// SizingError reports why an open order was rejected by the risk sizer.
// Sizing rejections are per-decision: the caller logs them and moves on.
type SizingError struct {
	Symbol  string
	Rule    string
	Needed  float64
	Limit   float64
	Message string
}

func (e *SizingError) Error() string {
	return fmt.Sprintf("sizing rejected [%s] %s: %s (needed: %.2f, limit: %.2f)",
		e.Rule, e.Symbol, e.Message, e.Needed, e.Limit)
}

// NewSizingError creates a new SizingError.
func NewSizingError(symbol, rule string, needed, limit float64, message string) *SizingError {
	return &SizingError{
		Symbol:  symbol,
		Rule:    rule,
		Needed:  needed,
		Limit:   limit,
		Message: message,
	}
}

// OrderError represents a failure while executing a single decision.
type OrderError struct {
	Symbol string
	Action string
	Err    error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order error %s %s: %v", e.Action, e.Symbol, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(symbol, action string, err error) *OrderError {
	return &OrderError{Symbol: symbol, Action: action, Err: err}
}

// ExchangeError represents an error from the exchange collaborator.
type ExchangeError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("exchange error [%s] %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("exchange error [%s]: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// NewExchangeError creates a new ExchangeError.
func NewExchangeError(op, symbol string, err error) *ExchangeError {
	return &ExchangeError{Op: op, Symbol: symbol, Err: err}
}

// CycleError represents a failure that skips an entire trading cycle.
type CycleError struct {
	AgentID string
	Cycle   int
	Err     error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle %d failed for agent %s: %v", e.Cycle, e.AgentID, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// NewCycleError creates a new CycleError.
func NewCycleError(agentID string, cycle int, err error) *CycleError {
	return &CycleError{AgentID: agentID, Cycle: cycle, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
