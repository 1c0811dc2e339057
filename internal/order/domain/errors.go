package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError is surfaced to the caller as a client error before any
// side effect happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// StockShortageError names the product whose conditional decrement was
// rejected. The decrement is authoritative even when an earlier check passed.
type StockShortageError struct {
	ProductID string
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s", e.ProductID)
}

func (e *StockShortageError) Is(target error) bool { return target == ErrInsufficientStock }

// SagaAbortError reports a mid-saga failure after the order row was
// persisted: which step failed, and whether every already-applied stock
// adjustment was reversed synchronously. When Compensated is false the
// remaining reversals sit in the durable compensation log.
type SagaAbortError struct {
	Step        string
	ProductID   string
	Compensated bool
	Err         error
}

func (e *SagaAbortError) Error() string {
	return fmt.Sprintf("order saga aborted at %s: %v (compensated=%t)", e.Step, e.Err, e.Compensated)
}

func (e *SagaAbortError) Unwrap() error { return e.Err }

// IntegrationError marks a partial failure after the order was persisted
// that does not roll the order back, e.g. the cart clear failing.
type IntegrationError struct {
	Step string
	Err  error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("integration failure at %s: %v", e.Step, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }
