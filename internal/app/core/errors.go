// Package core provides shared primitives for the ledger services: the
// rejection taxonomy every entry point reports through, and the reentry
// guard protecting mutating entry points.
//
// Every rejected call wraps exactly one of the sentinel errors below so
// callers can classify failures with errors.Is while still receiving a
// human-readable reason.
package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors. Typed errors below wrap these.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("state conflict")
	ErrLimitExceeded     = errors.New("limit exceeded")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPaused            = errors.New("system paused")
	ErrReentrancy        = errors.New("reentrant call")
)

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError reports malformed or missing input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError creates a ValidationError.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// RequiredError is the common "field is required" validation failure.
func RequiredError(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "is required"}
}

// AccessDeniedError reports a caller lacking a required role or ownership.
type AccessDeniedError struct {
	Resource string
	ID       string
	Caller   string
	Reason   string
}

func (e *AccessDeniedError) Error() string {
	msg := fmt.Sprintf("access denied to %s %q for %s", e.Resource, e.ID, e.Caller)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *AccessDeniedError) Unwrap() error { return ErrForbidden }

// NewAccessDeniedError creates an AccessDeniedError.
func NewAccessDeniedError(resource, id, caller string) *AccessDeniedError {
	return &AccessDeniedError{Resource: resource, ID: id, Caller: caller}
}

// ConflictError reports a duplicate unique key or an operation applied in the
// wrong record state.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Resource, e.Key, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflictError creates a ConflictError.
func NewConflictError(resource, key, reason string) *ConflictError {
	return &ConflictError{Resource: resource, Key: key, Reason: reason}
}

// LimitError reports a violated rate, interval, cap, or batch-size rule.
type LimitError struct {
	Rule   string
	Reason string
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Reason)
}

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// NewLimitError creates a LimitError.
func NewLimitError(rule, reason string) *LimitError {
	return &LimitError{Rule: rule, Reason: reason}
}

// FundsError reports a balance too small for the requested movement.
type FundsError struct {
	Account string
	Reason  string
}

func (e *FundsError) Error() string {
	return fmt.Sprintf("account %s: %s", e.Account, e.Reason)
}

func (e *FundsError) Unwrap() error { return ErrInsufficientFunds }

// NewFundsError creates a FundsError.
func NewFundsError(account, reason string) *FundsError {
	return &FundsError{Account: account, Reason: reason}
}

// ServiceError annotates an error with the service and operation it came from.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Service, e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// WrapServiceError wraps err with service and operation context.
// Returns nil when err is nil.
func WrapServiceError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Op: op, Err: err}
}

// Classification helpers -------------------------------------------------------

// IsNotFound reports whether err is a missing-record failure.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidationError reports whether err is an input validation failure.
func IsValidationError(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsLimitExceeded reports whether err is an anti-gaming or batch limit failure.
func IsLimitExceeded(err error) bool { return errors.Is(err, ErrLimitExceeded) }

// IsInsufficientFunds reports whether err is a funds failure.
func IsInsufficientFunds(err error) bool { return errors.Is(err, ErrInsufficientFunds) }

// IsPaused reports whether err is the global pause rejection.
func IsPaused(err error) bool { return errors.Is(err, ErrPaused) }

// Kind returns the machine-readable kind label for a rejection, used for
// metrics and event payloads.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidationError(err):
		return "validation"
	case IsForbidden(err):
		return "authorization"
	case IsConflict(err):
		return "state_conflict"
	case IsLimitExceeded(err):
		return "limit_exceeded"
	case IsInsufficientFunds(err):
		return "insufficient_funds"
	case IsNotFound(err):
		return "not_found"
	case IsPaused(err):
		return "paused"
	case errors.Is(err, ErrReentrancy):
		return "reentrancy"
	default:
		return "internal"
	}
}
