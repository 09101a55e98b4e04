package utility

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the coordinator and the wallet service
// report upward. Anything the adapters raise that cannot be attributed to a
// specific kind surfaces as KindInternal.
type ErrorKind string

const (
	KindInvalidArgument   ErrorKind = "invalid_argument"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindConflict          ErrorKind = "conflict"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindInternal          ErrorKind = "internal"
)

type AppError struct {
	Kind    ErrorKind
	message string
	cause   error

	// set for KindInsufficientFunds only
	Required int
	Balance  int
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.message, e.cause)
	}
	return e.message
}

func (e *AppError) Unwrap() error {
	return e.cause
}

func Err(m string) error {
	return &AppError{Kind: KindInternal, message: m}
}

func InvalidArgument(m string) error {
	return &AppError{Kind: KindInvalidArgument, message: m}
}

func NotFound(m string) error {
	return &AppError{Kind: KindNotFound, message: m}
}

func Forbidden(m string) error {
	return &AppError{Kind: KindForbidden, message: m}
}

func Conflict(m string) error {
	return &AppError{Kind: KindConflict, message: m}
}

func InsufficientFunds(required, balance int) error {
	return &AppError{
		Kind:     KindInsufficientFunds,
		message:  fmt.Sprintf("insufficient balance: required %d, available %d", required, balance),
		Required: required,
		Balance:  balance,
	}
}

func Internal(m string, cause error) error {
	return &AppError{Kind: KindInternal, message: m, cause: cause}
}

// Wrap passes taxonomy errors through untouched and wraps anything else as
// internal with context.
func Wrap(m string, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return Internal(m, err)
}

// KindOf reports the kind of any error, KindInternal for errors raised
// outside the taxonomy.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// AsAppError returns the taxonomy view of err, wrapping foreign errors as
// internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return &AppError{Kind: KindInternal, message: err.Error()}
}
