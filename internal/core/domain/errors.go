package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrTransient  = errors.New("backend unavailable")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("not found")
)

var (
	ErrRetrievalNotReady  = fmt.Errorf("%w: retrieval not ready", ErrConflict)
	ErrSubmissionInFlight = fmt.Errorf("%w: submission already in flight", ErrConflict)
	ErrTrayBusy           = fmt.Errorf("%w: tray locked by another station", ErrConflict)
)

type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindTransient  ErrorKind = "transient"
	KindValidation ErrorKind = "validation"
	KindConflict   ErrorKind = "conflict"
	KindNotFound   ErrorKind = "not_found"
	KindInternal   ErrorKind = "internal"
)

// KindOf classifies err for adapters. Deadline expiry counts as transient.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrTransient), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	default:
		return KindInternal
	}
}

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
