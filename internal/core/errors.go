package core

import (
	"errors"

	"github.com/coregx/dbfactory/internal/config"
)

// Predefined errors returned by registry and row set operations.
var (
	// ErrUnknownAlias is returned when no configuration exists for an alias.
	ErrUnknownAlias = config.ErrUnknownAlias
	// ErrRegistryClosed is returned by Get after Shutdown.
	ErrRegistryClosed = errors.New("connection registry is shut down")
	// ErrNoResult is returned when reading from a row set that holds no rows.
	ErrNoResult = errors.New("row set holds no result")
	// ErrNoColumn is returned when a requested column is not in the result.
	ErrNoColumn = errors.New("column not found in result")
)

// WrapError wraps an error with additional context message.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
