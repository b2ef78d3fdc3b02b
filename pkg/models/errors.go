package models

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned when a scan, inspection or execution was
	// stopped by the caller, either through its context or its progress callback
	ErrCancelled = errors.New("operation cancelled")

	// ErrStateNotFound is returned by the state store when no state file exists
	ErrStateNotFound = errors.New("sync state not found")
)

// IOError reports a filesystem failure on a specific path
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError reports a state file that exists but cannot be decoded
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewIOError wraps err as an IOError unless it already is one
func NewIOError(op, path string, err error) error {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Path: path, Err: err}
}
