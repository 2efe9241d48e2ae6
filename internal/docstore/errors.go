package docstore

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by Store implementations.
//
// Adapters return *Error values; they match these sentinels with errors.Is:
//
//	if errors.Is(err, docstore.ErrNotFound) {
//	    // Update targeted a document that does not exist
//	}
var (
	// ErrNotFound is returned when an operation requires an existing
	// document but none was found.
	ErrNotFound = errors.New("document not found")

	// ErrInvalidArgument is returned for malformed paths, oversized
	// batches, or values the store cannot encode.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnavailable is returned when the store could not be reached or
	// was busy. The operation may succeed on retry.
	ErrUnavailable = errors.New("store unavailable")

	// ErrAborted is returned when a transaction was aborted by the store,
	// typically because of a concurrent write. The operation may succeed
	// on retry.
	ErrAborted = errors.New("operation aborted")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("store closed")

	// ErrInternal is returned for any other store failure.
	ErrInternal = errors.New("internal store error")
)

// Code classifies a store failure.
type Code int

const (
	CodeInternal Code = iota
	CodeNotFound
	CodeInvalidArgument
	CodeUnavailable
	CodeAborted
	CodeClosed
)

var codeErrors = map[Code]error{
	CodeInternal:        ErrInternal,
	CodeNotFound:        ErrNotFound,
	CodeInvalidArgument: ErrInvalidArgument,
	CodeUnavailable:     ErrUnavailable,
	CodeAborted:         ErrAborted,
	CodeClosed:          ErrClosed,
}

// String returns the sentinel message for the code.
func (c Code) String() string {
	if err, ok := codeErrors[c]; ok {
		return err.Error()
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Error is a classified store failure.
type Error struct {
	Op   string // "set", "update", "delete", "get", "query", "commit", "watch"
	Path string // document or collection path, if any
	Code Code
	Err  error // underlying driver error, may be nil
}

// NewError returns an *Error for the given operation.
func NewError(op, path string, code Code, err error) *Error {
	return &Error{Op: op, Path: path, Code: code, Err: err}
}

func (e *Error) Error() string {
	msg := "docstore: " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Code.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error's code.
func (e *Error) Is(target error) bool {
	return codeErrors[e.Code] == target
}

// CodeOf returns the Code of the first *Error in err's chain. Context errors
// that were never classified by an adapter map to CodeUnavailable (deadline)
// and CodeAborted (cancellation).
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CodeUnavailable
	case errors.Is(err, context.Canceled):
		return CodeAborted
	}
	return CodeInternal
}

// IsTransient returns true if the error is likely to succeed on retry.
// This covers unreachable stores, lock contention and aborted transactions.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeUnavailable, CodeAborted:
		return true
	}
	return false
}
