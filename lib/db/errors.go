package db

import (
	"errors"
	"fmt"

	"github.com/tkv-io/tKV/lib/clock"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type shared by every layer of the storage system. It
// wraps an error code (of type Code) and a message.
type Error struct {
	Code Code   // The error code
	Msg  string // The error message
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StorageError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new Error with the given code and message.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type Code uint64

const (
	CodeInternal            Code = iota // 0: Internal error.
	CodeConflict                        // 1: Concurrent mutation of the same version; retryable.
	CodeNotFound                        // 2: Namespace, ident or document absent.
	CodeNamespaceExists                 // 3: Namespace already bound.
	CodeAlreadyDropped                  // 4: Drop requested before an earlier recorded drop.
	CodeAlreadyInitialized              // 5: Singleton initialized twice.
	CodeSnapshotUnavailable             // 6: Timestamp outside retained history.
	CodeOutOfOrder                      // 7: Monotonicity or snapshot usage violation.
)

func (c Code) String() string {
	switch c {
	case CodeInternal:
		return "Internal"
	case CodeConflict:
		return "Conflict"
	case CodeNotFound:
		return "NotFound"
	case CodeNamespaceExists:
		return "NamespaceExists"
	case CodeAlreadyDropped:
		return "AlreadyDropped"
	case CodeAlreadyInitialized:
		return "AlreadyInitialized"
	case CodeSnapshotUnavailable:
		return "SnapshotUnavailable"
	case CodeOutOfOrder:
		return "OutOfOrder"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConflict reports a retryable write conflict.
func IsConflict(err error) bool { return HasCode(err, CodeConflict) }

// IsNotFound reports an absent namespace, ident or document.
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsSnapshotUnavailable reports a read outside retained history.
func IsSnapshotUnavailable(err error) bool { return HasCode(err, CodeSnapshotUnavailable) }

// IsOutOfOrder reports a monotonicity violation. The clock's own sentinel is
// folded into the same category.
func IsOutOfOrder(err error) bool {
	return HasCode(err, CodeOutOfOrder) || errors.Is(err, clock.ErrOutOfOrder)
}
