// Package apperr defines the error taxonomy shared by services and handlers.
// Every failure that reaches a caller carries a machine-checkable Kind and a
// human-readable message; handlers translate the Kind into an HTTP status in
// one place.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	NotFound          Kind = "not_found"
	InvalidArgument   Kind = "invalid_argument"
	InsufficientStock Kind = "insufficient_stock"
	Conflict          Kind = "conflict"
	Internal          Kind = "internal"
)

// Error is the structured error returned by the service layer.  Details is
// optional and is serialized next to the message (for example the
// requested/available quantities of a stock shortage).  Err keeps the
// underlying cause for logging and errors.Is checks.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error that keeps err as its cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// WithDetails attaches a details payload and returns the same error.
func (e *Error) WithDetails(d any) *Error {
	e.Details = d
	return e
}

// StockShortage is the details payload of an InsufficientStock error.
type StockShortage struct {
	ItemID    uint64 `json:"item_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Shortage is a convenience constructor for InsufficientStock errors.
func Shortage(itemID uint64, title string, requested, available int) *Error {
	msg := fmt.Sprintf("not enough stock for item %d", itemID)
	if title != "" {
		msg = fmt.Sprintf("not enough stock for %s", title)
	}
	return &Error{
		Kind:    InsufficientStock,
		Message: msg,
		Details: StockShortage{ItemID: itemID, Requested: requested, Available: available},
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports the Kind of err.  Errors outside the taxonomy are Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool { return err != nil && KindOf(err) == kind }

// HTTPStatus maps a Kind to the status code written by handlers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	case InvalidArgument:
		return http.StatusBadRequest
	case InsufficientStock, Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
