package domain

import (
	"errors"
	"fmt"

	invdomain "github.com/KasparTech1/Friday01/internal/inventory/domain"
	orderdomain "github.com/KasparTech1/Friday01/internal/order/domain"
)

// Kind is the stable error taxonomy exposed to dashboard clients.
type Kind string

const (
	KindValidation               Kind = "ValidationError"
	KindUnknownPart              Kind = "UnknownPart"
	KindNotFound                 Kind = "NotFound"
	KindInvalidState             Kind = "InvalidState"
	KindEmptyOrder               Kind = "EmptyOrder"
	KindInsufficientAvailability Kind = "InsufficientAvailability"
	KindInsufficientStock        Kind = "InsufficientStock"
	KindCommitFailed             Kind = "CommitFailed"
	KindInternal                 Kind = "Internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Translate maps an internal failure onto the taxonomy. CommitFailed is
// checked first because it wraps the ledger error that caused it.
func Translate(err error) error {
	if err == nil {
		return nil
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	return &Error{Kind: classify(err), Message: err.Error(), Err: err}
}

func classify(err error) Kind {
	switch {
	case errors.Is(err, invdomain.ErrCommitFailed):
		return KindCommitFailed
	case errors.Is(err, orderdomain.ErrValidation), errors.Is(err, invdomain.ErrInvalidQuantity):
		return KindValidation
	case errors.Is(err, invdomain.ErrUnknownPart):
		return KindUnknownPart
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		return KindNotFound
	case errors.Is(err, orderdomain.ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, orderdomain.ErrEmptyOrder):
		return KindEmptyOrder
	case errors.Is(err, invdomain.ErrInsufficientAvailability):
		return KindInsufficientAvailability
	case errors.Is(err, invdomain.ErrInsufficientStock):
		return KindInsufficientStock
	default:
		return KindInternal
	}
}

// KindOf returns the taxonomy kind of err, or KindInternal.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return classify(err)
}
