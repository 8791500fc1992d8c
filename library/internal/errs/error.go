package errs

import (
	"errors"
)

type Kind uint8

const (
	KindNotFound Kind = iota + 1
	KindInvalidState
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindInvalidState:
		return "invalid state"
	case KindValidation:
		return "validation error"
	default:
		return "unknown"
	}
}

// Error is a failure surfaced to the caller as is.
// errors.Is matches it against the kind sentinels below.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrValidation   = &Error{Kind: KindValidation}

	ErrBorrowerNotFound = New(KindNotFound, "Borrower not found")
	ErrBookNotFound     = New(KindNotFound, "Book not found")
	ErrLoanNotFound     = New(KindNotFound, "Loan not found")
	ErrBookNotAvailable = New(KindInvalidState, "Book not available")
)

// KindOf reports the kind of the first *Error in err's chain, 0 if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
