package ledger

import "fmt"

// Code names one member of the router's error taxonomy. It is a small
// closed string enum rather than a Go error type per failure mode: callers
// that need to branch on retryability use Code.Retryable(), not a type
// switch.
type Code string

const (
	ErrCodeConfig             Code = "config_error"
	ErrCodeNotConnected       Code = "not_connected"
	ErrCodeLedgerNotSupported Code = "ledger_not_supported"
	ErrCodeInsufficientFunds  Code = "insufficient_balance"
	ErrCodeReservationNF      Code = "reservation_not_found"
	ErrCodeAlreadyLocked      Code = "already_locked"
	ErrCodeInvalidTransition  Code = "invalid_transition"
	ErrCodeAuthorityDenied    Code = "authority_denied"
	ErrCodeTimeout            Code = "timeout"
	ErrCodeAdapter            Code = "adapter_error"
	ErrCodeStore              Code = "store_error"
	ErrCodeAlreadyRegistered  Code = "already_registered"
)

// Retryable reports whether the nearest competent layer should retry an
// operation that failed with this code.
func (c Code) Retryable() bool {
	switch c {
	case ErrCodeNotConnected, ErrCodeTimeout, ErrCodeStore:
		return true
	default:
		return false
	}
}

// Error is the router's single error type. Every failure surfaced across a
// component boundary is an *Error so callers can branch on Code instead of
// string-matching messages.
type Error struct {
	Code  Code
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error, optionally wrapping cause.
func NewError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Cause: cause}
}

// Wrap tags err with code and a message, preserving it as the cause.
func Wrap(code Code, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: msg, Cause: err}
}

// CodeOf extracts the Code from err if it (or something it wraps) is an
// *Error, otherwise returns "".
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}
