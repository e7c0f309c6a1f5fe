// Package cerr defines the CIRIS error taxonomy used across every layer of
// the core. All recoverable failures are reified as typed outcomes here
// rather than thrown as ad-hoc errors, so the pipeline can route them to
// FINALIZE_ACTION instead of unwinding the call stack.
package cerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy's error kinds (§7 of the spec).
type Kind string

const (
	KindProhibited      Kind = "prohibited"
	KindCreditDenied    Kind = "credit_denied"
	KindConsentBlocked  Kind = "consent_blocked"
	KindTimeout         Kind = "timeout"
	KindCircuitOpen     Kind = "circuit_open"
	KindManagedAttr     Kind = "managed_attribute"
	KindValidation      Kind = "validation_error"
	KindHandlerFailure  Kind = "handler_failure"
	KindBudgetExhausted Kind = "budget_exhausted"
	KindFatal           Kind = "fatal"
)

// Sentinel errors for comparison with errors.Is. An *Error built by New
// unwraps to the sentinel of its Kind, so errors.Is still matches it after
// an op and message are attached.
var (
	ErrProhibited      = errors.New("capability is prohibited")
	ErrCreditDenied    = errors.New("insufficient credit")
	ErrConsentBlocked  = errors.New("blocked by consent policy")
	ErrTimeout         = errors.New("operation timed out")
	ErrCircuitOpen     = errors.New("no eligible provider: circuit open")
	ErrManagedAttr     = errors.New("write rejected: system-managed attribute")
	ErrValidation      = errors.New("schema validation failed")
	ErrHandlerFailure  = errors.New("handler reported failure")
	ErrBudgetExhausted = errors.New("round budget exhausted")
	ErrFatal           = errors.New("fatal invariant violation")
)

var kindToSentinel = map[Kind]error{
	KindProhibited:      ErrProhibited,
	KindCreditDenied:    ErrCreditDenied,
	KindConsentBlocked:  ErrConsentBlocked,
	KindTimeout:         ErrTimeout,
	KindCircuitOpen:     ErrCircuitOpen,
	KindManagedAttr:     ErrManagedAttr,
	KindValidation:      ErrValidation,
	KindHandlerFailure:  ErrHandlerFailure,
	KindBudgetExhausted: ErrBudgetExhausted,
	KindFatal:           ErrFatal,
}

// Error is the structured error type carrying a Kind, the failing
// operation, an optional code, and an underlying cause.
type Error struct {
	Op      string
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Op != "" {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return kindToSentinel[e.Kind]
}

// New builds a structured error for the given kind.
func New(op string, kind Kind, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

// Wrap attaches a kind and operation to an underlying error.
func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// WithCode attaches a taxonomy code (used by HandlerFailure, §4.5) and
// returns the same error for chaining.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// Is reports whether err carries the given kind, walking the error chain.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	sentinel, ok := kindToSentinel[kind]
	return ok && errors.Is(err, sentinel)
}

// IsRetryable reports whether the pipeline may legitimately retry/defer
// rather than treat the error as an immediate handler failure.
func IsRetryable(err error) bool {
	return Is(err, KindTimeout) || Is(err, KindCircuitOpen)
}

// IsFatal reports whether err should trigger orderly shutdown (§7).
func IsFatal(err error) bool {
	return Is(err, KindFatal)
}
