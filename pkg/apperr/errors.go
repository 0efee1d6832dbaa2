package apperr

import (
	"errors"
	"fmt"
)

// Error is a coded error. Two Errors match under errors.Is when their codes
// are equal, so wrapped or re-created errors still compare against the
// sentinels below.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	// ErrSessionNotFound indicates an unknown, expired or already consumed session.
	ErrSessionNotFound = New(CodeSessionNotFound, "session not found")

	// ErrSessionNotPaid indicates a consume attempted before payment.
	ErrSessionNotPaid = New(CodeSessionNotPaid, "session not paid")

	// ErrSessionPayerMismatch indicates a consume by a wallet other than the payer.
	ErrSessionPayerMismatch = New(CodeSessionPayerMismatch, "session payer mismatch")

	// ErrPaymentUnverified indicates the verifier rejected the payment proof.
	ErrPaymentUnverified = New(CodePaymentUnverified, "payment unverified")

	// ErrPaymentProofReused indicates a payment proof that already opened a session.
	ErrPaymentProofReused = New(CodePaymentProofReused, "payment proof already used")

	// ErrStoreUnavailable indicates a persistence I/O failure.
	ErrStoreUnavailable = New(CodeStoreUnavailable, "store unavailable")

	// ErrPlayerNotFound indicates a player without lifetime stats.
	ErrPlayerNotFound = New(CodePlayerNotFound, "player not found")

	// ErrSettlementFailed indicates the ledger call failed or reverted.
	ErrSettlementFailed = New(CodeSettlementFailed, "settlement failed")

	// ErrCycleAlreadyRunning indicates the payout overlap guard rejected a trigger.
	ErrCycleAlreadyRunning = New(CodeCycleAlreadyRunning, "payout cycle already running")

	// ErrInvalidArgument indicates malformed input.
	ErrInvalidArgument = New(CodeInvalidArgument, "invalid argument")

	// ErrUnauthorized indicates missing or wrong admin credentials.
	ErrUnauthorized = New(CodeUnauthorized, "unauthorized")
)

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Invalid returns an INVALID_ARGUMENT error with a specific message.
func Invalid(format string, args ...interface{}) *Error {
	return New(CodeInvalidArgument, fmt.Sprintf(format, args...))
}

// Unavailable wraps a persistence failure as STORE_UNAVAILABLE.
func Unavailable(op string, err error) *Error {
	return Wrap(CodeStoreUnavailable, op, err)
}

// CodeOf extracts the code of err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}
