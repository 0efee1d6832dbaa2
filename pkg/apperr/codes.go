// Package apperr defines the stable error codes surfaced by the service.
package apperr

import "net/http"

// Code is a machine-readable error code. Values are part of the public API
// and must not change once released.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Session errors
	CodeSessionNotFound      Code = "SESSION_NOT_FOUND"
	CodeSessionNotPaid       Code = "SESSION_NOT_PAID"
	CodeSessionPayerMismatch Code = "SESSION_PAYER_MISMATCH"

	// Payment errors
	CodePaymentUnverified  Code = "PAYMENT_UNVERIFIED"
	CodePaymentProofReused Code = "PAYMENT_PROOF_REUSED"

	// Storage errors
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
	CodePlayerNotFound   Code = "PLAYER_NOT_FOUND"

	// Payout errors
	CodeSettlementFailed    Code = "SETTLEMENT_FAILED"
	CodeCycleAlreadyRunning Code = "CYCLE_ALREADY_RUNNING"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeUnauthorized    Code = "UNAUTHORIZED"
)

// HTTPStatus maps a code to the status returned by the HTTP API.
func HTTPStatus(code Code) int {
	switch code {
	case CodeSessionNotFound, CodePlayerNotFound:
		return http.StatusNotFound
	case CodeSessionNotPaid:
		return http.StatusPaymentRequired
	case CodeSessionPayerMismatch, CodeUnauthorized:
		return http.StatusForbidden
	case CodePaymentUnverified:
		return http.StatusPaymentRequired
	case CodePaymentProofReused, CodeCycleAlreadyRunning:
		return http.StatusConflict
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeSettlementFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
