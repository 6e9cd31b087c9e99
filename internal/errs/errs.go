package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable fault identifier surfaced to API clients in
// the `exception` field of the response envelope.
type Code string

// Fault codes, grouped by module.
//
// Validation (400):
const (
	CodeValidation     Code = "VALIDATION_FAILED"
	CodeInvalidOrderID Code = "INVALID_ORDER_ID"
	CodeOrderIDMissing Code = "ORDER_ID_NOT_FOUND"
)

// Not found (404):
const (
	CodeOrderNotFound     Code = "ORDER_NOT_FOUND"
	CodeMilestoneNotFound Code = "MILESTONE_NOT_FOUND"
	CodeLinkNotFound      Code = "PAYMENT_LINK_NOT_FOUND"
)

// State conflicts (400):
const (
	CodeInvalidPaymentMethod    Code = "INVALID_PAYMENT_METHOD"
	CodeAlreadyPaid             Code = "ALREADY_PAID"
	CodeInvalidAmount           Code = "INVALID_AMOUNT"
	CodeLinkExpired             Code = "LINK_EXPIRED"
	CodeLinkUsed                Code = "LINK_USED"
	CodePreviousMilestoneUnpaid Code = "PREVIOUS_MILESTONE_UNPAID"
)

// Gateway and internal (mixed):
const (
	CodeTokenGeneration Code = "TOKEN_GENERATION_FAILED"
	// CodeEncryption covers outbound request encryption; this is a
	// data-integrity problem on our side, not caller error.
	CodeEncryption Code = "ENCRYPTION_FAILED"
	// CodeDecryption covers inbound callback payloads that do not decrypt;
	// malformed external input, reported as a client-class fault.
	CodeDecryption Code = "DECRYPTION_FAILED"
	CodeGateway    Code = "GATEWAY_REQUEST_FAILED"
	CodeInternal   Code = "INTERNAL_ERROR"
)

// Error is a fault with a stable code and an HTTP status. Services return it
// wrapped or bare; the HTTP layer maps it into the response envelope.
type Error struct {
	Code    Code
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is makes errors.Is(err, errs.New(code, ...)) match on code alone, so
// callers can branch without comparing messages.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, status int, format string, args ...any) *Error {
	return &Error{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return New(CodeValidation, http.StatusBadRequest, format, args...)
}

func NotFound(code Code, format string, args ...any) *Error {
	return New(code, http.StatusNotFound, format, args...)
}

func Conflict(code Code, format string, args ...any) *Error {
	return New(code, http.StatusBadRequest, format, args...)
}

func Internal(format string, args ...any) *Error {
	return New(CodeInternal, http.StatusInternalServerError, format, args...)
}

// FromErr extracts the typed fault from an error chain, defaulting to an
// opaque internal error so handler responses never leak wrapped detail.
func FromErr(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: "internal error"}
}
