package domain

import (
	"fmt"
	"strings"
)

// ErrorCode classifies an APIError for logging and client handling.
type ErrorCode string

const (
	CodeValidationFailed      ErrorCode = "validation_failed"
	CodeAuthInvalid           ErrorCode = "auth_invalid"
	CodeUnauthenticated       ErrorCode = "unauthenticated"
	CodeRateLimited           ErrorCode = "rate_limited"
	CodeOrderSignatureMismatch ErrorCode = "order_signature_mismatch"
	CodeCredentialDerivationFailed ErrorCode = "credential_derivation_failed"
	CodeCredentialPayloadInvalid   ErrorCode = "credential_payload_invalid"
	CodeUpstreamAPIError      ErrorCode = "upstream_api_error"
	CodeInternalError         ErrorCode = "internal_error"
)

// APIError is the single error type every handler returns; it carries the
// HTTP status the gateway should answer with.
type APIError struct {
	Code    ErrorCode
	Status  int
	Message string
	cause   error
}

func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *APIError) Unwrap() error { return e.cause }

func newAPIError(code ErrorCode, status int, format string, args ...any) *APIError {
	return &APIError{Code: code, Status: status, Message: fmt.Sprintf(format, args...)}
}

func ValidationFailed(format string, args ...any) *APIError {
	return newAPIError(CodeValidationFailed, 400, format, args...)
}

func AuthInvalid(format string, args ...any) *APIError {
	return newAPIError(CodeAuthInvalid, 400, format, args...)
}

func Unauthenticated(format string, args ...any) *APIError {
	return newAPIError(CodeUnauthenticated, 401, format, args...)
}

func RateLimited(format string, args ...any) *APIError {
	return newAPIError(CodeRateLimited, 429, format, args...)
}

func OrderSignatureMismatch(format string, args ...any) *APIError {
	return newAPIError(CodeOrderSignatureMismatch, 400, format, args...)
}

func CredentialDerivationFailed(err error) *APIError {
	e := newAPIError(CodeCredentialDerivationFailed, 400, "failed to derive CLOB API credentials")
	e.cause = err
	return e
}

func CredentialPayloadInvalid(format string, args ...any) *APIError {
	return newAPIError(CodeCredentialPayloadInvalid, 400, format, args...)
}

// upstreamOrderPayloadHint is appended to upstream error messages that look
// like a rejected order payload, to steer callers toward the two most common
// causes without the gateway re-deriving tick size itself.
const upstreamOrderPayloadHint = " (check tick size and signature type for this token)"

// UpstreamAPIError wraps an error surfaced by the CLOB/Gamma/WalletMetadata
// APIs, clamping status to the 400-599 range and appending a hint when the
// upstream message names an invalid order payload.
func UpstreamAPIError(status int, message string) *APIError {
	if status < 400 {
		status = 400
	}
	if status > 599 {
		status = 599
	}
	if strings.Contains(strings.ToLower(message), "invalid order payload") {
		message += upstreamOrderPayloadHint
	}
	return &APIError{Code: CodeUpstreamAPIError, Status: status, Message: message}
}

func InternalError(err error) *APIError {
	e := newAPIError(CodeInternalError, 500, "internal error")
	e.cause = err
	return e
}
