// Package apierr implements the error taxonomy: typed errors carried
// as normal Go values (never exceptions-as-control-flow) and mapped to the
// structured HTTP error envelope at the handler boundary.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a category of error.
type Code string

const (
	// Input
	CodeInvalidInput   Code = "InvalidInput"
	CodeValidationFailed Code = "ValidationFailed"
	CodeUnknownAction  Code = "UnknownAction"
	CodeUnknownPack    Code = "UnknownPack"
	CodeInvalidEvent   Code = "InvalidEvent"

	// Authentication
	CodeUnauthenticated   Code = "Unauthenticated"
	CodeInvalidToken      Code = "InvalidToken"
	CodeExpiredToken      Code = "ExpiredToken"
	CodeInsufficientScope Code = "InsufficientScope"

	// Rate limiting
	CodeRateLimited Code = "RateLimited"
	CodeBlocked     Code = "Blocked"

	// Business
	CodeInsufficientEnergy Code = "InsufficientEnergy"
	CodeAlreadyRefunded    Code = "AlreadyRefunded"
	CodeRefundNotEligible  Code = "RefundNotEligible"
	CodePurchaseForbidden  Code = "PurchaseForbidden"

	// Concurrency
	CodeConcurrencyExhausted Code = "ConcurrencyExhausted"

	// Upstream
	CodeEventStoreUnavailable Code = "EventStoreUnavailable"
	CodeCacheUnavailable      Code = "CacheUnavailable"
	CodePaymentProviderError  Code = "PaymentProviderError"
	CodeLLMUnavailable        Code = "LLMUnavailable"
	CodeUpstreamUnavailable   Code = "UpstreamUnavailable"

	// Internal
	CodeInternal Code = "Internal"
)

// httpStatus maps each code to the HTTP status it is surfaced as.
var httpStatus = map[Code]int{
	CodeInvalidInput:     http.StatusBadRequest,
	CodeValidationFailed: http.StatusUnprocessableEntity,
	CodeUnknownAction:    http.StatusBadRequest,
	CodeUnknownPack:      http.StatusBadRequest,
	CodeInvalidEvent:     http.StatusBadRequest,

	CodeUnauthenticated:   http.StatusUnauthorized,
	CodeInvalidToken:      http.StatusUnauthorized,
	CodeExpiredToken:      http.StatusUnauthorized,
	CodeInsufficientScope: http.StatusForbidden,

	CodeRateLimited: http.StatusTooManyRequests,
	CodeBlocked:     http.StatusTooManyRequests,

	CodeInsufficientEnergy: http.StatusPaymentRequired,
	CodeAlreadyRefunded:    http.StatusConflict,
	CodeRefundNotEligible:  http.StatusUnprocessableEntity,
	CodePurchaseForbidden:  http.StatusConflict,

	CodeConcurrencyExhausted: http.StatusConflict,

	CodeEventStoreUnavailable: http.StatusServiceUnavailable,
	CodeCacheUnavailable:      http.StatusServiceUnavailable,
	CodePaymentProviderError:  http.StatusBadGateway,
	CodeLLMUnavailable:        http.StatusBadGateway,
	CodeUpstreamUnavailable:   http.StatusServiceUnavailable,

	CodeInternal: http.StatusInternalServerError,
}

// errorType groups codes into the broad category named in the envelope's
// "type" field (input, authentication, rate_limiting, business, concurrency,
// upstream, internal), mirroring the error taxonomy headings.
var errorType = map[Code]string{
	CodeInvalidInput:     "input",
	CodeValidationFailed: "input",
	CodeUnknownAction:    "input",
	CodeUnknownPack:      "input",
	CodeInvalidEvent:     "input",

	CodeUnauthenticated:   "authentication",
	CodeInvalidToken:      "authentication",
	CodeExpiredToken:      "authentication",
	CodeInsufficientScope: "authentication",

	CodeRateLimited: "rate_limiting",
	CodeBlocked:     "rate_limiting",

	CodeInsufficientEnergy: "business",
	CodeAlreadyRefunded:    "business",
	CodeRefundNotEligible:  "business",
	CodePurchaseForbidden:  "business",

	CodeConcurrencyExhausted: "concurrency",

	CodeEventStoreUnavailable: "upstream",
	CodeCacheUnavailable:      "upstream",
	CodePaymentProviderError:  "upstream",
	CodeLLMUnavailable:        "upstream",
	CodeUpstreamUnavailable:   "upstream",

	CodeInternal: "internal",
}

// Error is a typed API error carrying a code, a human message, and optional
// structured details the client can act on (e.g. deficit, suggested_pack).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the HTTP status code this error maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Type returns the broad error category for the envelope's "type" field.
func (e *Error) Type() string {
	if t, ok := errorType[e.Code]; ok {
		return t
	}
	return "internal"
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that also carries the underlying cause, so
// errors.Is/errors.As chains continue to resolve through it.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails attaches structured detail fields and returns the receiver for chaining.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, else CodeInternal.
func CodeOf(err error) Code {
	if apiErr, ok := As(err); ok {
		return apiErr.Code
	}
	return CodeInternal
}
