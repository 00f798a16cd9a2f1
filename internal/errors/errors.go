// Package errors defines the service error taxonomy shared by the gateway.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class across the gateway.
type Code string

const (
	CodeInvalidTenantFormat Code = "INVALID_TENANT_FORMAT"
	CodeTenantReserved      Code = "TENANT_RESERVED"
	CodeTenantTooShort      Code = "TENANT_TOO_SHORT"
	CodeTenantTooLong       Code = "TENANT_TOO_LONG"
	CodeAuthTokenMissing    Code = "AUTH_TOKEN_MISSING"
	CodeAuthTokenInvalid    Code = "AUTH_TOKEN_INVALID"
	CodeStoreNotFound       Code = "STORE_NOT_FOUND"
	CodeBadRequest          Code = "BAD_REQUEST"
	CodeUnauthorized        Code = "UNAUTHORIZED"
	CodeInternal            Code = "INTERNAL"
)

// ServiceError is the canonical error carried across component boundaries.
// It maps onto an HTTP status so handlers never guess.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	cause      error
}

func (e *ServiceError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *ServiceError) Unwrap() error { return e.cause }

// WithDetails attaches a key/value pair for diagnostics and returns the error.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Reason returns the lowercase rejection reason used in API payloads.
func (e *ServiceError) Reason() string {
	switch e.Code {
	case CodeInvalidTenantFormat:
		return "invalid_format"
	case CodeTenantReserved:
		return "reserved"
	case CodeTenantTooShort:
		return "too_short"
	case CodeTenantTooLong:
		return "too_long"
	case CodeStoreNotFound:
		return "store_not_found"
	default:
		return "error"
	}
}

func newError(code Code, message string, status int, cause error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, cause: cause}
}

// InvalidTenantFormat rejects a candidate slug whose characters are not
// lowercase alphanumerics or hyphens.
func InvalidTenantFormat(candidate string) *ServiceError {
	return newError(CodeInvalidTenantFormat, "store identifier may only contain lowercase letters, digits and hyphens", http.StatusBadRequest, nil).
		WithDetails("candidate", candidate)
}

// TenantReserved rejects a slug that collides with the reserved set.
func TenantReserved(candidate string) *ServiceError {
	return newError(CodeTenantReserved, "store identifier is reserved", http.StatusBadRequest, nil).
		WithDetails("candidate", candidate)
}

// TenantTooShort rejects a slug shorter than the minimum length.
func TenantTooShort(candidate string) *ServiceError {
	return newError(CodeTenantTooShort, "store identifier must be at least 3 characters", http.StatusBadRequest, nil).
		WithDetails("candidate", candidate)
}

// TenantTooLong rejects a slug longer than the maximum length.
func TenantTooLong(candidate string) *ServiceError {
	return newError(CodeTenantTooLong, "store identifier must be at most 63 characters", http.StatusBadRequest, nil).
		WithDetails("candidate", candidate)
}

// AuthTokenMissing signals a request with no bearer token in header or cookie.
func AuthTokenMissing() *ServiceError {
	return newError(CodeAuthTokenMissing, "missing authentication token", http.StatusUnauthorized, nil)
}

// AuthTokenInvalid signals a token the backend refused or could not verify.
func AuthTokenInvalid(cause error) *ServiceError {
	return newError(CodeAuthTokenInvalid, "invalid or expired authentication token", http.StatusUnauthorized, cause)
}

// StoreNotFound signals a store id absent from the caller's available list.
// Recoverable: handlers render a message with a link back to selection.
func StoreNotFound(storeID string) *ServiceError {
	return newError(CodeStoreNotFound, "store not found", http.StatusNotFound, nil).
		WithDetails("store_id", storeID)
}

// BadRequest wraps a client error with a stable code.
func BadRequest(message string) *ServiceError {
	return newError(CodeBadRequest, message, http.StatusBadRequest, nil)
}

// Unauthorized wraps an authorization failure with a stable code.
func Unauthorized(message string) *ServiceError {
	return newError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// Internal wraps an unexpected failure. The cause is kept for logs and never
// serialized to clients.
func Internal(message string, cause error) *ServiceError {
	return newError(CodeInternal, message, http.StatusInternalServerError, cause)
}

// GetServiceError extracts a *ServiceError from err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}
	return nil
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
