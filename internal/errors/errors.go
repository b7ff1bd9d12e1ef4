package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// DomainError is the typed error returned by every service operation. The
// HTTP boundary maps codes to status lines; the wrapped cause stays
// server-side only.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match any wrapped instance of the same code, so
// WrapError(ErrInternal, cause) still satisfies errors.Is(err, ErrInternal).
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapError attaches an underlying cause to a predefined domain error.
func WrapError(domainErr *DomainError, err error) *DomainError {
	return &DomainError{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Err:     err,
	}
}

// Predefined domain errors.
var (
	// Conflict
	ErrEmailExists      = NewDomainError("EMAIL_EXISTS", "account with this email already exists")
	ErrAlreadyActivated = NewDomainError("ALREADY_ACTIVATED", "account is already activated")

	// NotFound
	ErrAccountNotFound = NewDomainError("ACCOUNT_NOT_FOUND", "account not found")
	ErrUserNotFound    = NewDomainError("USER_NOT_FOUND", "user not found")

	// Unauthorized. The three credential failures carry distinct codes for
	// server-side logs but project onto the same 401 with the same generic
	// message, so callers cannot tell which check failed.
	ErrAccessNotGranted    = NewDomainError("ACCESS_NOT_GRANTED", "invalid credentials")
	ErrAccountNotActive    = NewDomainError("ACCOUNT_NOT_ACTIVE", "invalid credentials")
	ErrInvalidCredentials  = NewDomainError("INVALID_CREDENTIALS", "invalid credentials")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "unauthorized")
	ErrInvalidToken        = NewDomainError("INVALID_TOKEN", "invalid token")
	ErrTokenExpired        = NewDomainError("TOKEN_EXPIRED", "token has expired")
	ErrRefreshExpired      = NewDomainError("REFRESH_TOKEN_EXPIRED", "refresh token expired")
	ErrInvalidRefreshToken = NewDomainError("INVALID_REFRESH_TOKEN", "invalid refresh token")
	ErrForbidden           = NewDomainError("FORBIDDEN", "insufficient permissions")

	// BadRequest
	ErrInvalidInput   = NewDomainError("INVALID_INPUT", "invalid input")
	ErrInvalidPayload = NewDomainError("INVALID_PAYLOAD", "invalid payload")
	ErrMissingEmail   = NewDomainError("MISSING_EMAIL", "email is required for registration")
	ErrMissingProfile = NewDomainError("MISSING_PROFILE_FIELD", "provider profile is missing required data")

	// Internal
	ErrInternal = NewDomainError("INTERNAL_ERROR", "internal error")
)

// IsDomainError checks whether err carries a DomainError anywhere in its
// chain.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the DomainError from err, nil when absent.
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// ToHTTPStatus maps domain errors to HTTP status codes. Handler layer only.
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErrorToHTTPStatus(domainErr)
	}

	return http.StatusInternalServerError
}

func domainErrorToHTTPStatus(err *DomainError) int {
	switch err.Code {
	case "INVALID_INPUT", "INVALID_PAYLOAD", "MISSING_EMAIL", "MISSING_PROFILE_FIELD":
		return http.StatusBadRequest

	case "ACCESS_NOT_GRANTED", "ACCOUNT_NOT_ACTIVE", "INVALID_CREDENTIALS",
		"UNAUTHORIZED", "INVALID_TOKEN", "TOKEN_EXPIRED",
		"REFRESH_TOKEN_EXPIRED", "INVALID_REFRESH_TOKEN":
		return http.StatusUnauthorized

	case "FORBIDDEN":
		return http.StatusForbidden

	case "ACCOUNT_NOT_FOUND", "USER_NOT_FOUND":
		return http.StatusNotFound

	case "EMAIL_EXISTS", "ALREADY_ACTIVATED":
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}

// GetErrorMessage returns the caller-safe message for an error. Non-domain
// errors collapse to the generic internal message so internals never leak.
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}

	return ErrInternal.Message
}
