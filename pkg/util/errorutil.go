package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spec-kit/credential-service/internal/domain"
)

// DomainError standardizes application errors at the HTTP boundary.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
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

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewTooManyRequests(message string) error {
	return NewDomainError("RATE_LIMITED", message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// sentinelMappings is checked in order; the first match wins.
var sentinelMappings = []struct {
	target  error
	code    string
	message string
	status  int
}{
	{domain.ErrInvalidInput, "VALIDATION_FAILED", "", http.StatusBadRequest},
	{domain.ErrNotFound, "NOT_FOUND", "resource not found", http.StatusNotFound},
	{domain.ErrSignatureInvalid, "SIGNATURE_INVALID", "credential could not be verified", http.StatusUnprocessableEntity},
	{domain.ErrRevoked, "REVOKED", "credential has been revoked", http.StatusConflict},
	{domain.ErrExpired, "EXPIRED", "resource has expired", http.StatusGone},
	{domain.ErrUsageExceeded, "USAGE_EXCEEDED", "usage limit exceeded", http.StatusConflict},
	{domain.ErrConflict, "CONFLICT", "resource conflict", http.StatusConflict},
	{domain.ErrCheckInTimeout, "TIMEOUT", "request timed out", http.StatusGatewayTimeout},
	{domain.ErrStoreUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable", http.StatusServiceUnavailable},
}

// FromDomain translates domain sentinels into a DomainError. Unknown errors return nil.
func FromDomain(err error) *DomainError {
	if err == nil {
		return nil
	}
	for _, m := range sentinelMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		de := NewDomainError(m.code, msg, m.status, nil)
		if m.status >= http.StatusInternalServerError {
			de.Err = err
		}
		return de
	}
	return nil
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if de := FromDomain(err); de != nil {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
