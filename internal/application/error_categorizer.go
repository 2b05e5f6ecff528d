package application

import (
	"context"
	"errors"
	"net/http"

	"github.com/DanielPopoola/x402-gateway/internal/domain"
)

// ErrorCategory represents the nature of an error for retry and response logic
type ErrorCategory string

const (
	CategoryTransient      ErrorCategory = "TRANSIENT"
	CategoryBusinessRule   ErrorCategory = "BUSINESS_RULE"
	CategoryClientError    ErrorCategory = "CLIENT_ERROR"
	CategoryInfrastructure ErrorCategory = "INFRASTRUCTURE"
)

// CategorizeError determines error category for retry and logging purposes
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	if svcErr, ok := IsServiceError(err); ok {
		switch svcErr.Code {
		case ErrCodeLedgerUnavailable, ErrCodeTimeout, ErrCodeRateLimited:
			return CategoryTransient
		case ErrCodeInvalidInput:
			return CategoryClientError
		case ErrCodeInternal:
			return CategoryInfrastructure
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	// Client can recover by paying or asking for a fresh challenge
	if errors.Is(err, domain.ErrRequestNotFound) ||
		errors.Is(err, domain.ErrRequestExpired) ||
		errors.Is(err, domain.ErrPaymentNotVerified) ||
		errors.Is(err, domain.ErrInsufficientPayment) {
		return CategoryBusinessRule
	}

	if errors.Is(err, domain.ErrInvalidRequestID) ||
		errors.Is(err, domain.ErrMissingRequiredField) ||
		errors.Is(err, domain.ErrInvalidAmount) {
		return CategoryClientError
	}

	// Includes domain.ErrInvalidState: the transition guard caught a race or a bug
	return CategoryInfrastructure
}

// IsRetryable returns true if the error category suggests retry
func IsRetryable(err error) bool {
	return CategorizeError(err) == CategoryTransient
}

// ToHTTPStatus maps error to appropriate HTTP status code
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	switch {
	case errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrRequestExpired),
		errors.Is(err, domain.ErrPaymentNotVerified),
		errors.Is(err, domain.ErrInsufficientPayment):
		return http.StatusPaymentRequired

	case errors.Is(err, domain.ErrInvalidRequestID),
		errors.Is(err, domain.ErrMissingRequiredField),
		errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

// ToErrorCode clear error code for API responses
func ToErrorCode(err error) string {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}

	return ErrCodeInternal
}
