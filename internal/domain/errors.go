package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business logic error
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

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so the sentinels
// below work with errors.Is regardless of message details.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Domain validation errors
const (
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeRequestExpired       = "REQUEST_EXPIRED"
	ErrCodeRequestNotFound      = "REQUEST_NOT_FOUND"
	ErrCodeDuplicateRequestID   = "DUPLICATE_REQUEST_ID"
	ErrCodePaymentNotVerified   = "PAYMENT_NOT_VERIFIED"
	ErrCodeInsufficientPayment  = "INSUFFICIENT_PAYMENT"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeInvalidRequestID     = "INVALID_REQUEST_ID"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
)

var (
	ErrInvalidState         = &DomainError{Code: ErrCodeInvalidState, Message: "invalid state"}
	ErrRequestExpired       = &DomainError{Code: ErrCodeRequestExpired, Message: "request expired"}
	ErrRequestNotFound      = &DomainError{Code: ErrCodeRequestNotFound, Message: "request not found"}
	ErrDuplicateRequestID   = &DomainError{Code: ErrCodeDuplicateRequestID, Message: "request ID already exists"}
	ErrPaymentNotVerified   = &DomainError{Code: ErrCodePaymentNotVerified, Message: "payment not verified"}
	ErrInsufficientPayment  = &DomainError{Code: ErrCodeInsufficientPayment, Message: "insufficient payment"}
	ErrMissingRequiredField = &DomainError{Code: ErrCodeMissingRequiredField, Message: "missing required field"}
	ErrInvalidRequestID     = &DomainError{Code: ErrCodeInvalidRequestID, Message: "invalid request ID"}
	ErrInvalidAmount        = &DomainError{Code: ErrCodeInvalidAmount, Message: "invalid amount"}
)

func NewMissingRequiredFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingRequiredField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

func NewInvalidStateError(id string, current RequestStatus, expected RequestStatus, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("invalid state: request %s is %s, expected %s", id, current, expected),
		Err:     err,
	}
}

// NewUnknownRequestStateError reports a transition attempted on a record the registry does not hold.
func NewUnknownRequestStateError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("invalid state: request %s does not exist", id),
	}
}

func NewInvalidTransitionError(from, to RequestStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidState,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewRequestNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeRequestNotFound,
		Message: fmt.Sprintf("request %s not found", id),
	}
}

func NewRequestExpiredError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeRequestExpired,
		Message: fmt.Sprintf("request %s has expired", id),
	}
}

func NewPaymentNotVerifiedError(id string, status RequestStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodePaymentNotVerified,
		Message: fmt.Sprintf("payment for request %s not verified (status %s)", id, status),
	}
}

func NewInvalidRequestIDError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidRequestID,
		Message: fmt.Sprintf("invalid request ID %q", id),
	}
}

func NewInvalidAmountError(raw string, err error) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %q", raw),
		Err:     err,
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
