package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that carries an API code and an HTTP status
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Error codes. The first four form the taxonomy the engines report to callers.
const (
	CodeNotFound          = "NOT_FOUND"
	CodeInvalidState      = "INVALID_STATE"
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	CodePaymentFailure    = "PAYMENT_FAILURE"
	CodeBadRequest        = "BAD_REQUEST"
	CodeInternal          = "INTERNAL_ERROR"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
)

// NewAppError creates a new AppError
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// NotFoundError reports a missing request, rider, loan or user
func NotFoundError(message string, err error) *AppError {
	return NewAppError(CodeNotFound, message, http.StatusNotFound, err)
}

// InvalidStateError reports an operation that the current state does not permit
func InvalidStateError(message string, err error) *AppError {
	return NewAppError(CodeInvalidState, message, http.StatusConflict, err)
}

// InsufficientFundsError reports a debit larger than the available balance
func InsufficientFundsError(message string, err error) *AppError {
	return NewAppError(CodeInsufficientFunds, message, http.StatusUnprocessableEntity, err)
}

// PaymentFailureError reports a failure of the external payment processor
func PaymentFailureError(message string, err error) *AppError {
	return NewAppError(CodePaymentFailure, message, http.StatusBadGateway, err)
}

// BadRequest creates a 400 error
func BadRequest(message string, err error) *AppError {
	return NewAppError(CodeBadRequest, message, http.StatusBadRequest, err)
}

// Internal creates a 500 error
func Internal(message string, err error) *AppError {
	return NewAppError(CodeInternal, message, http.StatusInternalServerError, err)
}

// ServiceUnavailable creates a 503 error
func ServiceUnavailable(message string, err error) *AppError {
	return NewAppError(CodeUnavailable, message, http.StatusServiceUnavailable, err)
}

// Classifier maps a domain sentinel to an AppError constructor.
type Classifier struct {
	Target error
	Build  func(message string, err error) *AppError
}

// Classify converts an engine error into an AppError using the first
// classifier whose target matches. AppErrors pass through unchanged and
// unmatched errors become internal errors.
func Classify(err error, table []Classifier) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, c := range table {
		if errors.Is(err, c.Target) {
			return c.Build(err.Error(), err)
		}
	}
	return Internal("An unexpected error occurred", err)
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	return Classify(err, nil)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
