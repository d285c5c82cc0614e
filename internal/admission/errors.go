package admission

import (
	"fmt"
	"net/http"

	"gatekeeper/internal/models"
)

// ServiceError represents errors from the admission layer with HTTP context.
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common admission errors.

func NewStoreUnavailableError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeStoreUnavailable,
		Message:    "shared store unavailable",
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewRuleNotFoundError(description string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeRuleNotFound,
		Message:    fmt.Sprintf("rule %s not found", description),
		StatusCode: http.StatusNotFound,
	}
}

func NewInvalidPatternError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidPattern,
		Message:    "rule pattern does not compile",
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewValidationError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

func NewConflictError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}
