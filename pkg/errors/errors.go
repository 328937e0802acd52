package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound              = "NOT_FOUND"
	CodeValidation            = "VALIDATION_ERROR"
	CodeConflict              = "CONFLICT"
	CodeInternal              = "INTERNAL_ERROR"
	CodeBadRequest            = "BAD_REQUEST"
	CodeTimeout               = "TIMEOUT"
	CodeUnavailable           = "SERVICE_UNAVAILABLE"
	CodeInvalidInput          = "INVALID_INPUT"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeHoldExpired           = "HOLD_EXPIRED"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeAlreadyCancelled      = "ALREADY_CANCELLED"
	CodePaymentFailed         = "PAYMENT_FAILED"
	CodeRateLimited           = "RATE_LIMITED"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Retryable  bool           `json:"retryable,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(e.Response())
	return data
}

// Response is the client-facing projection. The wrapped cause never leaves the process.
func (e *AppError) Response() ErrorResponse {
	return ErrorResponse{
		Code:      e.Code,
		Message:   e.Message,
		Details:   e.Details,
		Retryable: e.Retryable,
	}
}

type ErrorResponse struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Timeout(message string) *AppError {
	return &AppError{
		Code:       CodeTimeout,
		Message:    message,
		HTTPStatus: http.StatusGatewayTimeout,
		Retryable:  true,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

// InsufficientInventory is a business error: the caller should pick another plan.
func InsufficientInventory(message string) *AppError {
	return &AppError{
		Code:       CodeInsufficientInventory,
		Message:    message,
		HTTPStatus: http.StatusConflict,
		Retryable:  true,
	}
}

func HoldExpired(message string) *AppError {
	return &AppError{
		Code:       CodeHoldExpired,
		Message:    message,
		HTTPStatus: http.StatusGone,
	}
}

func InvalidTransition(from, action string) *AppError {
	return &AppError{
		Code:       CodeInvalidTransition,
		Message:    fmt.Sprintf("Cannot %s a booking in %s state", action, from),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"status": from,
		},
	}
}

func AlreadyCancelled() *AppError {
	return &AppError{
		Code:       CodeAlreadyCancelled,
		Message:    "Booking is already cancelled",
		HTTPStatus: http.StatusConflict,
	}
}

func PaymentFailed(message string, err error) *AppError {
	return &AppError{
		Code:       CodePaymentFailed,
		Message:    message,
		HTTPStatus: http.StatusPaymentRequired,
		Retryable:  true,
		Err:        err,
	}
}

func RateLimited() *AppError {
	return &AppError{
		Code:       CodeRateLimited,
		Message:    "Rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
