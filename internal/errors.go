package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "VALIDATION_ERROR"
	ErrorTypeGatewayCreate      ErrorType = "GATEWAY_CREATE_ERROR"
	ErrorTypeCard               ErrorType = "CARD_ERROR"
	ErrorTypeUnexpectedResponse ErrorType = "UNEXPECTED_RESPONSE_SHAPE"
	ErrorTypeFetch              ErrorType = "FETCH_ERROR"
	ErrorTypeConflict           ErrorType = "CONFLICT"
	ErrorTypeInternal           ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed   ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	ErrCodeAmountTooLow       ErrorCode = "AMOUNT_TOO_LOW"
	ErrCodeBankRequired       ErrorCode = "BANK_REQUIRED"
	ErrCodeUnsupportedMethod  ErrorCode = "UNSUPPORTED_METHOD"
	ErrCodeUnsupportedPair    ErrorCode = "UNSUPPORTED_INTEGRATION"
	ErrCodeInvalidCardDetails ErrorCode = "INVALID_CARD_DETAILS"

	ErrCodeGatewayRejected    ErrorCode = "GATEWAY_REJECTED"
	ErrCodeGatewayUnavailable ErrorCode = "GATEWAY_UNAVAILABLE"
	ErrCodeUnexpectedResponse ErrorCode = "UNEXPECTED_RESPONSE"

	ErrCodeCardDeclined  ErrorCode = "CARD_DECLINED"
	ErrCodeCardInvalid   ErrorCode = "CARD_INVALID"
	ErrCodeCardSDKFailed ErrorCode = "CARD_SDK_FAILED"

	ErrCodeCapabilitiesUnavailable ErrorCode = "CAPABILITIES_UNAVAILABLE"

	ErrCodeSubmitInProgress ErrorCode = "SUBMIT_IN_PROGRESS"
	ErrCodeFlowNotReady     ErrorCode = "FLOW_NOT_READY"
	ErrCodeFlowCompleted    ErrorCode = "FLOW_COMPLETED"

	ErrCodeSessionStore ErrorCode = "SESSION_STORE_FAILED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// GetDetailedMessage is the text shown to the user; it never includes the cause.
func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

// NewGatewayCreateError carries the backend-supplied message verbatim.
func NewGatewayCreateError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeGatewayCreate,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

func NewCardError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeCard,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusPaymentRequired,
	}
}

func NewUnexpectedResponseError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnexpectedResponse,
		Code:       ErrCodeUnexpectedResponse,
		Message:    message,
		StatusCode: http.StatusBadGateway,
	}
}

func NewFetchError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeFetch,
		Code:       ErrCodeCapabilitiesUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrSubmitInProgress = NewConflictError("a payment confirmation is already in progress", ErrCodeSubmitInProgress)
	ErrFlowNotReady     = NewConflictError("no payment is awaiting card input, create a payment first", ErrCodeFlowNotReady)
	ErrFlowCompleted    = NewConflictError("this checkout has already completed, start over to pay again", ErrCodeFlowCompleted)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
