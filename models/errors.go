package models

import "fmt"

// Error codes used in API responses and internal error handling.
const (
	ErrCodeUnknownProvider = "UNKNOWN_PROVIDER"
	ErrCodePoolTimeout     = "POOL_TIMEOUT"
	ErrCodeTransport       = "TRANSPORT_ERROR"
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProxyError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ProxyError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ProxyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProxyError) Unwrap() error {
	return e.Err
}

// NewProxyError creates a new ProxyError.
func NewProxyError(code, message string, err error) *ProxyError {
	return &ProxyError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ProxyError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}
