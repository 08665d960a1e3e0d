package http

import (
	"fmt"
	"net/http"
)

// Error codes shared by every endpoint.
const (
	CodeInvalidArgument  = "ERR_INVALID_ARGUMENT"
	CodeInsufficientData = "ERR_INSUFFICIENT_DATA"
	CodeNoCandles        = "ERR_NO_CANDLES"
	CodeNotFound         = "ERR_NOT_FOUND"
	CodeRateLimited      = "ERR_RATE_LIMITED"
	CodeTimeout          = "ERR_TIMEOUT"
	CodeCanceled         = "ERR_CANCELED"
	CodeInternal         = "ERR_INTERNAL"
)

// AppError is an error with the HTTP status and code it is reported under.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Field:   field,
		Status:  status,
	}
}

// WithParam attaches one machine-readable detail, e.g. the cap that was
// exceeded.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = make(map[string]interface{})
	}
	e.Params[key] = value
	return e
}

// WithError keeps err as the cause. The message is unchanged.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// wrap builds an AppError whose message is the cause's text.
func wrap(code, field string, status int, err error) *AppError {
	return NewAppError(code, field, err.Error(), status).WithError(err)
}

// InvalidArgumentError is a 400 for parameters the engine rejects after
// request validation passed, e.g. a fast period not below the slow one.
func InvalidArgumentError(err error) *AppError {
	return wrap(CodeInvalidArgument, "", http.StatusBadRequest, err)
}

// InsufficientDataError is a 422 for series too short to resample.
func InsufficientDataError(err error) *AppError {
	return wrap(CodeInsufficientData, "", http.StatusUnprocessableEntity, err)
}

// NoCandlesError is a 404 for a symbol no candle source could serve.
func NoCandlesError(err error) *AppError {
	return wrap(CodeNoCandles, "symbol", http.StatusNotFound, err)
}

func NotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, "", message, http.StatusNotFound)
}

func TimeoutError(err error) *AppError {
	return NewAppError(CodeTimeout, "", "request timed out", http.StatusGatewayTimeout).WithError(err)
}

func CanceledError(err error) *AppError {
	return NewAppError(CodeCanceled, "", "request canceled", http.StatusServiceUnavailable).WithError(err)
}

// InternalError is a 500. The cause is logged, never returned to clients.
func InternalError(err error) *AppError {
	return NewAppError(CodeInternal, "", "Something went wrong", http.StatusInternalServerError).WithError(err)
}

// TooManyRequestsError is a 429 carrying the advised wait in seconds.
func TooManyRequestsError(retryAfter int) *AppError {
	return NewAppError(CodeRateLimited, "", "rate limit exceeded", http.StatusTooManyRequests).
		WithParam("retryAfterSeconds", retryAfter)
}
