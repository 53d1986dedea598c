package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/ravenchat/internal/connect"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(code int) *ApiError {
	return &ApiError{
		StatusCode: code,
		Message:    lower(http.StatusText(code)),
	}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest)
}

// NewValidationError is a 400 carrying the reason the request was rejected.
func NewValidationError(err *connect.ValidationError) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    err.Error(),
		Err:        err,
	}
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound)
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict)
}

func NewTooManyRequestsError(retryAfter int) *ApiError {
	e := newApiError(http.StatusTooManyRequests)
	e.RetryAfter = retryAfter
	return e
}

func NewInternalServerError(err error) *ApiError {
	e := newApiError(http.StatusInternalServerError)
	e.Err = err
	return e
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized)
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden)
}

// errorFrom maps an error returned by the connect service to its HTTP form.
func errorFrom(err error) *ApiError {
	var (
		validationErr *connect.ValidationError
		rateLimitErr  *connect.RateLimitError
	)

	switch {
	case errors.As(err, &validationErr):
		return NewValidationError(validationErr)
	case errors.As(err, &rateLimitErr):
		return NewTooManyRequestsError(rateLimitErr.RetryAfter())
	case errors.Is(err, connect.ErrNotFound):
		return NewNotFoundError()
	case errors.Is(err, connect.ErrConflict):
		return NewConflictError()
	case errors.Is(err, connect.ErrInvalidCredentials):
		return NewUnauthorizedError()
	default:
		return NewInternalServerError(err)
	}
}
