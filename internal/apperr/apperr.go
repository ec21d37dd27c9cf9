package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"medtrack/internal/logging"
)

// Error is the single error shape the API surfaces. Every failure inside
// handlers and middleware is classified once into one of these and mapped to a
// response by HTTPErrorHandler, never retried.
type Error struct {
	Status  int      `json:"-"`
	Message string   `json:"message"`
	Errs    []string `json:"errors,omitempty"`
}

func (e *Error) Error() string { return e.Message }

func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

func BadRequest(message string, errs ...string) *Error {
	return &Error{Status: http.StatusBadRequest, Message: message, Errs: errs}
}

func Unauthorized(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

func Unavailable(message string) *Error {
	return New(http.StatusServiceUnavailable, message)
}

type errorBody struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errs    []string `json:"errors,omitempty"`
}

// HTTPErrorHandler maps any error returned from a handler or middleware to
// {"success":false,"message":...}. Unclassified errors become a plain 500;
// the detail is only logged.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	body := errorBody{Message: "Internal Server Error"}
	status := http.StatusInternalServerError

	var appErr *Error
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		status = appErr.Status
		body.Message = appErr.Message
		body.Errs = appErr.Errs
	case errors.As(err, &httpErr):
		status = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			body.Message = msg
		}
	}

	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request failed", "error", err)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}
