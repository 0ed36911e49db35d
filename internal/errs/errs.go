// Package errs defines the error shapes returned to API clients.
package errs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// HTTPError is the JSON error body for every non-2xx response.
type HTTPError struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Status   int          `json:"status"`
	Override bool         `json:"override"`
	Errors   []FieldError `json:"errors,omitempty"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is matches any *HTTPError so errors.Is(err, &HTTPError{}) works as a type check.
func (e *HTTPError) Is(target error) bool {
	_, ok := target.(*HTTPError)
	return ok
}

func codeFor(status int) string {
	return MakeUpperCaseWithUnderscores(http.StatusText(status))
}

func NewBadRequestError(message string, override bool, code *string, fields []FieldError) *HTTPError {
	c := codeFor(http.StatusBadRequest)
	if code != nil {
		c = *code
	}
	return &HTTPError{Code: c, Message: message, Status: http.StatusBadRequest, Override: override, Errors: fields}
}

func NewNotFoundError(message string, override bool, code *string) *HTTPError {
	c := codeFor(http.StatusNotFound)
	if code != nil {
		c = *code
	}
	return &HTTPError{Code: c, Message: message, Status: http.StatusNotFound, Override: override}
}

func NewConflictError(message string, code *string) *HTTPError {
	c := codeFor(http.StatusConflict)
	if code != nil {
		c = *code
	}
	return &HTTPError{Code: c, Message: message, Status: http.StatusConflict, Override: true}
}

func NewServiceUnavailableError(message string) *HTTPError {
	return &HTTPError{Code: codeFor(http.StatusServiceUnavailable), Message: message, Status: http.StatusServiceUnavailable}
}

// NewInternalServerError never carries the underlying cause.
func NewInternalServerError() *HTTPError {
	return &HTTPError{
		Code:    codeFor(http.StatusInternalServerError),
		Message: http.StatusText(http.StatusInternalServerError),
		Status:  http.StatusInternalServerError,
	}
}

func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}

// ErrorHandler renders HTTPError and echo.HTTPError values as JSON and logs
// server-side failures.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var body *HTTPError
		var he *HTTPError
		var ee *echo.HTTPError
		switch {
		case errors.As(err, &he):
			body = he
		case errors.As(err, &ee):
			msg, ok := ee.Message.(string)
			if !ok {
				msg = http.StatusText(ee.Code)
			}
			body = &HTTPError{Code: codeFor(ee.Code), Message: msg, Status: ee.Code}
		default:
			body = NewInternalServerError()
		}

		if body.Status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(body.Status)
			return
		}
		_ = c.JSON(body.Status, body)
	}
}
