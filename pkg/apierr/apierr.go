// Package apierr maps the daemon's error taxonomy onto HTTP status codes and
// the JSON response envelope used by every handler in pkg/server.
package apierr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error is a taxonomy-classified error carrying the HTTP status and the
// message returned to the client.
type Error struct {
	Status  int
	Code    int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match a wrapped Error against one of the taxonomy
// sentinels by Code, so callers can check apierr.Wrap(apierr.ErrConflict,
// cause) against apierr.ErrConflict without unwrapping by hand.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newErr(status, code int, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// Wrap attaches an underlying cause to a taxonomy error without changing its
// status/code, for logging context.
func Wrap(e *Error, cause error) *Error {
	return &Error{Status: e.Status, Code: e.Code, Message: e.Message, cause: cause}
}

var (
	ErrNotFound      = newErr(http.StatusNotFound, 404, "not found")
	ErrInvalidInput  = newErr(http.StatusBadRequest, 400, "invalid input")
	ErrConflict      = newErr(http.StatusConflict, 409, "conflict")
	ErrUpstream      = newErr(http.StatusBadGateway, 502, "upstream supplier error")
	ErrInternal      = newErr(http.StatusInternalServerError, 500, "internal error")
	ErrAlreadyExists = newErr(http.StatusConflict, 409, "already exists")
	ErrCancelled     = newErr(http.StatusOK, 0, "generation cancelled")
)

// envelope is the JSON body returned for error responses, matching the
// daemon's wire protocol: {code, message, msg?, error_msg?}. Respond writes
// the same {code, message} shape for success.
type envelope struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Msg      string `json:"msg,omitempty"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// Respond writes a success envelope: code 200 with the payload as message.
func Respond(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, struct {
		Code    int `json:"code"`
		Message any `json:"message"`
	}{Code: http.StatusOK, Message: payload})
}

// RespondErr classifies err into the taxonomy (defaulting to ErrInternal for
// unrecognized errors) and writes the corresponding error envelope.
func RespondErr(c echo.Context, err error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Wrap(ErrInternal, err)
	}
	return c.JSON(apiErr.Status, envelope{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		ErrorMsg: apiErr.Error(),
	})
}
