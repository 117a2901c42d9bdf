// Package relayerr implements relay's typed-error-code taxonomy, built on
// github.com/pkg/errors for wrapped causes.
package relayerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code identifies one of the error kinds relay enumerates.
type Code string

const (
	CodeConnectTimeout Code = "connect_timeout"
	CodeReadTimeout     Code = "read_timeout"
	CodeWriteTimeout    Code = "write_timeout"
	CodePoolTimeout     Code = "pool_timeout"

	CodeNetworkError  Code = "network_error"
	CodeProtocolError Code = "protocol_error"
	CodeProxyError    Code = "proxy_error"

	CodeInvalidURL      Code = "invalid_url"
	CodeCookieConflict  Code = "cookie_conflict"

	CodeResponseNotRead Code = "response_not_read"
	CodeResponseClosed  Code = "response_closed"
	CodeStreamConsumed  Code = "stream_consumed"
	CodeDecodingError   Code = "decoding_error"

	CodeTooManyRedirects       Code = "too_many_redirects"
	CodeRedirectLoop           Code = "redirect_loop"
	CodeRedirectBodyUnavailable Code = "redirect_body_unavailable"
	CodeNotRedirectResponse    Code = "not_redirect_response"
	CodeRequestBodyUnavailable Code = "request_body_unavailable"

	CodeNotImplemented Code = "not_implemented"
	CodeHTTPStatus     Code = "http_status"
)

// timeoutCodes share the TimeoutException family.
var timeoutCodes = map[Code]bool{
	CodeConnectTimeout: true,
	CodeReadTimeout:    true,
	CodeWriteTimeout:   true,
	CodePoolTimeout:    true,
}

// Error is relay's error type: a Code plus a message, an optional wrapped
// cause and, where the raising site annotates it, the triggering request's
// method and URL and a response status code. It holds no Request or
// Response value.
type Error struct {
	Code Code
	// RequestURL and Method identify the triggering request without
	// introducing an import cycle on the message package.
	RequestURL string
	Method     string
	// StatusCode is set for CodeHTTPStatus and CodeProxyError.
	StatusCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relay: %s: %s", e.Code, e.Message)
	}
	if e.cause != nil {
		return fmt.Sprintf("relay: %s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("relay: %s", e.Code)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// IsTimeout reports whether e belongs to the TimeoutException family.
func (e *Error) IsTimeout() bool { return timeoutCodes[e.Code] }

// New builds an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an *Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to an existing cause, preserving its stack via
// github.com/pkg/errors.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: errors.Wrap(cause, message)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(code Code, cause error, format string, args ...interface{}) *Error {
	msg := fmt.Sprintf(format, args...)
	return &Error{Code: code, Message: msg, cause: errors.Wrap(cause, msg)}
}

// WithRequest annotates e with the triggering request's method and URL.
func (e *Error) WithRequest(method, url string) *Error {
	e.Method = method
	e.RequestURL = url
	return e
}

// WithStatus annotates e with a response status code (HTTP errors, proxy CONNECT failures).
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// Is supports errors.Is(err, relayerr.New(code, "")) by comparing codes.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the Code of err if it is (or wraps) a *relayerr.Error.
func CodeOf(err error) (Code, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Code, true
	}
	return "", false
}
