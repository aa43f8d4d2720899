package remo

import (
	"errors"
	"fmt"
)

var (
	// errTokenRequired is returned when the client is built without a token.
	errTokenRequired = errors.New("api token must be provided")
	// errBaseURLRequired is returned when the client is built without a base URL.
	errBaseURLRequired = errors.New("base url must be provided")
	// ErrIDRequired is returned when a device or appliance identifier is empty.
	ErrIDRequired = errors.New("device id must be provided")
	// ErrInvalidParams is returned when command parameters miss required keys.
	ErrInvalidParams = errors.New("invalid command parameters")
)

// APIError describes a failed call to the vendor API.
// StatusCode is zero when the request never got an HTTP response.
type APIError struct {
	// Method is the HTTP method of the call.
	Method string
	// Path is the request path relative to the base URL.
	Path string
	// StatusCode is the HTTP status returned by the server.
	StatusCode int
	// Body is the (possibly truncated) response body.
	Body string
	// Err is the underlying transport or decoding error, if any.
	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *APIError) Unwrap() error {
	return e.Err
}
