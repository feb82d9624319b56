package forecast

import (
	"errors"
	"fmt"
)

// ErrArrayIndex reports a snapshot that has fewer daily points than requested.
var ErrArrayIndex = errors.New("error accessing daily forecast array")

// NetworkError wraps transport failures (dial, timeout, open circuit).
type NetworkError struct{ Err error }

func (e *NetworkError) Error() string { return "forecast request failed: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx provider response. Body is truncated.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("forecast provider returned %d: %s", e.Code, e.Body)
}

// MissingFieldError reports a required field absent from the provider data.
type MissingFieldError struct{ Name string }

func (e *MissingFieldError) Error() string { return "field is missing: " + e.Name }

// ParseError wraps malformed provider payloads.
type ParseError struct{ Err error }

func (e *ParseError) Error() string { return "forecast parse: " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// IsMissingField reports whether err is a MissingFieldError for name.
// An empty name matches any missing field.
func IsMissingField(err error, name string) bool {
	var mf *MissingFieldError
	if !errors.As(err, &mf) {
		return false
	}
	return name == "" || mf.Name == name
}
