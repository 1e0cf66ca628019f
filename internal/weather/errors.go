package weather

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an upstream failure.
type ErrorKind string

const (
	// KindConnection is a transport failure: DNS, refused, timeout.
	KindConnection ErrorKind = "connection"
	// KindStatus is a non-200 answer from the upstream.
	KindStatus ErrorKind = "status"
	// KindDataFormat is a 200 answer missing fields we rely on.
	KindDataFormat ErrorKind = "data_format"
)

// ErrLocationNotFound is returned when the geolocation service cannot place an IP.
var ErrLocationNotFound = errors.New("location not found")

// UpstreamError describes a failed call to an upstream provider.
type UpstreamError struct {
	Kind       ErrorKind
	Service    string
	StatusCode int
	Body       string
	Err        error
}

// Error renders the message surfaced to API callers.
func (e *UpstreamError) Error() string {
	switch e.Kind {
	case KindStatus:
		return fmt.Sprintf("%s API error (%d): %s", e.Service, e.StatusCode, e.Body)
	case KindDataFormat:
		return fmt.Sprintf("Data format error: %v", e.Err)
	default:
		return fmt.Sprintf("Connection error: %v", e.Err)
	}
}

// Unwrap returns the underlying cause, if any.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func statusError(service string, code int, body string) *UpstreamError {
	return &UpstreamError{Kind: KindStatus, Service: service, StatusCode: code, Body: body}
}

func connectionError(service string, err error) *UpstreamError {
	return &UpstreamError{Kind: KindConnection, Service: service, Err: err}
}

func formatError(service string, err error) *UpstreamError {
	return &UpstreamError{Kind: KindDataFormat, Service: service, Err: err}
}

// ValidationError reports a missing or malformed local request parameter.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
