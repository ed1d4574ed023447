package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrKeyNotFound is returned by Store.Get when the key has no value.
// A miss is an expected outcome, not a backend failure.
var ErrKeyNotFound = errors.New("cache: key not found")

// ValidationError reports malformed input (user id, key material).
// It indicates a programming defect and is raised synchronously to the
// immediate caller instead of being absorbed by the fallback path.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// ConfigurationError reports that a component was wired incorrectly or a
// collaborator was unavailable at setup time. Like ValidationError it is
// raised synchronously; runtime degradation never produces it.
type ConfigurationError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error in %s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *ConfigurationError) Unwrap() error { return e.Err }

// BackendUnavailableError wraps a connection refusal or timeout from the
// shared store at call time. Timeouts are treated identically to
// connection failures: both take the direct-query fallback path.
type BackendUnavailableError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *BackendUnavailableError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache backend unavailable during %s on %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("cache backend unavailable during %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// SerializationError reports a value that could not be encoded into a
// cacheable payload.
type SerializationError struct {
	Err error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization failure: %v", e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *SerializationError) Unwrap() error { return e.Err }

// DeserializationError reports a stored payload that is malformed or
// structurally inconsistent with the expected shape. The key is carried so
// the caller can delete the corrupt entry and turn the next read into a
// clean miss.
type DeserializationError struct {
	Key string
	Err error
}

// Error implements the error interface.
func (e *DeserializationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("deserialization failure for key %q: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("deserialization failure: %v", e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *DeserializationError) Unwrap() error { return e.Err }

// ErrorKind labels an error for metrics and logging. Kinds mirror the
// runtime taxonomy: validation and configuration defects fail loudly,
// everything else is absorbed by the fallback path.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindConfiguration      ErrorKind = "configuration"
	KindBackendUnavailable ErrorKind = "backend_unavailable"
	KindSerialization      ErrorKind = "serialization"
	KindDeserialization    ErrorKind = "deserialization"
	KindUnexpected         ErrorKind = "unexpected"
)

// Classify maps an arbitrary error onto its ErrorKind. Network timeouts
// and cancelled deadlines classify as backend unavailability.
func Classify(err error) ErrorKind {
	var (
		validationErr      *ValidationError
		configurationErr   *ConfigurationError
		backendErr         *BackendUnavailableError
		serializationErr   *SerializationError
		deserializationErr *DeserializationError
	)

	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.As(err, &configurationErr):
		return KindConfiguration
	case errors.As(err, &backendErr):
		return KindBackendUnavailable
	case errors.As(err, &serializationErr):
		return KindSerialization
	case errors.As(err, &deserializationErr):
		return KindDeserialization
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindBackendUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindBackendUnavailable
	}

	return KindUnexpected
}
