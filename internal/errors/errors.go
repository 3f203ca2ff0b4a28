package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for common failure scenarios.
var (
	ErrTimeout             = errors.New("request timeout")
	ErrUnreachable         = errors.New("device unreachable")
	ErrDeviceNotRegistered = errors.New("device not registered")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrMasterUnreachable   = errors.New("zone master unreachable")
	ErrNoOtherDevices      = errors.New("no other devices available")
	ErrInvalidPreset       = errors.New("preset slot must be between 1 and 6")
	ErrInvalidVolume       = errors.New("volume must be between 0 and 100")
	ErrInvalidKey          = errors.New("unknown key")
	ErrReconnectExhausted  = errors.New("push channel reconnect attempts exhausted")
	ErrConfigNotFound      = errors.New("config file not found")
	ErrInvalidConfig       = errors.New("invalid configuration")
)

// ProtocolError is a non-2xx response, or an <errors> document, from a device.
type ProtocolError struct {
	Status int
	Name   string
	Body   string
}

func (e *ProtocolError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("device error (status %d): %s", e.Status, e.Name)
	}
	return fmt.Sprintf("device error (status %d)", e.Status)
}

// DecodeError is a malformed XML payload.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// DeviceError attributes a failure to one device within a multi-device operation.
type DeviceError struct {
	DeviceID string
	Op       string
	Err      error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.DeviceID, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ForDevice wraps err with the device and operation it came from.
func ForDevice(deviceID, op string, err error) error {
	if err == nil {
		return nil
	}
	return &DeviceError{DeviceID: deviceID, Op: op, Err: err}
}

// StError wraps an error with a user-friendly suggestion.
type StError struct {
	Err        error
	Suggestion string
}

func (e *StError) Error() string {
	return e.Err.Error()
}

func (e *StError) Unwrap() error {
	return e.Err
}

// WithSuggestion wraps an error with a helpful suggestion.
func WithSuggestion(err error, suggestion string) error {
	return &StError{
		Err:        err,
		Suggestion: suggestion,
	}
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetSuggestion returns a suggestion for the given error.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}

	var stErr *StError
	if errors.As(err, &stErr) && stErr.Suggestion != "" {
		return stErr.Suggestion
	}

	if errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrDeviceNotRegistered) {
		return "Run 'stctl discover' to find devices, or 'stctl devices add <ip>' to add one by address"
	}

	if errors.Is(err, ErrNoOtherDevices) {
		return "Play everywhere needs at least two speakers; run 'stctl discover'"
	}

	if errors.Is(err, ErrMasterUnreachable) {
		return "Check that the zone master is powered on and reachable"
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable) {
		return "Check that the speaker is powered on and on the same network"
	}

	var protoErr *ProtocolError
	if errors.As(err, &protoErr) && protoErr.Status >= 500 {
		return "The speaker rejected the request. Try again in a moment"
	}

	if errors.Is(err, ErrConfigNotFound) || errors.Is(err, ErrInvalidConfig) {
		return "Run 'stctl config init' to create a configuration file"
	}

	if strings.Contains(strings.ToLower(err.Error()), "connection refused") {
		return "Check that the speaker is powered on and on the same network"
	}

	return ""
}

// Format returns a formatted error message with suggestion if available.
func Format(err error) string {
	if err == nil {
		return ""
	}

	suggestion := GetSuggestion(err)
	if suggestion != "" {
		return fmt.Sprintf("Error: %s\n\nSuggestion: %s", err.Error(), suggestion)
	}

	return fmt.Sprintf("Error: %s", err.Error())
}

// PartialResult represents a result that may have partial failures.
type PartialResult[T any] struct {
	Data   T
	Errors []error
}

// HasErrors returns true if there were any errors.
func (p *PartialResult[T]) HasErrors() bool {
	return len(p.Errors) > 0
}

// AddError adds an error to the partial result.
func (p *PartialResult[T]) AddError(err error) {
	if err != nil {
		p.Errors = append(p.Errors, err)
	}
}

// Merge appends the errors of other.
func (p *PartialResult[T]) Merge(errs []error) {
	for _, err := range errs {
		p.AddError(err)
	}
}

// Err joins all collected errors, or returns nil.
func (p *PartialResult[T]) Err() error {
	return errors.Join(p.Errors...)
}

// ErrorSummary returns a summary of all errors.
func (p *PartialResult[T]) ErrorSummary() string {
	if len(p.Errors) == 0 {
		return ""
	}
	if len(p.Errors) == 1 {
		return p.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(p.Errors)))
	for i, err := range p.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}
