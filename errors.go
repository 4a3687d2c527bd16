// Package idalloc - errors.go provides the error kinds surfaced by the allocator.
//
// Every structured error unwraps to a package sentinel so callers can use
// either errors.Is (kind) or errors.As (details).

package idalloc

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidIdentity is returned at construction when the worker or
	// datacenter identifier does not fit its configured bit width. It is
	// never returned by NextID.
	ErrInvalidIdentity = errors.New("invalid allocator identity")

	// ErrClockRegression is returned by NextID when wall-clock time is
	// earlier than the last millisecond an ID was minted for. It is not
	// retried internally.
	ErrClockRegression = errors.New("clock moved backwards")

	// ErrInvalidConfig is returned when Config validation fails for reasons
	// other than identity (layout, epoch, clock).
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrTimestampOverflow is returned when the current time cannot be
	// represented as an offset from the epoch in the layout's timestamp bits.
	ErrTimestampOverflow = errors.New("timestamp offset out of range")
)

// IdentityError describes an out-of-range worker or datacenter identifier.
//
//	gen, err := idalloc.New(32, 0)
//	var idErr *idalloc.IdentityError
//	if errors.As(err, &idErr) {
//	    logger.Fatal("bad identity", zap.String("field", idErr.Field), zap.Int64("max", idErr.Max))
//	}
type IdentityError struct {
	// Field is "WorkerID" or "DatacenterID".
	Field string

	// Value is the rejected identifier.
	Value int64

	// Max is the largest accepted value for the configured width.
	Max int64

	// Bits is the configured width of the field.
	Bits int
}

// Error implements the error interface.
func (e *IdentityError) Error() string {
	return fmt.Sprintf("invalid allocator identity: %s=%d must be between 0 and %d (%d bits)",
		e.Field, e.Value, e.Max, e.Bits)
}

// Unwrap returns ErrInvalidIdentity for errors.Is compatibility.
func (e *IdentityError) Unwrap() error {
	return ErrInvalidIdentity
}

// ClockRegressionError carries both timestamps observed when the clock was
// found to have moved backwards.
type ClockRegressionError struct {
	// CurrentTimestamp is the clock reading in milliseconds since the Unix epoch.
	CurrentTimestamp int64

	// LastTimestamp is the millisecond of the last minted ID.
	LastTimestamp int64

	WorkerID     int64
	DatacenterID int64
}

// Error implements the error interface.
func (e *ClockRegressionError) Error() string {
	return fmt.Sprintf("clock moved backwards: current=%d last=%d drift=%dms worker=%d datacenter=%d",
		e.CurrentTimestamp, e.LastTimestamp, e.DriftMilliseconds(), e.WorkerID, e.DatacenterID)
}

// Unwrap returns ErrClockRegression for errors.Is compatibility.
func (e *ClockRegressionError) Unwrap() error {
	return ErrClockRegression
}

// DriftMilliseconds returns how far the clock went backwards (always positive).
func (e *ClockRegressionError) DriftMilliseconds() int64 {
	return e.LastTimestamp - e.CurrentTimestamp
}

// DriftDuration returns the drift as a time.Duration.
func (e *ClockRegressionError) DriftDuration() time.Duration {
	return time.Duration(e.DriftMilliseconds()) * time.Millisecond
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	// Field is the name of the configuration field that failed validation.
	Field string

	// Value is the invalid value (as string for logging).
	Value string

	// Reason is a human-readable explanation of why the value is invalid.
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s=%s (%s)", e.Field, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidConfig for errors.Is compatibility.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// IsClockRegression reports whether err is or wraps a clock regression.
func IsClockRegression(err error) bool {
	return errors.Is(err, ErrClockRegression)
}

// IsIdentityError reports whether err is or wraps an identity error.
func IsIdentityError(err error) bool {
	return errors.Is(err, ErrInvalidIdentity)
}

// GetClockRegressionError extracts the ClockRegressionError from an error chain.
func GetClockRegressionError(err error) (*ClockRegressionError, bool) {
	var clockErr *ClockRegressionError
	if errors.As(err, &clockErr) {
		return clockErr, true
	}
	return nil, false
}

// GetIdentityError extracts the IdentityError from an error chain.
func GetIdentityError(err error) (*IdentityError, bool) {
	var idErr *IdentityError
	if errors.As(err, &idErr) {
		return idErr, true
	}
	return nil, false
}

func newIdentityError(field string, value, max int64, bits int) *IdentityError {
	return &IdentityError{Field: field, Value: value, Max: max, Bits: bits}
}

func newConfigError(field, value, reason string) *ConfigError {
	return &ConfigError{Field: field, Value: value, Reason: reason}
}
