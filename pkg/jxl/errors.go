package jxl

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned for invalid or incompatible options
	ErrConfiguration = errors.New("jxl: invalid configuration")

	// ErrAllocation is returned when the memory manager could not satisfy libjxl
	ErrAllocation = errors.New("jxl: allocation failure")

	// ErrCodec is returned when libjxl rejects input or fails internally
	ErrCodec = errors.New("jxl: codec error")

	// ErrState is returned when a handle is used at an invalid point of its lifecycle
	ErrState = errors.New("jxl: invalid state")
)

// ConfigError names the option that was rejected
type ConfigError struct {
	Field string
	Value any
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("jxl: invalid %s %v", e.Field, e.Value)
}

func (e *ConfigError) Unwrap() error {
	if e.Err == nil {
		return ErrConfiguration
	}
	return e.Err
}

// CodecError carries the native status of a failed libjxl call
type CodecError struct {
	// Op is the libjxl function that failed
	Op string
	// Status is the raw native status or error code
	Status int
	Reason string
	// Err is an optional cause, ErrAllocation when the memory manager ran dry
	Err error
}

func (e *CodecError) Error() string {
	msg := fmt.Sprintf("jxl: %s: %s (status %d)", e.Op, e.Reason, e.Status)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CodecError) Is(target error) bool {
	return target == ErrCodec
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func stateError(op, why string) error {
	return fmt.Errorf("%s: %s: %w", op, why, ErrState)
}
