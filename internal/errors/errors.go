package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the license and bundle validation chain.
// Typed errors below match these through errors.Is.
var (
	ErrFormat            = errors.New("invalid format")
	ErrEmptyField        = errors.New("empty license field")
	ErrExpired           = errors.New("license expired")
	ErrUnknownIssuer     = errors.New("unknown license issuer")
	ErrSignatureInvalid  = errors.New("signature invalid")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrKeyDerivation     = errors.New("key derivation failed")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrIntegrityFailed   = errors.New("integrity check failed")
	ErrIO                = errors.New("i/o error")
)

// FormatError reports a structurally invalid license file or bundle.
type FormatError struct {
	Reason string
	Err    error
}

// NewFormatError creates a format error with an optional cause
func NewFormatError(reason string, cause error) *FormatError {
	return &FormatError{Reason: reason, Err: cause}
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid format: %s: %v", e.Reason, e.Err)
	}
	return "invalid format: " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

// Is matches ErrFormat
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// EmptyFieldError names the first missing or empty license field.
type EmptyFieldError struct {
	Field string
}

func (e *EmptyFieldError) Error() string {
	return fmt.Sprintf("license field %q is missing or empty", e.Field)
}

// Is matches ErrEmptyField
func (e *EmptyFieldError) Is(target error) bool { return target == ErrEmptyField }

// UnknownIssuerError carries the rejected issuer value.
type UnknownIssuerError struct {
	Issuer string
}

func (e *UnknownIssuerError) Error() string {
	return fmt.Sprintf("license issuer %q is not trusted", e.Issuer)
}

// Is matches ErrUnknownIssuer
func (e *UnknownIssuerError) Is(target error) bool { return target == ErrUnknownIssuer }

// RateLimitExceededError is returned once the attempt threshold for the
// current window has been passed.
type RateLimitExceededError struct {
	Attempts   int
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("too many license validation attempts (%d/%d), retry in %s",
		e.Attempts, e.Limit, e.RetryAfter.Round(time.Second))
}

// Is matches ErrRateLimitExceeded
func (e *RateLimitExceededError) Is(target error) bool { return target == ErrRateLimitExceeded }

// IOError wraps a file system failure with the operation and path involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

// NewIOError creates an IOError
func NewIOError(op, path string, err error) *IOError {
	return &IOError{Op: op, Path: path, Err: err}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is matches ErrIO
func (e *IOError) Is(target error) bool { return target == ErrIO }
