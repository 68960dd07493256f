package common

import (
	"context"
	"github.com/cockroachdb/errors"
)

// --------------------------------------------------------------------------
// Error classes
// --------------------------------------------------------------------------

// Marker errors for the error taxonomy of the gateway. Concrete errors are
// marked with one of these so callers can classify them with errors.Is.
var (
	// ErrConfiguration marks a missing or invalid required property.
	// It is the only fatal class: the port can not be scheduled until fixed.
	ErrConfiguration = errors.New("configuration error")
	// ErrHandshake marks a peer that rejected the handshake or could not be reached
	ErrHandshake = errors.New("handshake error")
	// ErrProtocol marks a malformed frame or an out-of-sequence message
	ErrProtocol = errors.New("protocol error")
	// ErrTimeout marks a transaction that exceeded its time budget
	ErrTimeout = errors.New("timeout error")
	// ErrChecksumMismatch marks a transaction whose checksums did not agree
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// NewConfigurationError creates an error marked as ErrConfiguration
func NewConfigurationError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrConfiguration)
}

// NewHandshakeError creates an error marked as ErrHandshake
func NewHandshakeError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrHandshake)
}

// NewProtocolError creates an error marked as ErrProtocol
func NewProtocolError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrProtocol)
}

// NewTimeoutError creates an error marked as ErrTimeout
func NewTimeoutError(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrTimeout)
}

// NewChecksumMismatchError creates an error marked as ErrChecksumMismatch
func NewChecksumMismatchError(local, remote string) error {
	return errors.Mark(errors.Newf("local checksum %s does not match remote checksum %s", local, remote), ErrChecksumMismatch)
}

// WrapHandshake marks err as a handshake failure
func WrapHandshake(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrHandshake)
}

// WrapProtocol marks err as a protocol failure
func WrapProtocol(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrProtocol)
}

// WrapTimeout marks err as a timeout
func WrapTimeout(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), ErrTimeout)
}

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

// IsFatal reports whether err must stop the port from being scheduled
func IsFatal(err error) bool {
	return err != nil && errors.Is(err, ErrConfiguration)
}

// IsRetryable reports whether the failed invocation may simply be triggered
// again later. Every connection-level failure is retryable.
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	return errors.Is(err, ErrHandshake) ||
		errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsTimeout reports whether err is marked as ErrTimeout
func IsTimeout(err error) bool {
	return err != nil && errors.Is(err, ErrTimeout)
}
