// Package errs provides the orchestrator's error taxonomy (spec.md §7),
// following the teacher's sentinel+wrapped-error pattern in pkg/util/errors.go.
package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers should compare with errors.Is, never type-switch.
var (
	ErrValidation     = errors.New("validation failed")
	ErrAuth           = errors.New("authentication failed")
	ErrTransport      = errors.New("transport failure")
	ErrStorage        = errors.New("storage failure")
	ErrCrypto         = errors.New("decryption failed")
	ErrJumphostProbe  = errors.New("jumphost probe failed")
	ErrCancelled      = errors.New("cancelled")
	ErrNotFound       = errors.New("not found")
)

// ValidationError reports one or more bad inputs at an API edge. Never
// retried by the caller.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return "validation: " + e.Messages[0]
	}
	msg := "validation failed:"
	for _, m := range e.Messages {
		msg += "\n  - " + m
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidation builds a ValidationError from one or more messages.
func NewValidation(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// AuthError reports a credential decryption or device login failure.
// Per-device terminal: the job continues with other devices.
type AuthError struct {
	Device string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failed for %s: %s", e.Device, e.Reason)
}

func (e *AuthError) Unwrap() error { return ErrAuth }

// NewAuth builds an AuthError.
func NewAuth(device, reason string) *AuthError {
	return &AuthError{Device: device, Reason: reason}
}

// TransportError reports a TCP/SSH/Telnet failure or read timeout.
// Per-command (or per-device during connect) terminal.
type TransportError struct {
	Device    string
	Interface string
	Reason    string
}

func (e *TransportError) Error() string {
	if e.Interface != "" {
		return fmt.Sprintf("transport error on %s (%s): %s", e.Device, e.Interface, e.Reason)
	}
	return fmt.Sprintf("transport error on %s: %s", e.Device, e.Reason)
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// NewTransport builds a TransportError.
func NewTransport(device, iface, reason string) *TransportError {
	return &TransportError{Device: device, Interface: iface, Reason: reason}
}

// StorageError reports a disk I/O failure writing artifacts or job rows.
// Per-command terminal; the batch continues.
type StorageError struct {
	Path   string
	Reason string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error at %s: %s", e.Path, e.Reason)
}

func (e *StorageError) Unwrap() error { return ErrStorage }

// NewStorage builds a StorageError.
func NewStorage(path, reason string) *StorageError {
	return &StorageError{Path: path, Reason: reason}
}

// CryptoError reports that a ciphertext could not be decrypted — tamper
// or wrong key. Callers must treat the device as unusable; there is no
// plaintext fallback.
type CryptoError struct {
	Reason string
}

func (e *CryptoError) Error() string { return "crypto: " + e.Reason }

func (e *CryptoError) Unwrap() error { return ErrCrypto }

// NewCrypto builds a CryptoError.
func NewCrypto(reason string) *CryptoError {
	return &CryptoError{Reason: reason}
}

// JumphostProbeError reports that enabling a jumphost failed its live
// probe precondition; the config write is rejected.
type JumphostProbeError struct {
	Reason string
}

func (e *JumphostProbeError) Error() string { return "jumphost probe failed: " + e.Reason }

func (e *JumphostProbeError) Unwrap() error { return ErrJumphostProbe }

// NewJumphostProbe builds a JumphostProbeError.
func NewJumphostProbe(reason string) *JumphostProbeError {
	return &JumphostProbeError{Reason: reason}
}

// CancelledError marks cooperative cancellation after stop_job. Always
// expected, never logged as a failure.
type CancelledError struct {
	Stage string
}

func (e *CancelledError) Error() string { return "cancelled at " + e.Stage }

func (e *CancelledError) Unwrap() error { return ErrCancelled }

// NewCancelled builds a CancelledError.
func NewCancelled(stage string) *CancelledError {
	return &CancelledError{Stage: stage}
}
