// Package errors provides domain-specific error types for deskshare.
//
// The taxonomy mirrors how a session reacts to a failure: transport and
// protocol errors are fatal to the session, authentication errors only
// reject the current connection, and device errors degrade a single
// tick unless the collaborator reports itself permanently unavailable.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrAuthFailed        = errors.New("authentication failed")
	ErrHeartbeatTimeout  = errors.New("heartbeat timeout")
	ErrHostBusy          = errors.New("host is busy with another session")
	ErrLockedOut         = errors.New("too many failed authentication attempts")
	ErrSessionClosed     = errors.New("session is closed")
	ErrPeerClosed        = errors.New("peer closed the session")
	ErrNotConnected      = errors.New("not connected")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrCircuitOpen       = errors.New("circuit breaker is open")
)

// ── Structured error types ───────────────────────────────────────────

// TransportError represents a failure of the underlying connection:
// dial, read or write.  It is always fatal to the session.
type TransportError struct {
	Op   string // "dial", "listen", "read", "write"
	Addr string // remote address, if known
	Err  error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the peer sent something this side cannot
// interpret.  The peer is considered desynchronised and the session
// is terminated.
type ProtocolError struct {
	Reason string
	Tag    byte // offending message tag, 0 if not applicable
}

func (e *ProtocolError) Error() string {
	if e.Tag != 0 {
		return fmt.Sprintf("protocol error (tag 0x%02x): %s", e.Tag, e.Reason)
	}
	return "protocol error: " + e.Reason
}

// AuthError is a rejected authentication attempt.  It wraps
// ErrAuthFailed (or ErrLockedOut) so callers can test with Is.
type AuthError struct {
	Addr   string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := e.Err.Error()
	if e.Addr != "" {
		msg = e.Addr + ": " + msg
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// DeviceError reports a failure of a local collaborator: the screen
// grabber, the input-injection device or the display sink.
type DeviceError struct {
	Device    string // "screen", "input", "display"
	Op        string
	Err       error
	Permanent bool // true when the device will not recover
}

func (e *DeviceError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Device, e.Op, e.Err)
	if e.Permanent {
		s += " (permanent)"
	}
	return s
}

func (e *DeviceError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Transport wraps err as a TransportError.  A nil err stays nil.
func Transport(op, addr string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Addr: addr, Err: err}
}

// Protocol builds a ProtocolError with a formatted reason.
func Protocol(tag byte, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...), Tag: tag}
}

// Auth builds an AuthError wrapping ErrAuthFailed.
func Auth(addr, reason string) *AuthError {
	return &AuthError{Addr: addr, Reason: reason, Err: ErrAuthFailed}
}

// Device builds a DeviceError.  Errors wrapping ErrDeviceUnavailable
// are marked permanent automatically.
func Device(device, op string, err error) *DeviceError {
	return &DeviceError{
		Device:    device,
		Op:        op,
		Err:       err,
		Permanent: errors.Is(err, ErrDeviceUnavailable),
	}
}

// ── Classification helpers ───────────────────────────────────────────

// IsTransport reports whether err is (or wraps) a TransportError or a
// raw network failure.
func IsTransport(err error) bool {
	if err == nil {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsProtocol reports whether err is (or wraps) a ProtocolError.
func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// IsAuth reports whether err is an authentication rejection.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuthFailed) || errors.Is(err, ErrLockedOut)
}

// IsPermanentDevice reports whether err is a device failure the
// collaborator will not recover from.
func IsPermanentDevice(err error) bool {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Permanent
	}
	return errors.Is(err, ErrDeviceUnavailable)
}

// IsRetryable reports whether a client may reasonably reconnect after
// err.  Authentication failures never are.
func IsRetryable(err error) bool {
	if err == nil || IsAuth(err) {
		return false
	}
	return IsTransport(err) || errors.Is(err, ErrHeartbeatTimeout) ||
		errors.Is(err, ErrHostBusy)
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use deskshare/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
