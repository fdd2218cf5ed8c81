// Package ierrors is the structured error type shared across the iiod
// client packages. It carries the same operation/device/wrapped-error shape
// as the teacher's root errors.go, with the error taxonomy swapped from
// ublk's device-error codes to the iiod Kind set (spec section 7).
package ierrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind is a high-level error category. Callers should generally branch on
// Kind rather than on the wrapped errno, since not every Error carries one.
type Kind string

const (
	KindInvalidArgument   Kind = "invalid argument"
	KindAccessDenied      Kind = "access denied"
	KindNotFound          Kind = "not found"
	KindNoDevice          Kind = "no device"
	KindBusy              Kind = "busy"
	KindTimeout           Kind = "timeout"
	KindBrokenPipe        Kind = "broken pipe"
	KindInterrupted       Kind = "interrupted"
	KindOutOfMemory       Kind = "out of memory"
	KindUnsupported       Kind = "unsupported"
	KindIO                Kind = "i/o error"
	KindCancelled         Kind = "cancelled"
	KindProtocolViolation Kind = "protocol violation"
	KindEndOfStream       Kind = "end of stream"
)

// Error is a structured iiod error: an operation, the device it targeted (if
// any), a Kind, and optionally the errno and inner error it was built from.
type Error struct {
	Op    string
	Dev   uint8
	HasDev bool
	Kind  Kind
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.HasDev {
		parts = append(parts, fmt.Sprintf("dev=%d", e.Dev))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("iiod: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("iiod: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

// Is lets errors.Is match on Kind: errors.Is(err, &Error{Kind: KindTimeout}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok || te == nil {
		return false
	}
	return e.Kind == te.Kind
}

// NewError builds a bare Error with no device attached.
func NewError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// NewDeviceError builds an Error scoped to a device index.
func NewDeviceError(op string, dev uint8, kind Kind, msg string) *Error {
	return &Error{Op: op, Dev: dev, HasDev: true, Kind: kind, Msg: msg}
}

// NewErrnoError builds an Error from a kernel/libusb errno, mapping it to a
// Kind via mapErrnoToKind.
func NewErrnoError(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Kind: mapErrnoToKind(errno), Errno: errno, Msg: errno.Error()}
}

// WrapError attaches op context to inner, mapping syscall.Errno and
// preserving an already-structured *Error's Kind/Dev/Errno.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if ie, ok := inner.(*Error); ok {
		return &Error{
			Op:     op,
			Dev:    ie.Dev,
			HasDev: ie.HasDev,
			Kind:   ie.Kind,
			Errno:  ie.Errno,
			Msg:    ie.Msg,
			Inner:  ie.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Kind: mapErrnoToKind(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}

	return &Error{Op: op, Kind: KindIO, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToKind maps a kernel/libusb errno to an iiod error Kind. Cancelled
// transfers surface as EBADF on the wire (spec section 7 / design note),
// which is why EBADF maps to KindCancelled rather than KindIO.
func mapErrnoToKind(errno syscall.Errno) Kind {
	switch errno {
	case syscall.ENOENT, syscall.ENXIO:
		return KindNotFound
	case syscall.ENODEV:
		return KindNoDevice
	case syscall.EBUSY:
		return KindBusy
	case syscall.EINVAL, syscall.E2BIG:
		return KindInvalidArgument
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return KindUnsupported
	case syscall.EPERM, syscall.EACCES:
		return KindAccessDenied
	case syscall.ENOMEM, syscall.ENOSPC:
		return KindOutOfMemory
	case syscall.ETIMEDOUT, syscall.EAGAIN:
		return KindTimeout
	case syscall.EPIPE:
		return KindBrokenPipe
	case syscall.EINTR:
		return KindInterrupted
	case syscall.EBADF:
		return KindCancelled
	default:
		return KindIO
	}
}

// IsKind reports whether err (or something it wraps) is an *Error with the
// given Kind.
func IsKind(err error, kind Kind) bool {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind == kind
	}
	return false
}
