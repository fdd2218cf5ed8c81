package iiod

import (
	"syscall"

	"github.com/goiiod/iiod/internal/ierrors"
)

// Error, Kind, and the constructors below are thin re-exports of
// internal/ierrors, the package the transport/responder layers actually
// build and return. Keeping the public names distinct type aliases (not a
// parallel struct, the way the teacher's root errors.go duplicated its
// internal error shape) means a caller catching *iiod.Error is catching
// exactly what internal code produced — no copying, no drift.
type (
	Error = ierrors.Error
	Kind  = ierrors.Kind
)

const (
	KindInvalidArgument   = ierrors.KindInvalidArgument
	KindAccessDenied      = ierrors.KindAccessDenied
	KindNotFound          = ierrors.KindNotFound
	KindNoDevice          = ierrors.KindNoDevice
	KindBusy              = ierrors.KindBusy
	KindTimeout           = ierrors.KindTimeout
	KindBrokenPipe        = ierrors.KindBrokenPipe
	KindInterrupted       = ierrors.KindInterrupted
	KindOutOfMemory       = ierrors.KindOutOfMemory
	KindUnsupported       = ierrors.KindUnsupported
	KindIO                = ierrors.KindIO
	KindCancelled         = ierrors.KindCancelled
	KindProtocolViolation = ierrors.KindProtocolViolation
	KindEndOfStream       = ierrors.KindEndOfStream
)

// NewError builds a bare *Error with no device attached.
func NewError(op string, kind Kind, msg string) *Error { return ierrors.NewError(op, kind, msg) }

// NewDeviceError builds an *Error scoped to a device index.
func NewDeviceError(op string, dev uint8, kind Kind, msg string) *Error {
	return ierrors.NewDeviceError(op, dev, kind, msg)
}

// NewErrnoError builds an *Error from a kernel/libusb errno.
func NewErrnoError(op string, errno syscall.Errno) *Error {
	return ierrors.NewErrnoError(op, errno)
}

// WrapError attaches op context to inner.
func WrapError(op string, inner error) *Error { return ierrors.WrapError(op, inner) }

// IsKind reports whether err (or something it wraps) is an *Error with the
// given Kind.
func IsKind(err error, kind Kind) bool { return ierrors.IsKind(err, kind) }
