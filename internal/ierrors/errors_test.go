package ierrors

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("OPEN", KindInvalidArgument, "bad sample count")

	assert.Equal(t, "OPEN", err.Op)
	assert.Equal(t, KindInvalidArgument, err.Kind)
	assert.Equal(t, "iiod: bad sample count (op=OPEN)", err.Error())
}

func TestErrnoError(t *testing.T) {
	err := NewErrnoError("READBUF", syscall.ETIMEDOUT)

	assert.Equal(t, syscall.ETIMEDOUT, err.Errno)
	assert.Equal(t, KindTimeout, err.Kind)
}

func TestDeviceError(t *testing.T) {
	err := NewDeviceError("WRITE_ATTR", 3, KindBusy, "device in use")

	require.True(t, err.HasDev)
	assert.EqualValues(t, 3, err.Dev)
	assert.Equal(t, "iiod: device in use (op=WRITE_ATTR)", err.Error())
}

func TestWrapErrorPreservesErrno(t *testing.T) {
	inner := syscall.ENODEV
	err := WrapError("CLOSE", inner)

	assert.Equal(t, KindNoDevice, err.Kind)
	assert.Equal(t, syscall.ENODEV, err.Errno)
	assert.True(t, errors.Is(err, syscall.ENODEV))
}

func TestWrapErrorPreservesStructuredKind(t *testing.T) {
	inner := NewError("READ_ATTR", KindProtocolViolation, "unexpected opcode")
	err := WrapError("GetResponse", inner)

	assert.Equal(t, KindProtocolViolation, err.Kind)
	assert.Equal(t, "GetResponse", err.Op)
}

func TestIsKind(t *testing.T) {
	err := WrapError("READBUF", syscall.ETIMEDOUT)

	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindIO))
	assert.False(t, IsKind(nil, KindTimeout))
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := NewError("SETBUFCNT", KindBusy, "arbiter held by another client")

	assert.True(t, errors.Is(err, &Error{Kind: KindBusy}))
	assert.False(t, errors.Is(err, &Error{Kind: KindTimeout}))
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		errno syscall.Errno
		want  Kind
	}{
		{syscall.ENOENT, KindNotFound},
		{syscall.ENODEV, KindNoDevice},
		{syscall.EBUSY, KindBusy},
		{syscall.EINVAL, KindInvalidArgument},
		{syscall.EPERM, KindAccessDenied},
		{syscall.ENOMEM, KindOutOfMemory},
		{syscall.ETIMEDOUT, KindTimeout},
		{syscall.ENOSYS, KindUnsupported},
		{syscall.EPIPE, KindBrokenPipe},
		{syscall.EINTR, KindInterrupted},
		{syscall.EBADF, KindCancelled},
	}

	for _, tc := range cases {
		got := mapErrnoToKind(tc.errno)
		assert.Equalf(t, tc.want, got, "mapErrnoToKind(%v)", tc.errno)
	}
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError("OPEN", nil))
}
