package iiod

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorShape(t *testing.T) {
	err := NewError("OPEN", KindInvalidArgument, "bad uri")
	assert.Equal(t, "OPEN", err.Op)
	assert.Equal(t, KindInvalidArgument, err.Kind)
	assert.Contains(t, err.Error(), "bad uri")
}

func TestNewDeviceErrorCarriesDev(t *testing.T) {
	err := NewDeviceError("READ_ATTR", 3, KindBusy, "couple exhausted")
	require.True(t, err.HasDev)
	assert.EqualValues(t, 3, err.Dev)
}

func TestWrapErrorPreservesErrnoIs(t *testing.T) {
	err := WrapError("READ", syscall.ENOENT)
	assert.True(t, errors.Is(err, syscall.ENOENT))
	assert.Equal(t, KindNotFound, err.Kind)
}

func TestIsKindMatchesByKindOnly(t *testing.T) {
	err := NewError("CLOSE", KindTimeout, "deadline exceeded")
	assert.True(t, IsKind(err, KindTimeout))
	assert.False(t, IsKind(err, KindBusy))
	assert.False(t, IsKind(nil, KindTimeout))
}
