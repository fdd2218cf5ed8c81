//go:build linux

package cancel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestEventfdTokenCancelUnblocksWait(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	tok, err := NewEventfdToken(fds[0])
	require.NoError(t, err)
	defer tok.Close()

	done := make(chan bool, 1)
	go func() {
		cancelled, err := tok.WaitReadable()
		assert.NoError(t, err)
		done <- cancelled
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, tok.Cancel())

	select {
	case cancelled := <-done:
		assert.True(t, cancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitReadable did not unblock after Cancel")
	}
}

func TestEventfdTokenCancelIsIdempotent(t *testing.T) {
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	tok, err := NewEventfdToken(fds[0])
	require.NoError(t, err)
	defer tok.Close()

	assert.False(t, tok.Cancelled())
	require.NoError(t, tok.Cancel())
	assert.True(t, tok.Cancelled())
	require.NoError(t, tok.Cancel())
	assert.True(t, tok.Cancelled())
}

func TestUSBTokenFailsFastUntilReset(t *testing.T) {
	tok := NewUSBToken()
	assert.False(t, tok.Cancelled())

	fired := false
	assert.True(t, tok.Begin(func() { fired = true }))
	require.NoError(t, tok.Cancel())
	assert.True(t, fired)
	assert.True(t, tok.Cancelled())

	assert.False(t, tok.Begin(func() {}))

	tok.Reset()
	assert.False(t, tok.Cancelled())
	assert.True(t, tok.Begin(func() {}))
}
