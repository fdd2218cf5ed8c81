package usbtransport

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIn/fakeOut stand in for *gousb.InEndpoint/*gousb.OutEndpoint so the
// chunking and cancellation logic can be exercised without real hardware.
type fakeIn struct {
	data      []byte
	reads     int
	chunkSize int // 0 = no cap beyond what the caller asked for
}

func (f *fakeIn) Read(p []byte) (int, error) {
	f.reads++
	if len(f.data) == 0 {
		return 0, io.EOF
	}
	n := len(p)
	if f.chunkSize > 0 && n > f.chunkSize {
		n = f.chunkSize
	}
	if n > len(f.data) {
		n = len(f.data)
	}
	copy(p, f.data[:n])
	f.data = f.data[n:]
	return n, nil
}

type fakeOut struct {
	buf    bytes.Buffer
	writes int
}

func (f *fakeOut) Write(p []byte) (int, error) {
	f.writes++
	return f.buf.Write(p)
}

func newTestPort(in *fakeIn, out *fakeOut) *Port {
	return newPort(&couple{in: in, out: out, pipeID: 1})
}

func TestPortReadExactFit(t *testing.T) {
	in := &fakeIn{data: []byte("hello world")}
	p := newTestPort(in, &fakeOut{})

	buf := make([]byte, 11)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", string(buf))
}

func TestPortReadChunksLargeTransfer(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, BulkTransferMax+100)
	in := &fakeIn{data: append([]byte(nil), data...)}
	p := newTestPort(in, &fakeOut{})

	buf := make([]byte, len(data))
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, 2, in.reads, "expected exactly 2 submissions for a BulkTransferMax+100 read")
}

func TestPortWriteAssemblesChunks(t *testing.T) {
	out := &fakeOut{}
	p := newTestPort(&fakeIn{}, out)

	data := bytes.Repeat([]byte{0x7}, BulkTransferMax+1)
	n, err := p.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, out.buf.Bytes())
	assert.Equal(t, 2, out.writes)
}

func TestPortCancelFailsFastUntilReset(t *testing.T) {
	p := newTestPort(&fakeIn{data: []byte("x")}, &fakeOut{})

	p.Cancel()
	assert.True(t, p.Cancelled())

	_, err := p.Read(make([]byte, 1))
	assert.Error(t, err)

	p.Reset()
	assert.False(t, p.Cancelled())

	n, err := p.Read(make([]byte, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPortDiscardDropsBytes(t *testing.T) {
	in := &fakeIn{data: []byte("0123456789")}
	p := newTestPort(in, &fakeOut{})

	require.NoError(t, p.Discard(4))
	buf := make([]byte, 6)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(buf[:n]))
}

func TestPortSetTimeoutIsObserved(t *testing.T) {
	p := newTestPort(&fakeIn{data: []byte("y")}, &fakeOut{})
	p.SetTimeout(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, p.timeout)
}
