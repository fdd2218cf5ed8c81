package wire

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkPort is a port.Port test double that serves Read/Write in fixed-size
// chunks (or smaller, to exercise short I/O) from/to an in-memory buffer.
type chunkPort struct {
	data      []byte
	pos       int
	chunk     int
	writeErr  error
	failAfter int // Write calls after which writeErr fires, -1 = never
	calls     int
}

func (p *chunkPort) Read(b []byte) (int, error) {
	p.calls++
	if p.pos >= len(p.data) {
		return 0, io.EOF
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	if p.pos+n > len(p.data) {
		n = len(p.data) - p.pos
	}
	copy(b[:n], p.data[p.pos:p.pos+n])
	p.pos += n
	return n, nil
}

func (p *chunkPort) Write(b []byte) (int, error) {
	p.calls++
	if p.failAfter >= 0 && p.calls > p.failAfter {
		return 0, p.writeErr
	}
	n := len(b)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	p.data = append(p.data, b[:n]...)
	return n, nil
}

func (p *chunkPort) Discard(n int) error { return nil }

func TestTransferAllSingleBufferExactFit(t *testing.T) {
	p := &chunkPort{data: []byte("hello!!!")}
	buf := make([]byte, 8)

	n, err := TransferAll(p, Read, [][]byte{buf}, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, "hello!!!", string(buf))
}

func TestTransferAllSpansMultipleBuffers(t *testing.T) {
	p := &chunkPort{data: []byte("abcdefghij")}
	b1 := make([]byte, 4)
	b2 := make([]byte, 6)

	n, err := TransferAll(p, Read, [][]byte{b1, b2}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "abcd", string(b1))
	assert.Equal(t, "efghij", string(b2))
}

func TestTransferAllShortReadsResume(t *testing.T) {
	p := &chunkPort{data: []byte("0123456789"), chunk: 3}
	buf := make([]byte, 10)

	n, err := TransferAll(p, Read, [][]byte{buf}, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "0123456789", string(buf))
	assert.Greater(t, p.calls, 1, "expected short reads to require multiple Read calls")
}

func TestTransferAllCapsTrailingOversizedBuffer(t *testing.T) {
	p := &chunkPort{data: []byte("abc")}
	buf := make([]byte, 10)
	for i := range buf {
		buf[i] = 'x'
	}

	n, err := TransferAll(p, Read, [][]byte{buf}, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", string(buf[:3]))
	// bytes beyond the declared total are never touched
	assert.Equal(t, "xxxxxxx", string(buf[3:]))
}

func TestTransferAllWriteAssemblesVector(t *testing.T) {
	p := &chunkPort{failAfter: -1}
	header := []byte{1, 2, 3, 4}
	payload := []byte{5, 6, 7, 8, 9}

	n, err := TransferAll(p, Write, [][]byte{header, payload}, len(header)+len(payload))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, p.data)
}

func TestTransferAllTooManyBuffers(t *testing.T) {
	vec := make([][]byte, MaxVector+1)
	for i := range vec {
		vec[i] = make([]byte, 1)
	}

	_, err := TransferAll(&chunkPort{}, Read, vec, MaxVector+1)
	assert.ErrorIs(t, err, ErrTooManyBuffers)
}

func TestTransferAllExactlyMaxVectorIsAllowed(t *testing.T) {
	vec := make([][]byte, MaxVector)
	data := make([]byte, MaxVector)
	for i := range vec {
		vec[i] = make([]byte, 1)
		data[i] = byte(i)
	}

	n, err := TransferAll(&chunkPort{data: data}, Read, vec, MaxVector)
	require.NoError(t, err)
	assert.Equal(t, MaxVector, n)
}

func TestTransferAllVectorExhaustedBeforeTotal(t *testing.T) {
	buf := make([]byte, 4)
	p := &chunkPort{data: []byte("abcd")}

	_, err := TransferAll(p, Read, [][]byte{buf}, 8)
	require.Error(t, err)
}

func TestTransferAllPropagatesWriteError(t *testing.T) {
	boom := errors.New("boom")
	p := &chunkPort{writeErr: boom, failAfter: 0}

	_, err := TransferAll(p, Write, [][]byte{{1, 2, 3}}, 3)
	assert.ErrorIs(t, err, boom)
}

func TestVectorSize(t *testing.T) {
	assert.Equal(t, 7, VectorSize([][]byte{make([]byte, 3), make([]byte, 4)}))
	assert.Equal(t, 0, VectorSize(nil))
}
