package fakeiiod

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goiiod/iiod/internal/responder"
	"github.com/goiiod/iiod/internal/wire"
)

// pipePort adapts an io.Reader/io.Writer pair to port.Port, mirroring the
// responder package's own test fixture.
type pipePort struct {
	r io.Reader
	w io.Writer
}

func (p *pipePort) Read(b []byte) (int, error)  { return io.ReadFull(p.r, b) }
func (p *pipePort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipePort) Discard(n int) error {
	_, err := io.CopyN(io.Discard, p.r, int64(n))
	return err
}

// newDuplex wires a client pipePort and a server pipePort to the same two
// io.Pipe()s, so writes on one side arrive as reads on the other.
func newDuplex() (client *pipePort, server *pipePort) {
	cToS_r, cToS_w := io.Pipe()
	sToC_r, sToC_w := io.Pipe()
	return &pipePort{r: sToC_r, w: cToS_w}, &pipePort{r: cToS_r, w: sToC_w}
}

// Scenario 1 (spec.md section 8): single attribute read returns exactly
// the stored value and the slot code equals its length.
func TestScenarioSingleAttributeRead(t *testing.T) {
	client, server := newDuplex()

	store := NewAttrStore()
	store.Set("0/in_voltage0_raw", "1234\n")

	srv := NewServer(server, store)
	srv.AddDevice(0, "iio:device0")
	go srv.Serve()

	resp := responder.New(client, nil, nil)
	defer resp.Close()

	req := resp.NewRequest()
	defer req.Close()

	name := []byte("in_voltage0_raw")
	recv := make([]byte, 5)
	code, err := req.ExecCommand(wire.OpReadAttr, 0, int32(len(name)), [][]byte{name}, [][]byte{recv})
	require.NoError(t, err)
	assert.EqualValues(t, 5, code)
	assert.Equal(t, "1234\n", string(recv))
}

func TestScenarioWriteThenReadAttrRoundTrips(t *testing.T) {
	client, server := newDuplex()

	srv := NewServer(server, NewAttrStore())
	srv.AddDevice(0, "iio:device0")
	go srv.Serve()

	resp := responder.New(client, nil, nil)
	defer resp.Close()

	req := resp.NewRequest()
	defer req.Close()

	payload := append([]byte("out_voltage0_raw\x00"), []byte("42")...)
	code, err := req.ExecCommand(wire.OpWriteAttr, 0, int32(len(payload)), [][]byte{payload}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, code)

	v, ok := srv.attrs.Get("0/out_voltage0_raw")
	require.True(t, ok)
	assert.Equal(t, "42", v)
}

func TestScenarioOpenUnknownDeviceFails(t *testing.T) {
	client, server := newDuplex()

	srv := NewServer(server, NewAttrStore())
	go srv.Serve()

	resp := responder.New(client, nil, nil)
	defer resp.Close()

	req := resp.NewRequest()
	defer req.Close()

	code, err := req.ExecCommand(wire.OpOpen, 9, 0, nil, nil)
	require.NoError(t, err)
	assert.Negative(t, code)
}

func TestScenarioSetThenGetTriggerRoundTrips(t *testing.T) {
	client, server := newDuplex()

	srv := NewServer(server, NewAttrStore())
	srv.AddDevice(0, "iio:device0")
	go srv.Serve()

	resp := responder.New(client, nil, nil)
	defer resp.Close()

	setReq := resp.NewRequest()
	trig := []byte("sysfstrig0")
	code, err := setReq.ExecCommand(wire.OpSetTrigger, 0, int32(len(trig)), [][]byte{trig}, nil)
	setReq.Close()
	require.NoError(t, err)
	assert.EqualValues(t, 0, code)

	getReq := resp.NewRequest()
	defer getReq.Close()
	recv := make([]byte, len(trig))
	code, err = getReq.ExecCommand(wire.OpGetTrigger, 0, 0, nil, [][]byte{recv})
	require.NoError(t, err)
	assert.EqualValues(t, len(trig), code)
	assert.Equal(t, string(trig), string(recv))
}

func TestScenarioOrphanLateResponseIsDiscardedCleanly(t *testing.T) {
	client, server := newDuplex()

	store := NewAttrStore()
	store.Set("0/name", "ok")
	srv := NewServer(server, store)
	go srv.Serve()

	resp := responder.New(client, nil, nil)
	defer resp.Close()

	orphan := resp.NewRequest()
	orphan.Close() // cancel before any response arrives

	require.NoError(t, srv.SendOrphan(orphan.ClientID(), 16, []byte("1234567890123456")))

	// The connection must still be usable afterwards: a fresh request
	// completes normally, proving the orphan's 16 bytes were drained and
	// did not desynchronize framing.
	req := resp.NewRequest()
	defer req.Close()

	name := []byte("name")
	recv := make([]byte, 2)
	code, err := req.ExecCommand(wire.OpReadAttr, 0, int32(len(name)), [][]byte{name}, [][]byte{recv})
	require.NoError(t, err)
	assert.EqualValues(t, 2, code)
	assert.Equal(t, "ok", string(recv))
}
