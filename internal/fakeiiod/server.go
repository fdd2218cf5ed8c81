package fakeiiod

import (
	"fmt"
	"strings"
	"sync"

	"github.com/goiiod/iiod/internal/port"
	"github.com/goiiod/iiod/internal/wire"
)

// Server is the daemon side of the protocol: it reads commands off p,
// dispatches them against an AttrStore, and writes RESPONSE frames back.
// It runs its own single reader loop (there is exactly one peer, the
// client under test) and serializes writes with writeMu so a response
// header and its payload are never split by a concurrent reply.
type Server struct {
	p     port.Port
	attrs *AttrStore

	writeMu sync.Mutex

	devices   map[uint8]string
	devicesMu sync.Mutex

	stopCh chan struct{}
	doneCh chan error
}

// NewServer returns a Server that has not yet started serving p.
func NewServer(p port.Port, attrs *AttrStore) *Server {
	if attrs == nil {
		attrs = NewAttrStore()
	}
	return &Server{
		p:       p,
		attrs:   attrs,
		devices: make(map[uint8]string),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan error, 1),
	}
}

// AddDevice registers dev as a valid device index with the given name, so
// OPEN/CLOSE against it succeed.
func (s *Server) AddDevice(dev uint8, name string) {
	s.devicesMu.Lock()
	defer s.devicesMu.Unlock()
	s.devices[dev] = name
}

// Serve runs the read/dispatch loop until the port fails or Stop is
// called. Intended to be run in its own goroutine.
func (s *Server) Serve() error {
	hdrBuf := make([]byte, wire.HeaderSize)
	for {
		select {
		case <-s.stopCh:
			s.doneCh <- nil
			return nil
		default:
		}

		if _, err := wire.TransferAll(s.p, wire.Read, [][]byte{hdrBuf}, wire.HeaderSize); err != nil {
			s.doneCh <- err
			return err
		}
		hdr := wire.DecodeHeader(hdrBuf)

		payload := make([]byte, hdr.Code)
		if hdr.Code > 0 {
			if _, err := wire.TransferAll(s.p, wire.Read, [][]byte{payload}, int(hdr.Code)); err != nil {
				s.doneCh <- err
				return err
			}
		}

		if err := s.dispatch(hdr, payload); err != nil {
			s.doneCh <- err
			return err
		}
	}
}

// Stop asks Serve to return after its current read. Does not forcibly
// unblock a Serve already parked in a Read; callers close the underlying
// port (or cancel it) to do that.
func (s *Server) Stop() { close(s.stopCh) }

func (s *Server) dispatch(hdr wire.Header, payload []byte) error {
	switch hdr.Op {
	case wire.OpVersion:
		v := []byte("0.25\n")
		return s.reply(hdr, int32(len(v)), v)

	case wire.OpOpen, wire.OpOpenCyclic:
		s.devicesMu.Lock()
		_, ok := s.devices[hdr.Dev]
		s.devicesMu.Unlock()
		if !ok {
			return s.reply(hdr, -int32(ierrNoDeviceErrno), nil)
		}
		return s.reply(hdr, 0, nil)

	case wire.OpClose:
		return s.reply(hdr, 0, nil)

	case wire.OpReadAttr, wire.OpReadDebugAttr, wire.OpReadChannelAttr, wire.OpReadBufAttr:
		key := attrKey(hdr.Dev, string(payload))
		v, ok := s.attrs.Get(key)
		if !ok {
			return s.reply(hdr, -int32(ierrNoEntErrno), nil)
		}
		return s.reply(hdr, int32(len(v)), []byte(v))

	case wire.OpWriteAttr, wire.OpWriteDebugAttr, wire.OpWriteChannelAttr, wire.OpWriteBufAttr:
		name, value, found := strings.Cut(string(payload), "\x00")
		if !found {
			return s.reply(hdr, -int32(ierrInvalErrno), nil)
		}
		s.attrs.Set(attrKey(hdr.Dev, name), value)
		return s.reply(hdr, int32(len(value)), nil)

	case wire.OpGetTrigger:
		v, ok := s.attrs.Get(attrKey(hdr.Dev, "trigger/current_trigger"))
		if !ok {
			return s.reply(hdr, -int32(ierrNoEntErrno), nil)
		}
		return s.reply(hdr, int32(len(v)), []byte(v))

	case wire.OpSetTrigger:
		s.attrs.Set(attrKey(hdr.Dev, "trigger/current_trigger"), string(payload))
		return s.reply(hdr, 0, nil)

	case wire.OpSetBufferCount:
		return s.reply(hdr, 0, nil)

	default:
		return s.reply(hdr, -int32(ierrOpNotSuppErrno), nil)
	}
}

func attrKey(dev uint8, name string) string {
	return fmt.Sprintf("%d/%s", dev, name)
}

// reply writes a RESPONSE frame for the command hdr, with code and an
// optional payload (sent only when code > 0, matching the real protocol's
// "negative code carries no payload" rule).
func (s *Server) reply(hdr wire.Header, code int32, data []byte) error {
	resp := wire.Header{ClientID: hdr.ClientID, Op: wire.OpResponse, Dev: hdr.Dev, Code: code}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := wire.TransferAll(s.p, wire.Write, [][]byte{resp.Encode()}, wire.HeaderSize); err != nil {
		return err
	}
	if code > 0 && len(data) > 0 {
		if _, err := wire.TransferAll(s.p, wire.Write, [][]byte{data}, len(data)); err != nil {
			return err
		}
	}
	return nil
}

// SendOrphan writes a bare RESPONSE frame for clientID with the given code
// and payload, bypassing any command/dispatch bookkeeping — used by tests
// to simulate a late response landing after the client has cancelled that
// client id (spec section 8 scenario 3).
func (s *Server) SendOrphan(clientID uint16, code int32, data []byte) error {
	return s.reply(wire.Header{ClientID: clientID}, code, data)
}

// Errno-shaped constants used only to build plausible negative codes in
// reply(); the real protocol's codes are raw negated errno values.
const (
	ierrNoEntErrno    = 2
	ierrNoDeviceErrno = 19
	ierrInvalErrno    = 22
	ierrOpNotSuppErrno = 95
)
