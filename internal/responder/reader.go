package responder

import (
	"github.com/goiiod/iiod/internal/ierrors"
	"github.com/goiiod/iiod/internal/wire"
)

// readLoop is the Responder's sole reader goroutine. It demultiplexes
// inbound frames: RESPONSE frames are matched to the slot whose client id
// they carry (or discarded as orphans if no such slot exists), anything
// else is handed to onCommand.
func (r *Responder) readLoop() {
	defer r.readerWG.Done()

	hdrBuf := make([]byte, wire.HeaderSize)

	for {
		if _, err := wire.TransferAll(r.p, wire.Read, [][]byte{hdrBuf}, wire.HeaderSize); err != nil {
			r.log.WithError(err).Debug("reader loop stopping")
			r.haltReaders(err)
			return
		}

		hdr := wire.DecodeHeader(hdrBuf)

		if !hdr.Op.Valid() {
			r.haltReaders(ierrors.NewError("readLoop", ierrors.KindProtocolViolation, "unknown opcode on wire"))
			return
		}

		if hdr.IsResponse() {
			if err := r.handleResponse(hdr); err != nil {
				r.haltReaders(err)
				return
			}
			continue
		}

		if err := r.handleCommand(hdr); err != nil {
			r.haltReaders(err)
			return
		}
	}
}

// handleResponse matches an inbound RESPONSE frame to its slot (if any
// caller is still waiting), fills the slot's read buffers, and wakes it.
func (r *Responder) handleResponse(hdr wire.Header) error {
	s, ok := r.reg.lookup(hdr.ClientID)
	if !ok || s.isCancelled() {
		// Orphan response: nobody is waiting (or the waiter cancelled).
		// Drain exactly the declared payload so framing is preserved.
		if hdr.Code > 0 {
			return r.p.Discard(int(hdr.Code))
		}
		return nil
	}

	s.mu.Lock()
	req := s.readReq
	s.mu.Unlock()

	if req == nil {
		// A RESPONSE arrived for a client id with no armed read request;
		// treat it the same as an orphan rather than blocking forever.
		if hdr.Code > 0 {
			return r.p.Discard(int(hdr.Code))
		}
		return nil
	}

	if hdr.Code > 0 {
		want := wire.VectorSize(req.vec)
		if int(hdr.Code) < want {
			want = int(hdr.Code)
		}
		if want > 0 {
			if _, err := wire.TransferAll(r.p, wire.Read, req.vec, want); err != nil {
				return err
			}
		}
		if overflow := int(hdr.Code) - want; overflow > 0 {
			if err := r.p.Discard(overflow); err != nil {
				return err
			}
		}
	}

	// The client id stays registered after this cycle: a caller doing
	// back-to-back request/response pipelining (GetAndRequestResponse)
	// re-arms the same slot's read request under its own lock before any
	// further traffic for this id could arrive, since that traffic is
	// itself solicited by the command this slot just sent. Callers that
	// are really done release explicitly.
	s.finishRead(hdr.Code)
	return nil
}

// handleCommand dispatches an inbound non-RESPONSE frame to onCommand,
// draining any payload bytes the handler left unconsumed so the stream
// stays framed no matter how much of the payload the handler actually read.
func (r *Responder) handleCommand(hdr wire.Header) error {
	payload := newPayloadReader(r.p, int(hdr.Code))

	var err error
	if r.onCommand != nil {
		err = r.onCommand(hdr, payload)
	}

	if derr := payload.drain(); err == nil {
		err = derr
	}
	return err
}

// haltReaders records the terminal error and wakes every outstanding slot
// so no caller blocks forever on a dead port.
func (r *Responder) haltReaders(err error) {
	r.setStopErr(err)
	r.stopped.Store(true)

	for _, s := range r.reg.all() {
		s.finishRead(-1)
		s.finishWrite(negErrnoCode(err))
	}

	r.writersMu.Lock()
	r.writerCond.Broadcast()
	r.writersMu.Unlock()
}
