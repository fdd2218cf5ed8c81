package responder

import (
	"errors"
	"syscall"

	"github.com/goiiod/iiod/internal/ierrors"
	"github.com/goiiod/iiod/internal/wire"
)

// negErrnoCode extracts the -errno wire convention from a transport error,
// e.g. a USB STALL on bulk-out surfaces as KindBrokenPipe/EPIPE and the
// slot's w_done must report code = -EPIPE (spec section 8 scenario 4), not a
// generic sentinel. Falls back to -1 when err carries no errno.
func negErrnoCode(err error) int32 {
	var ie *ierrors.Error
	if errors.As(err, &ie) && ie.Errno != 0 {
		return -int32(ie.Errno)
	}
	return -1
}

// writeLoop is the Responder's sole writer goroutine: the one
// serialization point for outbound bytes. It pops the head of the writer
// FIFO and writes the header followed by the send vector, back to back, so
// no other command's bytes can interleave.
func (r *Responder) writeLoop() {
	defer r.writerWG.Done()

	for {
		s := r.popWriter()
		if s == nil {
			return // responder stopped and the queue drained
		}

		s.mu.Lock()
		req := s.writeReq
		s.mu.Unlock()

		if req == nil || s.isCancelled() {
			s.finishWrite(-1)
			continue
		}

		// Check the caller's vector against MaxVector before writing
		// anything. The header goes out as its own TransferAll call (below),
		// so a caller-supplied vector of exactly MaxVector buffers is
		// spec-legal and is not rejected. A violation here is local to this
		// slot, not a reason to tear down every other request sharing the
		// link.
		if len(req.vec) > wire.MaxVector {
			s.finishWrite(-int32(syscall.EINVAL))
			continue
		}

		// The header is written as its own TransferAll call rather than
		// being prepended to req.vec: combining them would push a
		// spec-legal MaxVector-sized req.vec to MaxVector+1 entries and
		// trip TransferAll's own vector-length check on a request that was
		// never out of bounds. writeLoop is the sole writer goroutine, so
		// issuing the header and payload as two sequential writes is still
		// one uninterrupted frame on the wire.
		hdrBuf := req.header.Encode()
		if _, err := wire.TransferAll(r.p, wire.Write, [][]byte{hdrBuf}, wire.HeaderSize); err != nil {
			r.haltReaders(err)
			s.finishWrite(negErrnoCode(err))
			continue
		}

		payloadTotal := wire.VectorSize(req.vec)
		n := 0
		if payloadTotal > 0 {
			var err error
			n, err = wire.TransferAll(r.p, wire.Write, req.vec, payloadTotal)
			if err != nil {
				r.haltReaders(err)
				s.finishWrite(negErrnoCode(err))
				continue
			}
		}
		s.finishWrite(int32(n))
	}
}

// popWriter blocks until the writer queue is non-empty or the responder
// has stopped, then pops and returns the head slot (nil if stopped with an
// empty queue).
func (r *Responder) popWriter() *slot {
	r.writersMu.Lock()
	defer r.writersMu.Unlock()

	for len(r.writerQ) == 0 && !r.stopped.Load() {
		r.writerCond.Wait()
	}
	if len(r.writerQ) == 0 {
		return nil
	}

	s := r.writerQ[0]
	r.writerQ = r.writerQ[1:]
	delete(r.writerSet, s)
	return s
}
