package responder

import (
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/goiiod/iiod/internal/ierrors"
	"github.com/goiiod/iiod/internal/logging"
	"github.com/goiiod/iiod/internal/port"
	"github.com/goiiod/iiod/internal/wire"
)

// CommandHandler is invoked by the reader loop for every inbound frame that
// is not a RESPONSE — i.e. the daemon (or, on the USB control couple, the
// peer) is itself issuing a command to this side. payload lets the handler
// pull exactly hdr's declared byte count off the wire before returning;
// handlers that ignore payload must not read from the port directly.
type CommandHandler func(hdr wire.Header, payload *PayloadReader) error

// Responder multiplexes one duplex port.Port across many concurrent
// callers: one reader goroutine demuxes inbound RESPONSE frames to the
// slot whose client id they carry, one writer goroutine serializes
// outbound frames so a command's bytes are never interleaved with another
// command's.
type Responder struct {
	p port.Port

	reg *registry

	writersMu  sync.Mutex
	writerCond *sync.Cond
	writerQ    []*slot
	writerSet  map[*slot]bool

	stopped   atomic.Bool
	stopErr   atomic.Value // error

	readerWG sync.WaitGroup
	writerWG sync.WaitGroup

	onCommand CommandHandler

	log *logging.Logger
}

// New starts a Responder's reader and writer goroutines over p. onCommand
// may be nil if the caller never expects inbound (non-RESPONSE) frames.
func New(p port.Port, onCommand CommandHandler, log *logging.Logger) *Responder {
	if log == nil {
		log = logging.Default()
	}
	r := &Responder{
		p:         p,
		reg:       newRegistry(),
		writerSet: make(map[*slot]bool),
		onCommand: onCommand,
		log:       log,
	}
	r.writerCond = sync.NewCond(&r.writersMu)

	r.readerWG.Add(1)
	go r.readLoop()
	r.writerWG.Add(1)
	go r.writeLoop()

	return r
}

// Close stops the writer loop, cancels the port so the reader loop exits,
// and unblocks every outstanding waiter. Safe to call more than once. When
// p is not a port.CancellablePort the reader cannot be interrupted: Close
// then wakes the waiters itself and returns without waiting for the reader,
// which exits at its next return from Read.
func (r *Responder) Close() error {
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	cp, cancellable := r.p.(port.CancellablePort)
	if cancellable {
		cp.Cancel()
	}

	r.writersMu.Lock()
	r.writerCond.Broadcast()
	r.writersMu.Unlock()

	r.writerWG.Wait()
	if cancellable {
		r.readerWG.Wait()
	} else {
		r.haltReaders(nil)
	}
	return nil
}

// Stopped reports whether the responder has shut down.
func (r *Responder) Stopped() bool { return r.stopped.Load() }

// ActiveRequests returns the number of client ids currently registered,
// i.e. Requests that have been allocated but not yet Close()'d.
func (r *Responder) ActiveRequests() int { return r.reg.activeCount() }

func (r *Responder) setStopErr(err error) {
	if err == nil {
		err = ierrors.NewError("responder", ierrors.KindEndOfStream, "responder stopped")
	}
	r.stopErr.CompareAndSwap(nil, err)
}

func (r *Responder) lastErr() error {
	if v := r.stopErr.Load(); v != nil {
		return v.(error)
	}
	return nil
}

// enqueueWrite registers s (already armed via armWrite) at the tail of the
// writer FIFO and wakes the writer goroutine.
func (r *Responder) enqueueWrite(s *slot) {
	r.writersMu.Lock()
	r.writerQ = append(r.writerQ, s)
	r.writerSet[s] = true
	r.writerCond.Signal()
	r.writersMu.Unlock()
}

// cancel removes s from the writer queue (if present) and from the
// registry so the reader will treat any further matching RESPONSE as an
// orphan. Idempotent; in-flight wire bytes for s still complete but are
// never delivered. A caller still blocked on s is woken with -EBADF, the
// code a cancelled transfer carries on the wire.
func (r *Responder) cancel(s *slot) {
	s.markCancelled()

	r.writersMu.Lock()
	if r.writerSet[s] {
		delete(r.writerSet, s)
		for i, q := range r.writerQ {
			if q == s {
				r.writerQ = append(r.writerQ[:i], r.writerQ[i+1:]...)
				break
			}
		}
	}
	r.writersMu.Unlock()

	r.reg.release(s.clientID)

	s.mu.Lock()
	rPending, wPending := !s.rDone, !s.wDone
	s.mu.Unlock()
	if rPending {
		s.finishRead(-int32(syscall.EBADF))
	}
	if wPending {
		s.finishWrite(-int32(syscall.EBADF))
	}
}
