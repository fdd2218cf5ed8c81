package responder

import (
	"sync"

	"github.com/goiiod/iiod/internal/wire"
)

// ioRequest describes one pending half (read or write) of a slot: the
// header to send/expect, the buffer vector to fill/drain, and a cleanup
// callback that fires exactly once, after the corresponding done flag is
// set and the slot's lock has been released.
type ioRequest struct {
	header  wire.Header
	vec     [][]byte
	cleanup func(arg any)
	arg     any
}

// slot is one in-flight client/request context. A slot may have a pending
// write half, a pending read half, or both at once (send-then-receive is
// the common case, modeled as ExecCommand). rDone/wDone each transition
// false->true exactly once per enqueue cycle, guarded by mu.
type slot struct {
	clientID uint16

	mu   sync.Mutex
	cond *sync.Cond

	rDone, wDone bool
	rCode, wCode int32

	readReq  *ioRequest
	writeReq *ioRequest

	cancelled bool
}

func newSlot() *slot {
	s := &slot{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// armWrite installs req as the pending write half and clears wDone for a
// fresh enqueue cycle. Must be called before the slot is made visible to
// the writer queue.
func (s *slot) armWrite(req *ioRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeReq = req
	s.wDone = false
}

// armRead installs req as the pending read half and clears rDone. Must be
// called before the slot is registered for the reader to find.
func (s *slot) armRead(req *ioRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readReq = req
	s.rDone = false
}

// finishWrite records the outcome of a write attempt and wakes waiters.
// The request's cleanup callback, if any, fires after the lock is released.
func (s *slot) finishWrite(code int32) {
	s.mu.Lock()
	req := s.writeReq
	s.wCode = code
	s.wDone = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if req != nil && req.cleanup != nil {
		req.cleanup(req.arg)
	}
}

// finishRead records the outcome of a read attempt and wakes waiters.
func (s *slot) finishRead(code int32) {
	s.mu.Lock()
	req := s.readReq
	s.rCode = code
	s.rDone = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if req != nil && req.cleanup != nil {
		req.cleanup(req.arg)
	}
}

// waitWrite blocks until wDone and returns the recorded code.
func (s *slot) waitWrite() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.wDone {
		s.cond.Wait()
	}
	return s.wCode
}

// waitRead blocks until rDone and returns the recorded code.
func (s *slot) waitRead() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.rDone {
		s.cond.Wait()
	}
	return s.rCode
}

// markCancelled flags the slot as cancelled; in-flight wire I/O for it still
// completes (drained/discarded by the reader/writer loops) but its result is
// never delivered to a waiter that already gave up.
func (s *slot) markCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
}

func (s *slot) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
