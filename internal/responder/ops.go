package responder

import "github.com/goiiod/iiod/internal/wire"

// Request is a caller's handle on one client id's slot. Operations on iiod
// naturally span several request/response exchanges against the same id
// (open once, read many buffers, close), so a Request stays registered
// across calls until Close releases it.
type Request struct {
	r *Responder
	s *slot
}

// NewRequest allocates a fresh client id and returns a Request bound to it.
func (r *Responder) NewRequest() *Request {
	s := newSlot()
	r.reg.allocate(s)
	return &Request{r: r, s: s}
}

// ClientID returns the id this Request was allocated.
func (req *Request) ClientID() uint16 { return req.s.clientID }

// Responder returns the Responder this Request was allocated from, so a
// caller tracking metrics across several responders (e.g. a Device's
// control and bulk responders) can sample per-responder slot counts.
func (req *Request) Responder() *Responder { return req.r }

// Close cancels any pending I/O on this Request and releases its client id.
// Safe to call more than once.
func (req *Request) Close() {
	req.r.cancel(req.s)
}

// SendCommand enqueues hdr (op/dev/code) and send for the writer loop and
// blocks until the bytes have actually gone out (not until a response
// arrives — callers that need the response call GetResponse or
// ExecCommand).
func (req *Request) SendCommand(op wire.Opcode, dev uint8, code int32, send [][]byte) (int32, error) {
	req.s.armWrite(&ioRequest{
		header: wire.Header{ClientID: req.s.clientID, Op: op, Dev: dev, Code: code},
		vec:    send,
	})
	req.r.enqueueWrite(req.s)

	n := req.s.waitWrite()
	if n < 0 {
		return n, req.r.lastErr()
	}
	return n, nil
}

// GetResponse arms recv as the read buffers for this Request's client id
// and blocks until a matching RESPONSE arrives.
func (req *Request) GetResponse(recv [][]byte) (int32, error) {
	req.s.armRead(&ioRequest{vec: recv})

	code := req.s.waitRead()
	if code < 0 && req.r.Stopped() {
		return code, req.r.lastErr()
	}
	return code, nil
}

// ExecCommand arms recv, sends hdr+send, and blocks for the response. If
// the send itself fails, the read side is cancelled and the send error is
// returned rather than hanging for a response that will never come.
func (req *Request) ExecCommand(op wire.Opcode, dev uint8, code int32, send [][]byte, recv [][]byte) (int32, error) {
	req.s.armRead(&ioRequest{vec: recv})

	req.s.armWrite(&ioRequest{
		header: wire.Header{ClientID: req.s.clientID, Op: op, Dev: dev, Code: code},
		vec:    send,
	})
	req.r.enqueueWrite(req.s)

	if n := req.s.waitWrite(); n < 0 {
		req.r.cancel(req.s)
		return n, req.r.lastErr()
	}

	respCode := req.s.waitRead()
	if respCode < 0 && req.r.Stopped() {
		return respCode, req.r.lastErr()
	}
	return respCode, nil
}

// GetAndRequestResponse blocks for the current read cycle's response, then
// immediately re-arms a fresh read request with recv before returning, so a
// caller streaming successive buffers (e.g. cyclic READBUF) never leaves a
// gap on the wire between one response landing and the next being
// solicited.
func (req *Request) GetAndRequestResponse(recv [][]byte) (int32, error) {
	code := req.s.waitRead()
	req.s.armRead(&ioRequest{vec: recv})
	if code < 0 && req.r.Stopped() {
		return code, req.r.lastErr()
	}
	return code, nil
}
