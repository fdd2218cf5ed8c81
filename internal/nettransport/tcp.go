// Package nettransport implements port.Port over a TCP connection to an
// iiod daemon. Cancel unblocks an in-flight read/write by forcing the
// connection deadline; the attached eventfd token records the cancelled
// state so the failure reports KindCancelled. Reads and writes do not wait
// on the eventfd itself.
package nettransport

import (
	"bufio"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/goiiod/iiod/internal/cancel"
	"github.com/goiiod/iiod/internal/ierrors"
)

// Port adapts a net.Conn to port.Port/port.CancellablePort. Exactly one
// goroutine reads and one writes once a Responder owns it, matching the
// contract the wider module assumes.
type Port struct {
	conn net.Conn
	r    *bufio.Reader

	token *cancel.EventfdToken
}

// Dial opens a TCP connection to addr (host:port), wraps it as a Port, and
// attaches the default eventfd cancellation token over its socket fd (spec
// section 7/8: a cancelled in-flight Read/Write must surface KindCancelled,
// not whatever the bare net.Conn deadline trick happens to map to).
func Dial(addr string, timeout time.Duration) (*Port, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, ierrors.WrapError("Dial", err)
	}

	tok, err := eventfdTokenFor(conn)
	if err != nil {
		conn.Close()
		return nil, ierrors.WrapError("Dial", err)
	}

	return New(conn).WithToken(tok), nil
}

// eventfdTokenFor builds an EventfdToken multiplexed against conn's
// underlying socket file descriptor.
func eventfdTokenFor(conn net.Conn) (*cancel.EventfdToken, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return nil, ierrors.NewError("eventfdTokenFor", ierrors.KindUnsupported, "connection does not expose a raw fd")
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	var fd int
	if err := rc.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return nil, err
	}

	return cancel.NewEventfdToken(fd)
}

// New wraps an already-established connection. Cancellation support is
// optional: call WithToken to attach an eventfd-based token built over the
// connection's file descriptor.
func New(conn net.Conn) *Port {
	return &Port{conn: conn, r: bufio.NewReaderSize(conn, 64*1024)}
}

// WithToken attaches an eventfd cancellation token built over the
// connection's file descriptor. Callers that need Cancel()/Cancelled()
// support (every responder does) call this right after New.
func (p *Port) WithToken(tok *cancel.EventfdToken) *Port {
	p.token = tok
	return p
}

func (p *Port) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if err != nil {
		return n, p.wrapErr("Read", err)
	}
	if n == 0 {
		return 0, ierrors.NewError("Read", ierrors.KindEndOfStream, "zero-length read")
	}
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	n, err := p.conn.Write(b)
	if err != nil {
		return n, p.wrapErr("Write", err)
	}
	return n, nil
}

// Discard reads and drops exactly n bytes.
func (p *Port) Discard(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, p.r, int64(n))
	if err != nil {
		return p.wrapErr("Discard", err)
	}
	return nil
}

// ReadLine reads up to and including the first '\n', returning the line
// without the trailing newline. This is the one semantics the protocol
// needs for the daemon's textual handshake/version lines — no separate
// "non-Linux fallback" branch, per design note (spec section 9).
func (p *Port) ReadLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if err != nil {
		return "", p.wrapErr("ReadLine", err)
	}
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	return line, nil
}

func (p *Port) Cancel() {
	if p.token != nil {
		_ = p.token.Cancel()
	}
	_ = p.conn.SetDeadline(time.Now())
}

func (p *Port) Cancelled() bool {
	if p.token == nil {
		return false
	}
	return p.token.Cancelled()
}

func (p *Port) Close() error {
	if p.token != nil {
		_ = p.token.Close()
	}
	return p.conn.Close()
}

// wrapErr classifies a failed Read/Write/Discard. Cancel() is checked
// first: Cancel forces the deadline that produces this same net.Error, and
// without this check a cancelled wait would be misreported as KindTimeout
// rather than the KindCancelled the spec's cancellation contract requires
// ("cancel ⇒ caller wakes; a subsequent I/O … returns Cancelled").
func (p *Port) wrapErr(op string, err error) error {
	if err == io.EOF {
		return ierrors.NewError(op, ierrors.KindEndOfStream, "connection closed")
	}
	if p.Cancelled() {
		return ierrors.NewError(op, ierrors.KindCancelled, "port cancelled")
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ierrors.NewError(op, ierrors.KindTimeout, err.Error())
	}
	return ierrors.WrapError(op, err)
}
