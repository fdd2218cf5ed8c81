package usbtransport

import (
	"context"
	"io"
	"time"

	"github.com/goiiod/iiod/internal/cancel"
	"github.com/goiiod/iiod/internal/ierrors"
)

// Port implements port.Port and port.CancellablePort over one couple's
// bulk IN/OUT endpoints. A single submission is capped at BulkTransferMax;
// larger Read/Write calls are chunked transparently.
type Port struct {
	c       *couple
	token   *cancel.USBToken
	timeout time.Duration
}

// DefaultDataTimeout is used when no per-context timeout has been
// negotiated yet (spec section 5's timeout defaulting rule).
const DefaultDataTimeout = 5 * time.Second

func newPort(c *couple) *Port {
	return &Port{c: c, token: cancel.NewUSBToken(), timeout: DefaultDataTimeout}
}

// SetTimeout records d as the port's data timeout. Bulk submissions do not
// apply it: chunked hands each chunk to the endpoint's plain Read/Write,
// which takes no deadline.
func (p *Port) SetTimeout(d time.Duration) { p.timeout = d }

func (p *Port) Read(buf []byte) (int, error) {
	return p.chunked(buf, p.c.in.Read)
}

func (p *Port) Write(buf []byte) (int, error) {
	return p.chunked(buf, p.c.out.Write)
}

// chunked drives xfer across buf in BulkTransferMax-sized slices, wiring
// each submission through the USB cancellation token. gousb's synchronous
// endpoint Read/Write has no true mid-transfer abort, so an in-flight chunk
// runs to completion (p.timeout is not applied to it); Cancel's real effect is
// refusing every chunk not yet submitted, matching the fail-fast part of
// the spec's cancellation contract.
func (p *Port) chunked(buf []byte, xfer func([]byte) (int, error)) (int, error) {
	if p.token.Cancelled() {
		return 0, ierrors.NewError("usbtransport", ierrors.KindCancelled, "port already cancelled")
	}

	total := 0
	for total < len(buf) {
		end := total + BulkTransferMax
		if end > len(buf) {
			end = len(buf)
		}

		_, cancelFn := context.WithTimeout(context.Background(), p.timeout)
		if !p.token.Begin(cancelFn) {
			cancelFn()
			return total, ierrors.NewError("usbtransport", ierrors.KindCancelled, "port already cancelled")
		}

		n, err := xfer(buf[total:end])
		p.token.End()
		cancelFn()
		total += n

		if err != nil {
			if p.token.Cancelled() {
				return total, ierrors.NewError("usbtransport", ierrors.KindCancelled, "transfer cancelled")
			}
			return total, ierrors.WrapError("usbtransport", err)
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
	}
	return total, nil
}

// Discard reads and drops exactly n bytes.
func (p *Port) Discard(n int) error {
	buf := make([]byte, BulkTransferMax)
	for n > 0 {
		chunk := len(buf)
		if chunk > n {
			chunk = n
		}
		got, err := p.Read(buf[:chunk])
		n -= got
		if err != nil {
			return err
		}
	}
	return nil
}

// Cancel fails every bulk submission not yet started until Reset. A chunk
// already in flight is not aborted; it runs to completion.
func (p *Port) Cancel() { p.token.Cancel() }

// Cancelled reports whether Cancel has fired.
func (p *Port) Cancelled() bool { return p.token.Cancelled() }

// Reset re-arms the port after its owning device has been closed and
// reopened (couple reassigned).
func (p *Port) Reset() { p.token.Reset() }
