// Package iiod is the client-side transport and multiplexing layer for a
// remote industrial-I/O daemon: it opens a link (TCP or USB) to an iiod
// server and exposes the request/response operations a higher-level IIO
// context/device/channel model is built on top of. The core multiplexer
// that makes concurrent, cancellable operations possible over one duplex
// link lives in internal/responder; this file is its public surface.
package iiod

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/goiiod/iiod/internal/ierrors"
	"github.com/goiiod/iiod/internal/logging"
	"github.com/goiiod/iiod/internal/nettransport"
	"github.com/goiiod/iiod/internal/port"
	"github.com/goiiod/iiod/internal/responder"
	"github.com/goiiod/iiod/internal/uri"
	"github.com/goiiod/iiod/internal/usbtransport"
	"github.com/goiiod/iiod/internal/wire"
)

// Options carries the ambient dependencies a Context is built with,
// the same shape as the teacher's root Options (Context/Logger/Observer),
// with a Timeout and a Resolver added for iiod's URI discovery needs.
type Options struct {
	// Context governs the lifetime of the dial itself; it does not cancel
	// already-open operations (use Context.Close for that).
	Context context.Context

	// Logger receives structured transport/responder log lines. Defaults
	// to logging.Default() when nil.
	Logger *logging.Logger

	// Observer receives metrics callbacks. Defaults to NoOpObserver.
	Observer Observer

	// Timeout bounds the initial dial and is negotiated with the remote
	// via OpTimeout immediately after connecting (spec section 4.8).
	Timeout time.Duration

	// Resolver services ip:/usb: URIs with an empty body. Required only
	// when such a URI is actually opened.
	Resolver uri.Resolver
}

// DefaultTimeout is used when Options.Timeout is zero.
const DefaultTimeout = 5 * time.Second

// Context is a single link to an iiod daemon: one Responder multiplexing
// every open Device's commands and responses over it.
type Context struct {
	target uri.Target
	resp   *responder.Responder
	p      port.Port

	arbiter *usbtransport.Arbiter // non-nil only for usb: targets

	metrics  *Metrics
	observer Observer
	log      *logging.Logger

	timeout time.Duration

	devicesMu sync.Mutex
	devices   map[uint8]*Device
	nextDevID uint8
}

// Open parses rawURI, dials the appropriate transport, and starts the
// responder. Commands issued by the daemon itself (there are none in the
// base protocol but the wire format allows it) are ignored.
func Open(rawURI string, opts *Options) (*Context, error) {
	if opts == nil {
		opts = &Options{}
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	target, err := uri.Parse(rawURI, opts.Resolver)
	if err != nil {
		return nil, err
	}

	c := &Context{
		target:   target,
		metrics:  NewMetrics(),
		observer: opts.Observer,
		log:      log,
		timeout:  timeout,
		devices:  make(map[uint8]*Device),
	}
	if c.observer == nil {
		c.observer = NoOpObserver{}
	}

	switch target.Kind {
	case uri.KindIP:
		p, err := nettransport.Dial(fmt.Sprintf("%s:%d", target.Host, target.Port), timeout)
		if err != nil {
			return nil, err
		}
		c.p = p
		c.resp = responder.New(p, nil, log)

	case uri.KindUSB:
		ar, p, err := dialUSB(target, log)
		if err != nil {
			return nil, err
		}
		c.arbiter = ar
		c.p = p
		c.resp = responder.New(p, nil, log)

	default:
		return nil, ierrors.NewError("Open", ierrors.KindInvalidArgument, "unrecognized target kind")
	}

	if err := c.SetTimeout(timeout); err != nil {
		c.resp.Close()
		return nil, err
	}

	return c, nil
}

// Close tears down every open Device, stops the responder, and releases
// the transport (and, for USB, the arbiter's interface handle).
func (c *Context) Close() error {
	c.devicesMu.Lock()
	devs := make([]*Device, 0, len(c.devices))
	for _, d := range c.devices {
		devs = append(devs, d)
	}
	c.devicesMu.Unlock()

	for _, d := range devs {
		_ = d.Close()
	}

	err := c.resp.Close()
	c.metrics.Stop()

	if c.arbiter != nil {
		if aerr := c.arbiter.Shutdown(); err == nil {
			err = aerr
		}
	}
	return err
}

// Metrics returns the Context's metrics collector.
func (c *Context) Metrics() *Metrics { return c.metrics }

// Version issues OpVersion and returns the daemon's reported version
// string.
func (c *Context) Version() (string, error) {
	req := c.resp.NewRequest()
	defer req.Close()

	buf := make([]byte, 64)
	code, err := c.execCommand(req, wire.OpVersion, 0, 0, nil, [][]byte{buf})
	if err != nil {
		return "", err
	}
	if code < 0 {
		return "", errFromCode("Version", 0, code)
	}
	return string(buf[:code]), nil
}

// execCommand runs req.ExecCommand and reports the round trip both to c's
// own Metrics (always, so Context.Metrics().Snapshot() is populated with no
// setup required) and to c's pluggable Observer (an independent hook for
// callers that want their own callback, e.g. exporting to Prometheus;
// NoOpObserver by default so nothing double-counts against c.metrics).
// Centralizing this here, rather than inside internal/responder, avoids
// that package needing to know about the root package's Metrics/Observer
// types.
func (c *Context) execCommand(req *responder.Request, op wire.Opcode, dev uint8, code int32, send, recv [][]byte) (int32, error) {
	start := time.Now()
	respCode, err := req.ExecCommand(op, dev, code, send, recv)
	latencyNs := uint64(time.Since(start).Nanoseconds())

	var bytesOut uint64
	for _, b := range send {
		bytesOut += uint64(len(b))
	}
	var bytesIn uint64
	if recv != nil && respCode > 0 {
		bytesIn = uint64(respCode)
	}
	success := err == nil && respCode >= 0

	c.metrics.RecordCommand(bytesIn, bytesOut, latencyNs, success)
	active := uint32(req.Responder().ActiveRequests())
	c.metrics.RecordActiveSlots(active)

	c.observer.ObserveCommand(bytesIn, bytesOut, latencyNs, success)
	c.observer.ObserveActiveSlots(active)
	return respCode, err
}

// errFromCode turns a negative wire response code into a structured
// *Error by treating -code as the daemon's errno, the convention the iiod
// wire protocol uses for every negative RESPONSE code (spec section 7).
func errFromCode(op string, dev uint8, code int32) error {
	if code >= 0 {
		return nil
	}
	e := ierrors.NewErrnoError(op, syscall.Errno(-code))
	e.Dev = dev
	e.HasDev = true
	return e
}

// SetTimeout updates the transport-level timeout and negotiates half of it
// with the remote via OpTimeout, per spec section 4.8. The new timeout is
// only committed to c once the remote acknowledges.
func (c *Context) SetTimeout(d time.Duration) error {
	req := c.resp.NewRequest()
	defer req.Close()

	remote := int32(d / 2 / time.Millisecond)
	code, err := c.execCommand(req, wire.OpTimeout, 0, remote, nil, nil)
	if err != nil {
		return err
	}
	if code < 0 {
		return ierrors.NewError("SetTimeout", ierrors.KindIO, fmt.Sprintf("daemon rejected timeout (code=%d)", code))
	}

	c.timeout = d
	if tp, ok := c.p.(interface{ SetTimeout(time.Duration) }); ok {
		tp.SetTimeout(d)
	}
	return nil
}

// dialUSB resolves target to a bus/address device, opens it with gousb,
// discovers the "IIO" interface, and returns an Arbiter plus the control
// couple's Port (couple 0, the non-streaming attribute/control stream).
func dialUSB(target uri.Target, log *logging.Logger) (*usbtransport.Arbiter, port.Port, error) {
	ctx, dev, err := usbtransport.OpenByBusAddress(target.Bus, target.Address)
	if err != nil {
		return nil, nil, err
	}

	ar, err := usbtransport.NewArbiter(ctx, dev, log)
	if err != nil {
		return nil, nil, err
	}

	p, err := ar.ControlPort()
	if err != nil {
		_ = ar.Shutdown()
		return nil, nil, err
	}
	return ar, p, nil
}
