package usbtransport

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/goiiod/iiod/internal/ierrors"
	"github.com/goiiod/iiod/internal/logging"
)

const controlTimeout = 1 * time.Second

// Arbiter owns every bulk endpoint couple discovered on the "IIO"
// interface and hands them out exclusively per opened device. Couple 0 is
// reserved for the control/attribute stream and is never handed out by
// Open.
type Arbiter struct {
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	closer func()

	epMu    sync.Mutex
	couples []*couple

	log *logging.Logger
}

// NewArbiter scans dev's configuration descriptors for the "IIO" interface
// and builds endpoint couples from its bulk endpoints in adjacent IN/OUT
// pairs, per spec section 6's interface discovery rule.
func NewArbiter(ctx *gousb.Context, device *gousb.Device, log *logging.Logger) (*Arbiter, error) {
	if log == nil {
		log = logging.Default()
	}

	iface, closer, err := findIIOInterface(device)
	if err != nil {
		return nil, err
	}

	couples, err := buildCouples(iface)
	if err != nil {
		closer()
		return nil, err
	}
	if len(couples) < 1 {
		closer()
		return nil, ierrors.NewError("NewArbiter", ierrors.KindUnsupported, "IIO interface exposes no usable endpoint couples")
	}

	device.ControlTimeout = controlTimeout

	a := &Arbiter{ctx: ctx, device: device, iface: iface, closer: closer, couples: couples, log: log}
	a.couples[0].inUse = true // couple 0 is the permanent control/attribute stream
	return a, nil
}

// ControlPort returns a Port bound to couple 0, the permanently-reserved
// control/attribute stream every iiod USB link carries.
func (a *Arbiter) ControlPort() (*Port, error) {
	if len(a.couples) == 0 {
		return nil, ierrors.NewError("ControlPort", ierrors.KindUnsupported, "arbiter has no couples")
	}
	return newPort(a.couples[0]), nil
}

func findIIOInterface(device *gousb.Device) (*gousb.Interface, func(), error) {
	cfgNum, err := device.Config(1)
	if err != nil {
		return nil, nil, ierrors.WrapError("findIIOInterface", err)
	}
	defer cfgNum.Close()

	for _, ifDesc := range cfgNum.Desc.Interfaces {
		for _, alt := range ifDesc.AltSettings {
			if alt.String != "IIO" {
				continue
			}
			iface, err := cfgNum.Interface(ifDesc.Number, alt.Alternate)
			if err != nil {
				return nil, nil, ierrors.WrapError("findIIOInterface", err)
			}
			return iface, iface.Close, nil
		}
	}
	return nil, nil, ierrors.NewError("findIIOInterface", ierrors.KindNotFound, `no interface with string descriptor "IIO"`)
}

// buildCouples groups the interface's bulk endpoints into adjacent IN/OUT
// pairs; an odd or unpaired endpoint count is a protocol violation.
func buildCouples(iface *gousb.Interface) ([]*couple, error) {
	var ins []gousb.EndpointDesc
	var outs []gousb.EndpointDesc
	for _, ep := range iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			ins = append(ins, ep)
		} else {
			outs = append(outs, ep)
		}
	}
	if len(ins) != len(outs) || len(ins) == 0 {
		return nil, ierrors.NewError("buildCouples", ierrors.KindProtocolViolation, "IIO interface must expose equal, nonzero IN/OUT bulk endpoints")
	}

	couples := make([]*couple, len(ins))
	for i := range ins {
		in, err := iface.InEndpoint(ins[i].Number)
		if err != nil {
			return nil, ierrors.WrapError("buildCouples", err)
		}
		out, err := iface.OutEndpoint(outs[i].Number)
		if err != nil {
			return nil, ierrors.WrapError("buildCouples", err)
		}
		couples[i] = &couple{in: in, out: out, pipeID: uint8(i)}
	}
	return couples, nil
}

// Open claims the first free couple for dev, issues OPEN_PIPE, and returns
// a Port bound to it.
func (a *Arbiter) Open(dev uint8) (*Port, error) {
	a.epMu.Lock()
	var c *couple
	for _, cand := range a.couples[1:] {
		if !cand.inUse {
			c = cand
			break
		}
	}
	if c == nil {
		a.epMu.Unlock()
		return nil, ierrors.NewError("Open", ierrors.KindBusy, "no free USB endpoint couple")
	}
	c.inUse = true
	c.ownerDev = dev
	a.epMu.Unlock()

	if err := a.controlTransfer(ctrlOpenPipe, uint16(c.pipeID)); err != nil {
		a.epMu.Lock()
		c.inUse = false
		a.epMu.Unlock()
		return nil, err
	}

	return newPort(c), nil
}

// InUseCount returns how many non-control couples are currently checked
// out, for callers reporting pool occupancy (couple 0's permanent
// reservation is not counted).
func (a *Arbiter) InUseCount() uint32 {
	a.epMu.Lock()
	defer a.epMu.Unlock()
	var n uint32
	for _, c := range a.couples[1:] {
		if c.inUse {
			n++
		}
	}
	return n
}

// Close releases the couple owned by dev, sending CLOSE_PIPE first.
func (a *Arbiter) Close(dev uint8) error {
	a.epMu.Lock()
	var c *couple
	for _, cand := range a.couples[1:] {
		if cand.inUse && cand.ownerDev == dev {
			c = cand
			break
		}
	}
	a.epMu.Unlock()
	if c == nil {
		return nil
	}

	err := a.controlTransfer(ctrlClosePipe, uint16(c.pipeID))

	a.epMu.Lock()
	c.inUse = false
	a.epMu.Unlock()
	return err
}

// ResetPipes tears down every open pipe; called when the arbiter's context
// is being closed entirely.
func (a *Arbiter) ResetPipes() error {
	err := a.controlTransfer(ctrlResetPipes, 0)

	a.epMu.Lock()
	for _, c := range a.couples[1:] {
		c.inUse = false
	}
	a.epMu.Unlock()
	return err
}

func (a *Arbiter) controlTransfer(request uint8, value uint16) error {
	const bmRequestVendorInterface = 0x41 // Host-to-device | Vendor | Interface
	_, err := a.device.Control(bmRequestVendorInterface, request, value, 0, nil)
	if err != nil {
		return ierrors.WrapError("controlTransfer", err)
	}
	return nil
}

// Shutdown resets all pipes and releases the interface handle.
func (a *Arbiter) Shutdown() error {
	err := a.ResetPipes()
	if a.closer != nil {
		a.closer()
	}
	return err
}

func couplesSummary(couples []*couple) string {
	return fmt.Sprintf("%d couples (%d free)", len(couples), freeCount(couples))
}

func freeCount(couples []*couple) int {
	n := 0
	for _, c := range couples {
		if !c.inUse {
			n++
		}
	}
	return n
}
