package iiod

import (
	"strings"

	"github.com/goiiod/iiod/internal/responder"
	"github.com/goiiod/iiod/internal/usbtransport"
	"github.com/goiiod/iiod/internal/wire"
)

// Device is one opened iiod device within a Context. Attribute and
// control operations (OPEN/CLOSE/READ_ATTR/WRITE_ATTR/GETTRIG/SETTRIG/
// SETBUFCNT) always go over the Context's control responder; only
// READBUF/WRITEBUF streaming, on a USB link, moves to the device's own
// dedicated endpoint couple (spec section 6's couple-per-device rule — a
// TCP link has no couples, so streaming stays on the same responder too).
type Device struct {
	ctx    *Context
	id     uint8
	cyclic bool

	bulkPort *usbtransport.Port    // non-nil only when ctx is a USB link
	bulkResp *responder.Responder // lazily created the first ReadBuf/WriteBuf
}

// OpenDevice issues OPEN for devName against a fresh device index and
// returns a Device handle. cyclic selects OPEN_CYCLIC, the variant used
// for continuous buffered capture.
func (c *Context) OpenDevice(devName string, cyclic bool) (*Device, error) {
	c.devicesMu.Lock()
	id := c.nextDevID
	c.nextDevID++
	c.devicesMu.Unlock()

	op := wire.OpOpen
	if cyclic {
		op = wire.OpOpenCyclic
	}

	name := []byte(devName)
	req := c.resp.NewRequest()
	code, err := c.execCommand(req, op, id, int32(len(name)), [][]byte{name}, nil)
	req.Close()
	if err != nil {
		return nil, err
	}
	if code < 0 {
		return nil, errFromCode("OpenDevice", id, code)
	}

	d := &Device{ctx: c, id: id, cyclic: cyclic}

	if c.arbiter != nil {
		p, err := c.arbiter.Open(id)
		if err != nil {
			_ = d.closeAttr()
			return nil, err
		}
		d.bulkPort = p
		c.metrics.SetCouplesInUse(c.arbiter.InUseCount())
	}

	c.devicesMu.Lock()
	c.devices[id] = d
	c.devicesMu.Unlock()

	return d, nil
}

// ID returns the device index this Device was opened with.
func (d *Device) ID() uint8 { return d.id }

// Close issues CLOSE and releases the device's USB couple, if any.
func (d *Device) Close() error {
	d.ctx.devicesMu.Lock()
	delete(d.ctx.devices, d.id)
	d.ctx.devicesMu.Unlock()

	err := d.closeAttr()

	if d.bulkResp != nil {
		d.bulkResp.Close()
	}

	if d.ctx.arbiter != nil {
		if cerr := d.ctx.arbiter.Close(d.id); err == nil {
			err = cerr
		}
		d.ctx.metrics.SetCouplesInUse(d.ctx.arbiter.InUseCount())
	}
	return err
}

func (d *Device) closeAttr() error {
	req := d.ctx.resp.NewRequest()
	defer req.Close()
	code, err := d.ctx.execCommand(req, wire.OpClose, d.id, 0, nil, nil)
	if err != nil {
		return err
	}
	return errFromCode("Close", d.id, code)
}

// ReadAttr reads a top-level device attribute by name.
func (d *Device) ReadAttr(name string) (string, error) {
	return d.readAttr(wire.OpReadAttr, name)
}

// ReadDebugAttr reads a debug attribute.
func (d *Device) ReadDebugAttr(name string) (string, error) {
	return d.readAttr(wire.OpReadDebugAttr, name)
}

// ReadBufAttr reads a buffer attribute, e.g. "watermark" or "length".
func (d *Device) ReadBufAttr(name string) (string, error) {
	return d.readAttr(wire.OpReadBufAttr, name)
}

// ReadChannelAttr reads attr of channel (e.g. "voltage0"); output selects
// the output channel of that name. The payload sent is "in <channel>
// <attr>" or "out <channel> <attr>".
func (d *Device) ReadChannelAttr(channel, attr string, output bool) (string, error) {
	payload := channelAttrPayload(channel, attr, output)
	return d.readAttrPayload(wire.OpReadChannelAttr, payload)
}

func (d *Device) readAttr(op wire.Opcode, name string) (string, error) {
	return d.readAttrPayload(op, []byte(name))
}

func (d *Device) readAttrPayload(op wire.Opcode, payload []byte) (string, error) {
	req := d.ctx.resp.NewRequest()
	defer req.Close()

	recv := make([]byte, 4096)
	code, err := d.ctx.execCommand(req, op, d.id, int32(len(payload)), [][]byte{payload}, [][]byte{recv})
	if err != nil {
		return "", err
	}
	if code < 0 {
		return "", errFromCode("ReadAttr", d.id, code)
	}
	return string(recv[:code]), nil
}

// WriteAttr writes a top-level device attribute.
func (d *Device) WriteAttr(name, value string) (int, error) {
	return d.writeAttr(wire.OpWriteAttr, name, value)
}

// WriteDebugAttr writes a debug attribute.
func (d *Device) WriteDebugAttr(name, value string) (int, error) {
	return d.writeAttr(wire.OpWriteDebugAttr, name, value)
}

// WriteBufAttr writes a buffer attribute.
func (d *Device) WriteBufAttr(name, value string) (int, error) {
	return d.writeAttr(wire.OpWriteBufAttr, name, value)
}

// WriteChannelAttr writes a channel attribute.
func (d *Device) WriteChannelAttr(channel, attr, value string, output bool) (int, error) {
	name := channelAttrPayload(channel, attr, output)
	payload := append(append([]byte{}, name...), '\x00')
	payload = append(payload, value...)
	return d.writeAttrPayload(wire.OpWriteChannelAttr, payload)
}

func (d *Device) writeAttr(op wire.Opcode, name, value string) (int, error) {
	payload := append([]byte(name+"\x00"), value...)
	return d.writeAttrPayload(op, payload)
}

func (d *Device) writeAttrPayload(op wire.Opcode, payload []byte) (int, error) {
	req := d.ctx.resp.NewRequest()
	defer req.Close()

	code, err := d.ctx.execCommand(req, op, d.id, int32(len(payload)), [][]byte{payload}, nil)
	if err != nil {
		return 0, err
	}
	if code < 0 {
		return 0, errFromCode("WriteAttr", d.id, code)
	}
	return int(code), nil
}

func channelAttrPayload(channel, attr string, output bool) []byte {
	dir := "in"
	if output {
		dir = "out"
	}
	return []byte(strings.Join([]string{dir, channel, attr}, " "))
}

// GetTrigger returns the name of the device's currently attached trigger.
func (d *Device) GetTrigger() (string, error) {
	req := d.ctx.resp.NewRequest()
	defer req.Close()

	recv := make([]byte, 256)
	code, err := d.ctx.execCommand(req, wire.OpGetTrigger, d.id, 0, nil, [][]byte{recv})
	if err != nil {
		return "", err
	}
	if code < 0 {
		return "", errFromCode("GetTrigger", d.id, code)
	}
	return string(recv[:code]), nil
}

// SetTrigger attaches trigName as the device's trigger.
func (d *Device) SetTrigger(trigName string) error {
	req := d.ctx.resp.NewRequest()
	defer req.Close()

	name := []byte(trigName)
	code, err := d.ctx.execCommand(req, wire.OpSetTrigger, d.id, int32(len(name)), [][]byte{name}, nil)
	if err != nil {
		return err
	}
	return errFromCode("SetTrigger", d.id, code)
}

// SetBufferCount sets the number of kernel buffers the device's capture
// ring uses.
func (d *Device) SetBufferCount(count int32) error {
	req := d.ctx.resp.NewRequest()
	defer req.Close()

	code, err := d.ctx.execCommand(req, wire.OpSetBufferCount, d.id, count, nil, nil)
	if err != nil {
		return err
	}
	return errFromCode("SetBufferCount", d.id, code)
}

// ReadBuf reads up to len(buf) bytes of sample data, requesting nSamples
// worth of data from the daemon. It streams over the device's own USB
// couple when one exists, or the Context's single responder on a TCP
// link.
func (d *Device) ReadBuf(buf []byte, nSamples int32) (int, error) {
	request := d.bulkRequester().NewRequest()
	defer request.Close()

	code, err := d.ctx.execCommand(request, wire.OpReadBuf, d.id, nSamples, nil, [][]byte{buf})
	if err != nil {
		return 0, err
	}
	if code < 0 {
		return 0, errFromCode("ReadBuf", d.id, code)
	}
	return int(code), nil
}

// WriteBuf writes buf's sample data to the device.
func (d *Device) WriteBuf(buf []byte) (int, error) {
	request := d.bulkRequester().NewRequest()
	defer request.Close()

	code, err := d.ctx.execCommand(request, wire.OpWriteBuf, d.id, int32(len(buf)), [][]byte{buf}, nil)
	if err != nil {
		return 0, err
	}
	if code < 0 {
		return 0, errFromCode("WriteBuf", d.id, code)
	}
	return int(code), nil
}

// bulkRequester returns the responder that should carry this device's
// READBUF/WRITEBUF traffic: its own couple's responder on USB, or the
// shared control responder everywhere else. Streaming responders are
// created lazily per Device since not every opened device streams.
func (d *Device) bulkRequester() *responder.Responder {
	if d.bulkPort == nil {
		return d.ctx.resp
	}
	if d.bulkResp == nil {
		d.bulkResp = responder.New(d.bulkPort, nil, d.ctx.log)
	}
	return d.bulkResp
}
