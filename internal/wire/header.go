package wire

import (
	"encoding/binary"
	"unsafe"
)

// HeaderSize is the fixed on-wire size of a command header in bytes.
const HeaderSize = 8

// Header is the fixed 8-byte command header framing every iiod command and
// response. Fields are transmitted in host byte order: the protocol does
// not endian-swap, so client and daemon must share an architecture's byte
// order (spec section 4.1 — "ABI fidelity requirement").
type Header struct {
	ClientID uint16
	Op       Opcode
	Dev      uint8
	Code     int32
}

// Compile-time size check, same idiom as the teacher's
// var _ [N]byte = [unsafe.Sizeof(T{})]byte{} guards in internal/uapi/structs.go.
var _ [HeaderSize]byte = [unsafe.Sizeof(Header{})]byte{}

// Encode marshals h into its 8-byte wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	EncodeInto(buf, h)
	return buf
}

// EncodeInto marshals h into buf, which must be at least HeaderSize bytes.
func EncodeInto(buf []byte, h Header) {
	_ = buf[:HeaderSize] // bounds check hint
	binary.NativeEndian.PutUint16(buf[0:2], h.ClientID)
	buf[2] = byte(h.Op)
	buf[3] = h.Dev
	binary.NativeEndian.PutUint32(buf[4:8], uint32(h.Code))
}

// DecodeHeader unmarshals an 8-byte wire header. data must be exactly
// HeaderSize bytes (callers read HeaderSize bytes before calling this, they
// never hand it a partial buffer — TransferAll is what guarantees that).
func DecodeHeader(data []byte) Header {
	_ = data[:HeaderSize]
	return Header{
		ClientID: binary.NativeEndian.Uint16(data[0:2]),
		Op:       Opcode(data[2]),
		Dev:      data[3],
		Code:     int32(binary.NativeEndian.Uint32(data[4:8])),
	}
}

// IsResponse reports whether h carries a RESPONSE frame.
func (h Header) IsResponse() bool { return h.Op == OpResponse }

// PayloadLen returns the number of payload bytes a RESPONSE header declares.
// Only meaningful when h.IsResponse(); negative Code carries no payload.
func (h Header) PayloadLen() int {
	if h.Code <= 0 {
		return 0
	}
	return int(h.Code)
}
