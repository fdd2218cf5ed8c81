// Package usbtransport implements port.Port over a USB bulk endpoint
// couple to an iiod daemon exposing the "IIO" USB interface, plus the
// endpoint-couple arbiter and vendor control transfers that open/close
// individual device pipes over it.
package usbtransport

import "io"

// Vendor control requests (bmRequestType = Vendor|Interface, wLength=0).
const (
	ctrlResetPipes uint8 = 0
	ctrlOpenPipe   uint8 = 1
	ctrlClosePipe  uint8 = 2
)

// BulkTransferMax is the largest single bulk submission the kernel URB
// allocator is asked to handle; larger transfers are chunked.
const BulkTransferMax = 1 << 20 // 1MiB

// bulkIn and bulkOut are the minimal slices of *gousb.InEndpoint and
// *gousb.OutEndpoint a couple needs. Both types satisfy these directly;
// the indirection exists so tests can stand in a fake endpoint pair
// without a real USB device attached.
type bulkIn interface {
	Read(p []byte) (int, error)
}

type bulkOut interface {
	io.Writer
}

// couple is one IN/OUT bulk endpoint pair. Couple 0 is permanently
// reserved for the control/attribute stream; the rest form an
// exclusive-ownership pool handed out per opened device.
type couple struct {
	in  bulkIn
	out bulkOut

	pipeID   uint8
	inUse    bool
	ownerDev uint8
}
