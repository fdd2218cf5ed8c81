package usbtransport

import (
	"github.com/google/gousb"

	"github.com/goiiod/iiod/internal/ierrors"
)

// OpenByBusAddress opens the USB device at bus/address (as named by a
// usb: URI's numeric fields), claiming it with automatic kernel-driver
// detachment the way the usbtmc reference client does.
func OpenByBusAddress(bus, address int) (*gousb.Context, *gousb.Device, error) {
	ctx := gousb.NewContext()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == bus && desc.Address == address
	})
	if err != nil {
		ctx.Close()
		return nil, nil, ierrors.WrapError("OpenByBusAddress", err)
	}
	if len(devs) == 0 {
		ctx.Close()
		return nil, nil, ierrors.NewError("OpenByBusAddress", ierrors.KindNoDevice, "no USB device at that bus.address")
	}

	dev := devs[0]
	for _, extra := range devs[1:] {
		extra.Close()
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, nil, ierrors.WrapError("OpenByBusAddress", err)
	}

	return ctx, dev, nil
}
