package wire

import (
	"fmt"

	"github.com/goiiod/iiod/internal/ierrors"
	"github.com/goiiod/iiod/internal/port"
)

// MaxVector is the maximum number of buffers a single vector I/O may span
// (spec section 8 boundary behavior).
const MaxVector = 32

// ErrTooManyBuffers is returned by TransferAll when the caller's vector
// exceeds MaxVector entries. A *ierrors.Error with KindInvalidArgument, per
// spec section 8's "buffer vector of length >32 ⇒ InvalidArgument" boundary.
var ErrTooManyBuffers = ierrors.NewError("TransferAll", ierrors.KindInvalidArgument, fmt.Sprintf("vector exceeds %d buffers", MaxVector))

// Direction selects which half of the port a TransferAll call drives.
type Direction int

const (
	Read Direction = iota
	Write
)

// TransferAll is the rw_all primitive: it drives p.Read or p.Write,
// depending on dir, across the ordered buffer vector until exactly total
// bytes have moved, advancing the current buffer on short I/O and retiring
// buffers as they fill. On the read path the final buffer is capped so a
// trailing buffer larger than the declared byte count is never
// over-consumed — any caller-provided capacity beyond total is left
// untouched.
func TransferAll(p port.Port, dir Direction, vec [][]byte, total int) (int, error) {
	if len(vec) > MaxVector {
		return 0, ErrTooManyBuffers
	}

	moved := 0
	idx := 0
	off := 0

	for moved < total {
		if idx >= len(vec) {
			return moved, fmt.Errorf("wire: vector exhausted after %d of %d bytes", moved, total)
		}

		full := vec[idx][off:]
		remaining := total - moved
		capped := full
		if len(capped) > remaining {
			// Never consume past the declared byte count, even if the
			// current (typically trailing) buffer is larger — this is
			// what keeps an oversized caller buffer from swallowing the
			// next frame's header.
			capped = capped[:remaining]
		}
		if len(capped) == 0 {
			idx++
			off = 0
			continue
		}

		var n int
		var err error
		switch dir {
		case Read:
			n, err = p.Read(capped)
		case Write:
			n, err = p.Write(capped)
		}

		moved += n
		off += n
		// Retire the buffer once its (possibly capped) slice is fully
		// consumed, regardless of how much of the underlying buffer's
		// original capacity that left untouched.
		if n == len(capped) {
			idx++
			off = 0
		}

		if err != nil {
			return moved, err
		}
		if n == 0 {
			return moved, fmt.Errorf("wire: zero-length transfer with %d of %d bytes moved", moved, total)
		}
	}

	return moved, nil
}

// VectorSize sums the length of every buffer in vec.
func VectorSize(vec [][]byte) int {
	n := 0
	for _, b := range vec {
		n += len(b)
	}
	return n
}
