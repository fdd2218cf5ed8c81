package responder

import (
	"github.com/goiiod/iiod/internal/port"
	"github.com/goiiod/iiod/internal/wire"
)

// PayloadReader lets a CommandHandler read an inbound non-RESPONSE frame's
// declared-length payload off the port. It is only valid for the duration
// of the handler call; the reader loop discards whatever the handler left
// unread before decoding the next header, so a handler that reads less
// than the full payload does not desynchronize framing.
type PayloadReader struct {
	p       port.Port
	total   int
	read    int
}

func newPayloadReader(p port.Port, total int) *PayloadReader {
	return &PayloadReader{p: p, total: total}
}

// Remaining reports how many payload bytes have not yet been read.
func (pr *PayloadReader) Remaining() int { return pr.total - pr.read }

// ReadVec reads min(VectorSize(vec), Remaining()) bytes into vec via
// TransferAll.
func (pr *PayloadReader) ReadVec(vec [][]byte) (int, error) {
	want := wire.VectorSize(vec)
	if want > pr.Remaining() {
		want = pr.Remaining()
	}
	if want == 0 {
		return 0, nil
	}
	n, err := wire.TransferAll(pr.p, wire.Read, vec, want)
	pr.read += n
	return n, err
}

// drain discards whatever payload bytes the handler left unread.
func (pr *PayloadReader) drain() error {
	if pr.Remaining() <= 0 {
		return nil
	}
	err := pr.p.Discard(pr.Remaining())
	pr.read = pr.total
	return err
}
