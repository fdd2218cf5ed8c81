//go:build linux && giouring

package cancel

import (
	"fmt"
	"sync"

	"github.com/pawelgaczynski/giouring"
)

// IOUringToken is the opt-in high-performance cancellation backend: it
// submits IORING_OP_POLL_ADD against the port's fd and cancels it with
// IORING_OP_ASYNC_CANCEL against the same user_data, mirroring the
// teacher's internal/uring/iouring.go gating exactly — never the default,
// only compiled in under the giouring build tag.
type IOUringToken struct {
	mu        sync.Mutex
	ring      *giouring.Ring
	fd        int
	userData  uint64
	cancelled bool
	closed    bool
}

// NewIOUringToken creates a token backed by ring, polling fd for
// readability. userData identifies this poll's completion among any other
// outstanding operations on the same ring.
func NewIOUringToken(ring *giouring.Ring, fd int, userData uint64) (*IOUringToken, error) {
	t := &IOUringToken{ring: ring, fd: fd, userData: userData}
	if err := t.submitPoll(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *IOUringToken) submitPoll() error {
	sqe := t.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("cancel: submission queue full")
	}
	sqe.PrepPollAdd(uint32(t.fd), giouring.POLLIN)
	sqe.UserData = t.userData
	_, err := t.ring.Submit()
	return err
}

// WaitReadable blocks on the ring for this poll's completion.
func (t *IOUringToken) WaitReadable() (cancelled bool, err error) {
	cqe, err := t.ring.WaitCQE()
	if err != nil {
		return false, err
	}
	defer t.ring.CQESeen(cqe)

	if cqe.UserData != t.userData {
		return false, nil
	}
	if cqe.Res < 0 {
		// Canceled polls complete with -ECANCELED.
		return true, nil
	}
	return false, nil
}

func (t *IOUringToken) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.closed {
		return nil
	}
	t.cancelled = true

	sqe := t.ring.GetSQE()
	if sqe == nil {
		return fmt.Errorf("cancel: submission queue full")
	}
	sqe.PrepCancel(t.userData, 0)
	sqe.UserData = t.userData ^ 1
	_, err := t.ring.Submit()
	return err
}

func (t *IOUringToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *IOUringToken) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
