package cancel

import (
	"context"
	"sync"
)

// USBToken is the cancellation backend for the USB transport. gousb's
// transfer APIs are already context-aware, so cancellation here means:
// store the context.CancelFunc for whatever transfer is currently in
// flight, and call it on Cancel. Cancelled() stays true permanently until
// Reset is called (the device is closed and reopened) — the submit path
// must consult Cancelled() before starting any new transfer and refuse if
// it is set, matching the fail-fast-until-reopen requirement.
type USBToken struct {
	mu        sync.Mutex
	cancelCur context.CancelFunc
	cancelled bool
}

// NewUSBToken returns an armed, not-yet-cancelled token.
func NewUSBToken() *USBToken { return &USBToken{} }

// Begin registers cancel as the CancelFunc for a newly submitted transfer's
// context and returns false without registering it if the token is already
// cancelled — the caller must not start the transfer in that case.
func (t *USBToken) Begin(cancel context.CancelFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelCur = cancel
	return true
}

// End clears the current transfer's CancelFunc once it has completed.
func (t *USBToken) End() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelCur = nil
}

func (t *USBToken) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = true
	if t.cancelCur != nil {
		t.cancelCur()
		t.cancelCur = nil
	}
	return nil
}

func (t *USBToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reset clears the cancelled flag after the device has been closed and
// reopened, making the token usable again.
func (t *USBToken) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = false
	t.cancelCur = nil
}

func (t *USBToken) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelCur = nil
	return nil
}
