package iiod

import (
	"bytes"
	"sync"

	"github.com/goiiod/iiod/internal/ierrors"
)

// MockPort is an in-memory port.CancellablePort for unit tests of Context
// and Device that don't want a real TCP or USB link. Writes are appended to
// an outbound log callers can inspect; reads are served from an inbound
// queue callers feed ahead of time with Feed. Call-count tracking and Reset
// follow the same shape as the teacher's MockBackend.
type MockPort struct {
	mu sync.Mutex

	inbound  bytes.Buffer
	outbound bytes.Buffer

	cancelled bool

	readCalls  int
	writeCalls int
}

// NewMockPort returns an empty MockPort.
func NewMockPort() *MockPort {
	return &MockPort{}
}

// Feed appends p to the bytes a future Read will serve, in order.
func (m *MockPort) Feed(p []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbound.Write(p)
}

// Written returns everything Write has been called with so far, in order.
func (m *MockPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.outbound.Bytes()...)
}

// Read implements port.Port.
func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++
	if m.cancelled {
		return 0, ierrors.NewError("MockPort.Read", ierrors.KindCancelled, "port cancelled")
	}
	if m.inbound.Len() == 0 {
		return 0, ierrors.NewError("MockPort.Read", ierrors.KindEndOfStream, "no fed bytes remain")
	}
	return m.inbound.Read(p)
}

// Write implements port.Port.
func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if m.cancelled {
		return 0, ierrors.NewError("MockPort.Write", ierrors.KindCancelled, "port cancelled")
	}
	return m.outbound.Write(p)
}

// Discard implements port.Port by dropping n fed bytes.
func (m *MockPort) Discard(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > m.inbound.Len() {
		n = m.inbound.Len()
	}
	m.inbound.Next(n)
	return nil
}

// Cancel implements port.CancellablePort: every Read/Write fails until
// Reset is called.
func (m *MockPort) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = true
}

// Cancelled implements port.CancellablePort.
func (m *MockPort) Cancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// Reset un-cancels the port and clears call counters, but leaves any
// already-buffered inbound/outbound bytes untouched.
func (m *MockPort) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = false
	m.readCalls = 0
	m.writeCalls = 0
}

// CallCounts returns the number of times Read and Write have been called.
func (m *MockPort) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{"read": m.readCalls, "write": m.writeCalls}
}
