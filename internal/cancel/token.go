// Package cancel implements the per-port cancellation primitive: a Token
// that aborts whatever blocking Read/Write is currently in flight on a
// port and makes every later one fail immediately, until the port is
// reopened. The contract mirrors the teacher's uring.Ring abstraction — a
// syscall-based default with an optional, never-default, high-performance
// alternative gated by a build tag.
package cancel

// Token is the abstract cancellation handle a port.CancellablePort embeds.
// Cancel is idempotent: calling it more than once, or after the port has
// already failed for an unrelated reason, has no additional effect.
type Token interface {
	// Cancel aborts any in-flight wait and causes subsequent waits to fail
	// immediately with Cancelled() reporting true.
	Cancel() error

	// Cancelled reports whether Cancel has fired.
	Cancelled() bool

	// Close releases resources backing the token (the eventfd, epoll
	// instance, or ring registration). After Close the token must not be
	// used again.
	Close() error
}
