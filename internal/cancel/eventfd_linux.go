//go:build linux

package cancel

import (
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// EventfdToken is the default cancellation backend: an eventfd the fd's
// blocking wait is multiplexed against via epoll. Firing the eventfd from
// any goroutine makes the next (or a currently blocked) WaitReadable
// return immediately with Cancelled() true. Grounded on the teacher's
// direct golang.org/x/sys/unix syscall use in internal/uring/minimal.go.
type EventfdToken struct {
	mu        sync.Mutex
	eventfd   int
	epollfd   int
	watchedFd int
	cancelled bool
	closed    bool
}

// NewEventfdToken creates a token that will multiplex cancellation against
// fd — the port's underlying socket file descriptor.
func NewEventfdToken(fd int) (*EventfdToken, error) {
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}

	t := &EventfdToken{eventfd: efd, epollfd: epfd, watchedFd: fd}

	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}); err != nil {
		t.Close()
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, efd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}); err != nil {
		t.Close()
		return nil, err
	}

	return t, nil
}

// WaitReadable blocks until watchedFd is readable or Cancel fires,
// returning (true, nil) for the cancellation case.
func (t *EventfdToken) WaitReadable() (cancelled bool, err error) {
	events := make([]unix.EpollEvent, 2)
	for {
		n, err := unix.EpollWait(t.epollfd, events, -1)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return false, err
		}
		for i := 0; i < n; i++ {
			if int(events[i].Fd) == t.eventfd {
				return true, nil
			}
		}
		return false, nil
	}
}

func (t *EventfdToken) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled || t.closed {
		return nil
	}
	t.cancelled = true

	buf := make([]byte, 8)
	buf[0] = 1
	_, err := unix.Write(t.eventfd, buf)
	return err
}

func (t *EventfdToken) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

func (t *EventfdToken) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	unix.Close(t.epollfd)
	return unix.Close(t.eventfd)
}
