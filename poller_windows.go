//go:build windows

package gofiber

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

const maxFDGrow = 100000000

var (
	ErrFDOutOfRange        = errors.New(Namespace + ": fd out of range")
	ErrFDAlreadyRegistered = errors.New(Namespace + ": fd already registered")
	ErrFDNotRegistered     = errors.New(Namespace + ": fd not registered")
	ErrPollerClosed        = errors.New(Namespace + ": poller closed")
)

// fastPoller wraps an IOCP completion port, using the fd itself as the
// completion key so PollIO can map a completion packet back to the waiting
// fiber without a callback registry. Single-goroutine use only: see poller.go.
type fastPoller struct {
	iocp   windows.Handle
	fds    []fdWaiter
	active []bool
	closed bool
}

func (p *fastPoller) init() error {
	iocp, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return err
	}
	p.iocp = iocp
	p.fds = make([]fdWaiter, 1024)
	p.active = make([]bool, 1024)
	return nil
}

func (p *fastPoller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return windows.CloseHandle(p.iocp)
}

func (p *fastPoller) grow(fd int) {
	if fd < len(p.fds) {
		return
	}
	size := fd*2 + 1
	if size > maxFDGrow {
		size = maxFDGrow + 1
	}
	newFds := make([]fdWaiter, size)
	newActive := make([]bool, size)
	copy(newFds, p.fds)
	copy(newActive, p.active)
	p.fds = newFds
	p.active = newActive
}

func (p *fastPoller) registerFD(fd int, events IOEvents, waiter fdWaiter) error {
	if p.closed {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDGrow {
		return ErrFDOutOfRange
	}
	p.grow(fd)
	if p.active[fd] {
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = waiter
	p.active[fd] = true
	handle := windows.Handle(fd)
	if _, err := windows.CreateIoCompletionPort(handle, p.iocp, uintptr(fd), 0); err != nil {
		p.active[fd] = false
		return err
	}
	return nil
}

func (p *fastPoller) unregisterFD(fd int) error {
	if fd < 0 || fd >= len(p.active) || !p.active[fd] {
		return ErrFDNotRegistered
	}
	p.active[fd] = false
	p.fds[fd] = fdWaiter{}
	return nil
}

// pollIO waits for a single completion packet and, if it maps to a
// registered fd, reports that fd's waiter once.
func (p *fastPoller) pollIO(timeoutMs int) ([]fdWaiter, []IOEvents, error) {
	if p.closed {
		return nil, nil, ErrPollerClosed
	}
	var timeout *uint32
	if timeoutMs >= 0 {
		t := uint32(timeoutMs)
		timeout = &t
	}

	var bytes uint32
	var key uintptr
	var overlapped *windows.Overlapped

	err := windows.GetQueuedCompletionStatus(p.iocp, &bytes, &key, &overlapped, timeout)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == windows.WAIT_TIMEOUT {
				return nil, nil, nil
			}
			if errno == windows.ERROR_ABANDONED_WAIT_0 || errno == windows.ERROR_INVALID_HANDLE {
				return nil, nil, ErrPollerClosed
			}
		}
		return nil, nil, err
	}

	fd := int(key)
	if fd < 0 || fd >= len(p.active) || !p.active[fd] {
		return nil, nil, nil
	}
	return []fdWaiter{p.fds[fd]}, []IOEvents{EventRead | EventWrite}, nil
}
