//go:build darwin

package gofiber

import (
	"errors"

	"golang.org/x/sys/unix"
)

// maxFDGrow bounds how large the dynamic fd table may grow before rejecting
// new registrations, as a safety valve against unbounded growth from a
// runaway caller registering ever-larger file descriptors.
const maxFDGrow = 100000000

var (
	ErrFDOutOfRange        = errors.New(Namespace + ": fd out of range")
	ErrFDAlreadyRegistered = errors.New(Namespace + ": fd already registered")
	ErrFDNotRegistered     = errors.New(Namespace + ": fd not registered")
	ErrPollerClosed        = errors.New(Namespace + ": poller closed")
)

// fastPoller wraps kqueue. Single-goroutine use only: see poller.go.
type fastPoller struct {
	kq       int
	eventBuf [256]unix.Kevent_t
	fds      []fdWaiter
	active   []bool
	closed   bool
}

func (p *fastPoller) init() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	unix.CloseOnExec(kq)
	p.kq = kq
	p.fds = make([]fdWaiter, 1024)
	p.active = make([]bool, 1024)
	return nil
}

func (p *fastPoller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.kq)
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
	kevents := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevents) > 0 {
		if _, err := unix.Kevent(p.kq, kevents, nil, nil); err != nil {
			p.active[fd] = false
			return err
		}
	}
	return nil
}

func (p *fastPoller) unregisterFD(fd int) error {
	if fd < 0 || fd >= len(p.active) || !p.active[fd] {
		return ErrFDNotRegistered
	}
	p.active[fd] = false
	p.fds[fd] = fdWaiter{}
	kevents := eventsToKevents(fd, EventRead|EventWrite, unix.EV_DELETE)
	_, _ = unix.Kevent(p.kq, kevents, nil, nil)
	return nil
}

func (p *fastPoller) pollIO(timeoutMs int) ([]fdWaiter, []IOEvents, error) {
	if p.closed {
		return nil, nil, ErrPollerClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{Sec: int64(timeoutMs / 1000), Nsec: int64((timeoutMs % 1000) * 1000000)}
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	waiters := make([]fdWaiter, 0, n)
	events := make([]IOEvents, 0, n)
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		if fd < 0 || fd >= len(p.active) || !p.active[fd] {
			continue
		}
		waiters = append(waiters, p.fds[fd])
		events = append(events, keventToEvents(&p.eventBuf[i]))
	}
	return waiters, events, nil
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var kevents []unix.Kevent_t
	if events&EventRead != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		kevents = append(kevents, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return kevents
}

func keventToEvents(kev *unix.Kevent_t) IOEvents {
	var events IOEvents
	switch kev.Filter {
	case unix.EVFILT_READ:
		events |= EventRead
	case unix.EVFILT_WRITE:
		events |= EventWrite
	}
	if kev.Flags&unix.EV_ERROR != 0 {
		events |= EventError
	}
	if kev.Flags&unix.EV_EOF != 0 {
		events |= EventHangup
	}
	return events
}
