//go:build linux

package gofiber

import (
	"errors"

	"golang.org/x/sys/unix"
)

// maxFDs bounds the direct-indexed fd table.
const maxFDs = 65536

var (
	ErrFDOutOfRange        = errors.New(Namespace + ": fd out of range")
	ErrFDAlreadyRegistered = errors.New(Namespace + ": fd already registered")
	ErrFDNotRegistered     = errors.New(Namespace + ": fd not registered")
	ErrPollerClosed        = errors.New(Namespace + ": poller closed")
)

// fastPoller wraps epoll. Single-goroutine use only: see poller.go.
type fastPoller struct {
	epfd     int
	eventBuf [256]unix.EpollEvent
	fds      [maxFDs]fdWaiter
	active   [maxFDs]bool
	closed   bool
}

func (p *fastPoller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	return nil
}

func (p *fastPoller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

func (p *fastPoller) registerFD(fd int, events IOEvents, waiter fdWaiter) error {
	if p.closed {
		return ErrPollerClosed
	}
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	if p.active[fd] {
		return ErrFDAlreadyRegistered
	}
	p.fds[fd] = waiter
	p.active[fd] = true
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		p.active[fd] = false
		return err
	}
	return nil
}

func (p *fastPoller) unregisterFD(fd int) error {
	if fd < 0 || fd >= maxFDs {
		return ErrFDOutOfRange
	}
	if !p.active[fd] {
		return ErrFDNotRegistered
	}
	p.active[fd] = false
	p.fds[fd] = fdWaiter{}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// pollIO blocks for up to timeoutMs (negative = forever) and returns the
// fibers whose requested readiness fired, each paired with the events seen.
func (p *fastPoller) pollIO(timeoutMs int) ([]fdWaiter, []IOEvents, error) {
	if p.closed {
		return nil, nil, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	waiters := make([]fdWaiter, 0, n)
	events := make([]IOEvents, 0, n)
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= maxFDs || !p.active[fd] {
			continue
		}
		waiters = append(waiters, p.fds[fd])
		events = append(events, epollToEvents(p.eventBuf[i].Events))
	}
	return waiters, events, nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var e uint32
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(e uint32) IOEvents {
	var events IOEvents
	if e&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if e&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if e&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if e&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
