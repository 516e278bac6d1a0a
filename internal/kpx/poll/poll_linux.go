//go:build linux

package poll

import (
	"golang.org/x/sys/unix"
)

// EpollPoller manages readiness registration using epoll. The owning loop
// is the sole reader and writer of fds, so a plain map suffices and no
// locking is needed.
type EpollPoller struct {
	epfd     int
	closed   bool
	fds      map[int]fdInfo
	eventBuf [256]unix.EpollEvent
}

type fdInfo struct {
	callback Callback
	events   IOEvents
}

// NewEpollPoller creates and initializes an epoll instance.
func NewEpollPoller() (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &EpollPoller{epfd: epfd, fds: make(map[int]fdInfo)}, nil
}

func (p *EpollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

func (p *EpollPoller) RegisterFD(fd int, events IOEvents, cb Callback) error {
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.fds[fd] = fdInfo{callback: cb, events: events}
	return nil
}

func (p *EpollPoller) ModifyFD(fd int, events IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	info, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	info.events = events
	p.fds[fd] = info
	return nil
}

func (p *EpollPoller) UnregisterFD(fd int) error {
	if _, ok := p.fds[fd]; !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	if p.closed {
		return nil
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *EpollPoller) PollIO(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	p.dispatch(n)
	return n, nil
}

func (p *EpollPoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		info, ok := p.fds[fd]
		if !ok || info.callback == nil {
			continue
		}
		info.callback(epollToEvents(p.eventBuf[i].Events))
	}
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

// New returns the platform-native poller.
func New() (Poller, error) {
	return NewEpollPoller()
}
