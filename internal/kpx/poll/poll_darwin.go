//go:build darwin

package poll

import (
	"golang.org/x/sys/unix"
)

// KqueuePoller manages readiness registration using kqueue. Like the epoll
// variant it is single-threaded: no mutex, no dynamic-growth array, a plain
// map keyed by fd.
type KqueuePoller struct {
	kq       int
	closed   bool
	fds      map[int]fdInfo
	eventBuf [256]unix.Kevent_t
}

type fdInfo struct {
	callback Callback
	events   IOEvents
}

// NewKqueuePoller creates and initializes a kqueue instance.
func NewKqueuePoller() (*KqueuePoller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &KqueuePoller{kq: kq, fds: make(map[int]fdInfo)}, nil
}

func (p *KqueuePoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.kq)
}

func (p *KqueuePoller) RegisterFD(fd int, events IOEvents, cb Callback) error {
	if p.closed {
		return ErrPollerClosed
	}
	if _, ok := p.fds[fd]; ok {
		return ErrFDAlreadyRegistered
	}
	kevs := eventsToKevents(fd, events, unix.EV_ADD|unix.EV_ENABLE)
	if len(kevs) > 0 {
		if _, err := unix.Kevent(p.kq, kevs, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = fdInfo{callback: cb, events: events}
	return nil
}

func (p *KqueuePoller) ModifyFD(fd int, events IOEvents) error {
	if p.closed {
		return ErrPollerClosed
	}
	old, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	// Remove events no longer wanted, add newly wanted ones.
	if del := eventsToKevents(fd, old.events&^events, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	if add := eventsToKevents(fd, events&^old.events, unix.EV_ADD|unix.EV_ENABLE); len(add) > 0 {
		if _, err := unix.Kevent(p.kq, add, nil, nil); err != nil {
			return err
		}
	}
	p.fds[fd] = fdInfo{callback: old.callback, events: events}
	return nil
}

func (p *KqueuePoller) UnregisterFD(fd int) error {
	info, ok := p.fds[fd]
	if !ok {
		return ErrFDNotRegistered
	}
	delete(p.fds, fd)
	if p.closed {
		return nil
	}
	if del := eventsToKevents(fd, info.events, unix.EV_DELETE); len(del) > 0 {
		_, _ = unix.Kevent(p.kq, del, nil, nil)
	}
	return nil
}

func (p *KqueuePoller) PollIO(timeoutMs int) (int, error) {
	if p.closed {
		return 0, ErrPollerClosed
	}
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	p.dispatch(n)
	return n, nil
}

func (p *KqueuePoller) dispatch(n int) {
	for i := 0; i < n; i++ {
		ev := &p.eventBuf[i]
		fd := int(ev.Ident)
		info, ok := p.fds[fd]
		if !ok || info.callback == nil {
			continue
		}
		var events IOEvents
		switch ev.Filter {
		case unix.EVFILT_READ:
			events |= EventRead
		case unix.EVFILT_WRITE:
			events |= EventWrite
		}
		if ev.Flags&unix.EV_EOF != 0 {
			events |= EventHangup
		}
		if ev.Flags&unix.EV_ERROR != 0 {
			events |= EventError
		}
		info.callback(events)
	}
}

func eventsToKevents(fd int, events IOEvents, flags uint16) []unix.Kevent_t {
	var out []unix.Kevent_t
	if events&EventRead != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	}
	if events&EventWrite != 0 {
		out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return out
}

// New returns the platform-native poller.
func New() (Poller, error) {
	return NewKqueuePoller()
}
