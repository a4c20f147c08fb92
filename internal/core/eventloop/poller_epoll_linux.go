//go:build linux

package eventloop

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller is a level-triggered epoll multiplexer.
type epollPoller struct {
	epfd   int
	events []unix.EpollEvent
}

// NewPoller creates the platform default Poller (epoll on linux).
func NewPoller(maxEvents int) (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	return &epollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
	}, nil
}

func toEpoll(mask Mask) uint32 {
	var ev uint32
	if mask&Readable != 0 {
		ev |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		ev |= unix.EPOLLOUT
	}
	if mask&Exception != 0 {
		ev |= unix.EPOLLPRI
	}
	return ev
}

func (p *epollPoller) ctl(op, fd int, mask Mask) error {
	ev := unix.EpollEvent{Events: toEpoll(mask), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, op, fd, &ev)
}

func (p *epollPoller) Add(fd int, mask Mask) error {
	if err := p.ctl(unix.EPOLL_CTL_ADD, fd, mask); err != nil {
		return fmt.Errorf("epoll ctl add fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Modify(fd int, mask Mask) error {
	if err := p.ctl(unix.EPOLL_CTL_MOD, fd, mask); err != nil {
		return fmt.Errorf("epoll ctl mod fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, err)
	}
	return nil
}

func (p *epollPoller) Wait(timeout time.Duration, events []Ready) (int, error) {
	limit := len(events)
	if limit > len(p.events) {
		limit = len(p.events)
	}
	n, err := unix.EpollWait(p.epfd, p.events[:limit], timeoutMillis(timeout))
	if err != nil {
		// EINTR is returned unwrapped so the loop can retry it.
		return 0, err
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		var m Mask
		if ev.Events&unix.EPOLLIN != 0 {
			m |= Readable
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			m |= Writable
		}
		if ev.Events&unix.EPOLLPRI != 0 {
			m |= Exception
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			m |= Readable | Writable
		}
		events[i] = Ready{Fd: int(ev.Fd), Mask: m}
	}
	return n, nil
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
