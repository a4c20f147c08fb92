//go:build unix && !linux

package eventloop

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// pollPoller multiplexes with poll(2). It keeps one pollfd per descriptor
// and rebuilds nothing between waits.
type pollPoller struct {
	fds   []unix.PollFd
	index map[int]int
}

// NewPoller creates the platform default Poller (poll(2) outside linux).
func NewPoller(maxEvents int) (Poller, error) {
	return &pollPoller{index: make(map[int]int)}, nil
}

func toPoll(mask Mask) int16 {
	var ev int16
	if mask&Readable != 0 {
		ev |= unix.POLLIN
	}
	if mask&Writable != 0 {
		ev |= unix.POLLOUT
	}
	if mask&Exception != 0 {
		ev |= unix.POLLPRI
	}
	return ev
}

func (p *pollPoller) Add(fd int, mask Mask) error {
	if _, ok := p.index[fd]; ok {
		return errors.New("poll: descriptor already registered")
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: toPoll(mask)})
	return nil
}

func (p *pollPoller) Modify(fd int, mask Mask) error {
	i, ok := p.index[fd]
	if !ok {
		return errors.New("poll: descriptor not registered")
	}
	p.fds[i].Events = toPoll(mask)
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return errors.New("poll: descriptor not registered")
	}
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

func (p *pollPoller) Wait(timeout time.Duration, events []Ready) (int, error) {
	if len(p.fds) == 0 {
		// poll with no descriptors still honors the timeout.
		_, err := unix.Poll(nil, timeoutMillis(timeout))
		return 0, err
	}
	if _, err := unix.Poll(p.fds, timeoutMillis(timeout)); err != nil {
		return 0, err
	}
	n := 0
	for i := range p.fds {
		if n == len(events) {
			break
		}
		re := p.fds[i].Revents
		if re == 0 {
			continue
		}
		var m Mask
		if re&unix.POLLIN != 0 {
			m |= Readable
		}
		if re&unix.POLLOUT != 0 {
			m |= Writable
		}
		if re&unix.POLLPRI != 0 {
			m |= Exception
		}
		if re&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			m |= Readable | Writable
		}
		events[n] = Ready{Fd: int(p.fds[i].Fd), Mask: m}
		n++
	}
	return n, nil
}

func (p *pollPoller) Close() error {
	p.fds = nil
	p.index = nil
	return nil
}
