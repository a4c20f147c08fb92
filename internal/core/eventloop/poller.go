package eventloop

import (
	"time"
)

// Mask selects the readiness conditions of a file event.
type Mask uint8

const (
	// Readable fires when the descriptor has data or a pending accept.
	Readable Mask = 1 << iota
	// Writable fires when the descriptor accepts more output.
	Writable
	// Exception fires on out-of-band data.
	Exception
)

// None is the empty mask.
const None Mask = 0

// String returns a compact form such as "rw".
func (m Mask) String() string {
	if m == None {
		return "none"
	}
	b := make([]byte, 0, 3)
	if m&Readable != 0 {
		b = append(b, 'r')
	}
	if m&Writable != 0 {
		b = append(b, 'w')
	}
	if m&Exception != 0 {
		b = append(b, 'e')
	}
	return string(b)
}

// Ready is a readiness notification returned by a Poller.
type Ready struct {
	Fd   int
	Mask Mask
}

// Poller is the readiness multiplexer behind a Loop.
//
// Add registers a descriptor that has no interest yet, Modify replaces the
// interest of a registered one and Remove drops it. Wait blocks for at most
// timeout (forever when negative), fills events and returns how many were
// written. Implementations report error and hang-up conditions as readiness
// for every mask the descriptor is interested in.
type Poller interface {
	Add(fd int, mask Mask) error
	Modify(fd int, mask Mask) error
	Remove(fd int) error
	Wait(timeout time.Duration, events []Ready) (int, error)
	Close() error
}

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// timeoutMillis converts a wait bound to the millisecond form used by
// epoll_wait and poll. Sub-millisecond positive bounds round up so a near
// timer does not turn the wait into a busy loop.
func timeoutMillis(d time.Duration) int {
	if d < 0 {
		return -1
	}
	ms := d / time.Millisecond
	if d%time.Millisecond != 0 {
		ms++
	}
	const maxInt32 = 1<<31 - 1
	if ms > maxInt32 {
		ms = maxInt32
	}
	return int(ms)
}
