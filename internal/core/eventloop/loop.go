package eventloop

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"github.com/google/btree"
)

// DefaultMaxEvents is the number of readiness notifications collected per
// wait.
const DefaultMaxEvents = 1024

var (
	// ErrPoll wraps a fatal error returned by the Poller.
	ErrPoll = errors.New("eventloop: poller failed")
	// ErrClosed is returned when registering on a closed loop.
	ErrClosed = errors.New("eventloop: loop closed")
	// ErrInvalidMask is returned for a file event without a mask.
	ErrInvalidMask = errors.New("eventloop: empty event mask")
)

// FileProc handles readiness of fd. mask holds the registration's mask.
type FileProc func(l *Loop, fd int, data any, mask Mask)

// TimeProc handles an expired timer.
type TimeProc func(l *Loop, id int64, data any)

// Finalizer runs when an event is discarded, with the event's client data.
type Finalizer func(l *Loop, data any)

type fileEvent struct {
	mask      Mask
	proc      FileProc
	finalizer Finalizer
	data      any
}

type timeEvent struct {
	id        int64
	when      time.Time
	proc      TimeProc
	finalizer Finalizer
	data      any
}

func timerLess(a, b *timeEvent) bool {
	if !a.when.Equal(b.when) {
		return a.when.Before(b.when)
	}
	return a.id < b.id
}

// Option configures a Loop.
type Option func(*Loop)

// WithPoller replaces the platform Poller.
func WithPoller(p Poller) Option {
	return func(l *Loop) { l.poller = p }
}

// WithClock replaces the wall clock used for timer deadlines.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// WithMaxEvents sets how many notifications one wait may return.
func WithMaxEvents(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxEvents = n
		}
	}
}

// WithIterationHook registers fn to be called with the duration of every
// processed iteration, excluding the time spent waiting.
func WithIterationHook(fn func(time.Duration)) Option {
	return func(l *Loop) { l.onIteration = fn }
}

// Loop is a single-threaded event loop.
type Loop struct {
	poller    Poller
	clock     Clock
	logger    *slog.Logger
	maxEvents int

	files    map[int][]*fileEvent
	interest map[int]Mask
	ready    []Ready

	timers   *btree.BTreeG[*timeEvent]
	timerIDs map[int64]*timeEvent
	nextID   int64
	due      *queue.Queue

	onIteration func(time.Duration)

	stop   bool
	closed bool
}

// New creates a Loop. Without WithPoller the platform Poller is used.
func New(opts ...Option) (*Loop, error) {
	l := &Loop{
		clock:     systemClock{},
		maxEvents: DefaultMaxEvents,
		files:     make(map[int][]*fileEvent),
		interest:  make(map[int]Mask),
		timers:    btree.NewG[*timeEvent](16, timerLess),
		timerIDs:  make(map[int64]*timeEvent),
		due:       queue.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.poller == nil {
		p, err := NewPoller(l.maxEvents)
		if err != nil {
			return nil, err
		}
		l.poller = p
	}
	l.ready = make([]Ready, l.maxEvents)
	return l, nil
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// CreateFileEvent registers proc for fd and mask. A registration already
// present for the same pair is replaced; its finalizer does not run.
func (l *Loop) CreateFileEvent(fd int, mask Mask, proc FileProc, finalizer Finalizer, data any) error {
	if l.closed {
		return ErrClosed
	}
	if mask == None {
		return ErrInvalidMask
	}

	old := l.interest[fd]
	want := old | mask
	if want != old {
		var err error
		if old == None {
			err = l.poller.Add(fd, want)
		} else {
			err = l.poller.Modify(fd, want)
		}
		if err != nil {
			return err
		}
		l.interest[fd] = want
	}

	fe := &fileEvent{mask: mask, proc: proc, finalizer: finalizer, data: data}
	evs := l.files[fd]
	for i, e := range evs {
		if e.mask == mask {
			evs[i] = fe
			return nil
		}
	}
	l.files[fd] = append(evs, fe)
	return nil
}

// DeleteFileEvent removes the registration for fd and mask and runs its
// finalizer. It is a no-op when no such registration exists.
func (l *Loop) DeleteFileEvent(fd int, mask Mask) {
	evs := l.files[fd]
	idx := -1
	for i, e := range evs {
		if e.mask == mask {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	fe := evs[idx]
	evs = append(evs[:idx], evs[idx+1:]...)
	if len(evs) == 0 {
		delete(l.files, fd)
	} else {
		l.files[fd] = evs
	}
	l.updateInterest(fd, evs)

	if fe.finalizer != nil {
		fe.finalizer(l, fe.data)
	}
}

// HasFileEvent reports whether fd has a registration for mask.
func (l *Loop) HasFileEvent(fd int, mask Mask) bool {
	return l.lookupFile(fd, mask) != nil
}

func (l *Loop) updateInterest(fd int, evs []*fileEvent) {
	var want Mask
	for _, e := range evs {
		want |= e.mask
	}
	old := l.interest[fd]
	if want == old {
		return
	}

	var err error
	if want == None {
		delete(l.interest, fd)
		err = l.poller.Remove(fd)
	} else {
		l.interest[fd] = want
		err = l.poller.Modify(fd, want)
	}
	if err != nil {
		// The descriptor may already be closed by its owner.
		l.logger.Debug("poller interest update failed",
			slog.Int("fd", fd),
			slog.String("mask", want.String()),
			slog.Any("error", err))
	}
}

func (l *Loop) lookupFile(fd int, mask Mask) *fileEvent {
	for _, e := range l.files[fd] {
		if e.mask == mask {
			return e
		}
	}
	return nil
}

// CreateTimer schedules proc to run once after delay and returns the
// timer id. Ids are unique and increase monotonically.
func (l *Loop) CreateTimer(delay time.Duration, proc TimeProc, finalizer Finalizer, data any) int64 {
	l.nextID++
	te := &timeEvent{
		id:        l.nextID,
		when:      l.clock.Now().Add(delay),
		proc:      proc,
		finalizer: finalizer,
		data:      data,
	}
	l.timers.ReplaceOrInsert(te)
	l.timerIDs[te.id] = te
	return te.id
}

// DeleteTimer cancels a pending timer and runs its finalizer. Unknown or
// already fired ids are ignored.
func (l *Loop) DeleteTimer(id int64) {
	te, ok := l.timerIDs[id]
	if !ok {
		return
	}
	l.removeTimer(te)
}

// PendingTimers returns the number of scheduled timers.
func (l *Loop) PendingTimers() int {
	return len(l.timerIDs)
}

func (l *Loop) removeTimer(te *timeEvent) {
	delete(l.timerIDs, te.id)
	l.timers.Delete(te)
	if te.finalizer != nil {
		te.finalizer(l, te.data)
	}
}

// ProcessEvents runs one iteration: wait for readiness, dispatch ready
// file events, then fire due timers.
//
// The wait is bounded by the nearest timer deadline and by bound; a
// negative bound means no bound of its own. With nothing registered and no
// bound it returns immediately. Interrupted waits are retried; any other
// Poller error is returned wrapped in ErrPoll.
func (l *Loop) ProcessEvents(bound time.Duration) error {
	if l.closed {
		return ErrClosed
	}
	if len(l.interest) == 0 && l.timers.Len() == 0 && bound < 0 {
		return nil
	}

	timeout := bound
	if next, ok := l.timers.Min(); ok {
		d := next.when.Sub(l.clock.Now())
		if d < 0 {
			d = 0
		}
		if timeout < 0 || d < timeout {
			timeout = d
		}
	}

	n, err := l.wait(timeout)
	if err != nil {
		return err
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		l.dispatchFile(l.ready[i])
	}
	l.processTimers()
	if l.onIteration != nil {
		l.onIteration(time.Since(start))
	}
	return nil
}

func (l *Loop) wait(timeout time.Duration) (int, error) {
	for {
		n, err := l.poller.Wait(timeout, l.ready)
		if err == nil {
			return n, nil
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return 0, fmt.Errorf("%w: %w", ErrPoll, err)
	}
}

// dispatchFile invokes every registration of r.Fd whose mask is ready,
// passing the readiness observed for that registration. The registration set is re-read before each callback since an earlier
// callback may have removed or replaced later ones.
func (l *Loop) dispatchFile(r Ready) {
	evs := l.files[r.Fd]
	if len(evs) == 0 {
		return
	}
	masks := make([]Mask, 0, len(evs))
	for _, e := range evs {
		if e.mask&r.Mask != 0 {
			masks = append(masks, e.mask)
		}
	}
	sort.Slice(masks, func(i, j int) bool { return masks[i] < masks[j] })

	for _, m := range masks {
		fe := l.lookupFile(r.Fd, m)
		if fe == nil {
			continue
		}
		fe.proc(l, r.Fd, fe.data, r.Mask&m)
	}
}

// processTimers fires every timer whose deadline is not after now, in
// (deadline, id) order. Timers created while the sweep runs wait for the
// next iteration even when already due.
func (l *Loop) processTimers() {
	if l.timers.Len() == 0 {
		return
	}
	now := l.clock.Now()
	maxID := l.nextID

	l.timers.Ascend(func(te *timeEvent) bool {
		if te.when.After(now) {
			return false
		}
		if te.id <= maxID {
			l.due.Add(te)
		}
		return true
	})

	for l.due.Length() > 0 {
		te := l.due.Remove().(*timeEvent)
		if _, ok := l.timerIDs[te.id]; !ok {
			// Cancelled by an earlier callback.
			continue
		}
		te.proc(l, te.id, te.data)
		if _, ok := l.timerIDs[te.id]; ok {
			l.removeTimer(te)
		}
	}
}

// Run processes events until Stop is called, nothing is left to wait for,
// or the Poller fails.
func (l *Loop) Run() error {
	l.stop = false
	for !l.stop {
		if len(l.interest) == 0 && l.timers.Len() == 0 {
			l.logger.Debug("event loop has nothing to wait for")
			return nil
		}
		if err := l.ProcessEvents(-1); err != nil {
			return err
		}
	}
	return nil
}

// Stop makes Run return after the current iteration.
func (l *Loop) Stop() {
	l.stop = true
}

// Stopped reports whether Stop has been called since Run started.
func (l *Loop) Stopped() bool {
	return l.stop
}

// Close discards every remaining event, running finalizers, and closes the
// Poller. File events are finalized in descriptor order, then timers in
// deadline order.
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}

	fds := make([]int, 0, len(l.files))
	for fd := range l.files {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	for _, fd := range fds {
		for len(l.files[fd]) > 0 {
			l.DeleteFileEvent(fd, l.files[fd][0].mask)
		}
	}

	for {
		te, ok := l.timers.Min()
		if !ok {
			break
		}
		l.removeTimer(te)
	}

	l.closed = true
	return l.poller.Close()
}
