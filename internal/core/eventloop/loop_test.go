package eventloop

import (
	"errors"
	"reflect"
	"syscall"
	"testing"
	"time"
)

// ============================================================
// Fakes
// ============================================================

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakePoller returns scripted readiness batches. Each Wait pops one batch
// (or one error) and records the timeout it was called with.
type fakePoller struct {
	interest map[int]Mask
	batches  [][]Ready
	errs     []error
	timeouts []time.Duration
	onWait   func(timeout time.Duration)
	closed   bool
}

func newFakePoller() *fakePoller {
	return &fakePoller{interest: make(map[int]Mask)}
}

func (p *fakePoller) Add(fd int, mask Mask) error {
	if _, ok := p.interest[fd]; ok {
		return errors.New("already added")
	}
	p.interest[fd] = mask
	return nil
}

func (p *fakePoller) Modify(fd int, mask Mask) error {
	if _, ok := p.interest[fd]; !ok {
		return errors.New("not added")
	}
	p.interest[fd] = mask
	return nil
}

func (p *fakePoller) Remove(fd int) error {
	delete(p.interest, fd)
	return nil
}

func (p *fakePoller) Wait(timeout time.Duration, events []Ready) (int, error) {
	p.timeouts = append(p.timeouts, timeout)
	if p.onWait != nil {
		p.onWait(timeout)
	}
	if len(p.errs) > 0 {
		err := p.errs[0]
		p.errs = p.errs[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(p.batches) == 0 {
		return 0, nil
	}
	batch := p.batches[0]
	p.batches = p.batches[1:]
	return copy(events, batch), nil
}

func (p *fakePoller) Close() error {
	p.closed = true
	return nil
}

func newTestLoop(t *testing.T) (*Loop, *fakePoller, *fakeClock) {
	t.Helper()
	p := newFakePoller()
	c := newFakeClock()
	l, err := New(WithPoller(p), WithClock(c), WithMaxEvents(16))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, p, c
}

// ============================================================
// File events
// ============================================================

func TestCreateFileEvent_InterestIsUnion(t *testing.T) {
	l, p, _ := newTestLoop(t)
	noop := func(*Loop, int, any, Mask) {}

	if err := l.CreateFileEvent(5, Readable, noop, nil, nil); err != nil {
		t.Fatalf("CreateFileEvent(r) error = %v", err)
	}
	if err := l.CreateFileEvent(5, Writable, noop, nil, nil); err != nil {
		t.Fatalf("CreateFileEvent(w) error = %v", err)
	}
	if p.interest[5] != Readable|Writable {
		t.Errorf("interest = %v, want rw", p.interest[5])
	}

	l.DeleteFileEvent(5, Writable)
	if p.interest[5] != Readable {
		t.Errorf("interest after delete = %v, want r", p.interest[5])
	}

	l.DeleteFileEvent(5, Readable)
	if _, ok := p.interest[5]; ok {
		t.Error("fd still registered with poller after last delete")
	}
}

func TestCreateFileEvent_EmptyMask(t *testing.T) {
	l, _, _ := newTestLoop(t)
	err := l.CreateFileEvent(1, None, func(*Loop, int, any, Mask) {}, nil, nil)
	if !errors.Is(err, ErrInvalidMask) {
		t.Errorf("CreateFileEvent(None) error = %v, want ErrInvalidMask", err)
	}
}

func TestCreateFileEvent_ReplaceSkipsFinalizer(t *testing.T) {
	l, p, _ := newTestLoop(t)
	var finalized []any
	fin := func(_ *Loop, data any) { finalized = append(finalized, data) }

	var got []string
	_ = l.CreateFileEvent(3, Readable, func(*Loop, int, any, Mask) { got = append(got, "old") }, fin, "old")
	_ = l.CreateFileEvent(3, Readable, func(*Loop, int, any, Mask) { got = append(got, "new") }, fin, "new")

	if len(finalized) != 0 {
		t.Errorf("finalizers ran on replacement: %v", finalized)
	}

	p.batches = [][]Ready{{{Fd: 3, Mask: Readable}}}
	if err := l.ProcessEvents(0); err != nil {
		t.Fatalf("ProcessEvents() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"new"}) {
		t.Errorf("dispatched = %v, want [new]", got)
	}

	l.DeleteFileEvent(3, Readable)
	if !reflect.DeepEqual(finalized, []any{"new"}) {
		t.Errorf("finalized = %v, want [new]", finalized)
	}
}

func TestDeleteFileEvent_Absent(t *testing.T) {
	l, _, _ := newTestLoop(t)
	// Must not panic.
	l.DeleteFileEvent(42, Readable)
}

func TestDispatch_OnlyReadyMasks(t *testing.T) {
	l, p, _ := newTestLoop(t)
	var got []Mask
	proc := func(_ *Loop, _ int, _ any, m Mask) { got = append(got, m) }
	_ = l.CreateFileEvent(7, Readable, proc, nil, nil)
	_ = l.CreateFileEvent(7, Writable, proc, nil, nil)

	p.batches = [][]Ready{
		{{Fd: 7, Mask: Writable}},
		{{Fd: 7, Mask: Readable | Writable}},
	}
	_ = l.ProcessEvents(0)
	_ = l.ProcessEvents(0)

	want := []Mask{Writable, Readable, Writable}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dispatched = %v, want %v", got, want)
	}
}

func TestDispatch_PassesObservedMask(t *testing.T) {
	l, p, _ := newTestLoop(t)
	var got []Mask
	proc := func(_ *Loop, _ int, _ any, m Mask) { got = append(got, m) }
	_ = l.CreateFileEvent(4, Readable|Writable, proc, nil, nil)

	p.batches = [][]Ready{
		{{Fd: 4, Mask: Readable}},
		{{Fd: 4, Mask: Writable}},
		{{Fd: 4, Mask: Readable | Writable}},
	}
	for i := 0; i < 3; i++ {
		_ = l.ProcessEvents(0)
	}

	want := []Mask{Readable, Writable, Readable | Writable}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("dispatched = %v, want %v", got, want)
	}
}

func TestDispatch_CallbackRemovesLaterRegistration(t *testing.T) {
	l, p, _ := newTestLoop(t)
	var got []string
	_ = l.CreateFileEvent(9, Readable, func(l *Loop, fd int, _ any, _ Mask) {
		got = append(got, "read")
		l.DeleteFileEvent(fd, Writable)
	}, nil, nil)
	_ = l.CreateFileEvent(9, Writable, func(*Loop, int, any, Mask) {
		got = append(got, "write")
	}, nil, nil)

	p.batches = [][]Ready{{{Fd: 9, Mask: Readable | Writable}}}
	_ = l.ProcessEvents(0)

	if !reflect.DeepEqual(got, []string{"read"}) {
		t.Errorf("dispatched = %v, want [read]", got)
	}
}

func TestDispatch_CallbackRemovesOtherDescriptor(t *testing.T) {
	l, p, _ := newTestLoop(t)
	var got []int
	proc := func(l *Loop, fd int, _ any, _ Mask) {
		got = append(got, fd)
		if fd == 1 {
			l.DeleteFileEvent(2, Readable)
		}
	}
	_ = l.CreateFileEvent(1, Readable, proc, nil, nil)
	_ = l.CreateFileEvent(2, Readable, proc, nil, nil)

	p.batches = [][]Ready{{{Fd: 1, Mask: Readable}, {Fd: 2, Mask: Readable}}}
	_ = l.ProcessEvents(0)

	if !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("dispatched = %v, want [1]", got)
	}
}

// ============================================================
// Timers
// ============================================================

func TestTimers_FireInDeadlineOrder(t *testing.T) {
	l, _, c := newTestLoop(t)
	var got []string
	add := func(name string, d time.Duration) {
		l.CreateTimer(d, func(*Loop, int64, any) { got = append(got, name) }, nil, nil)
	}
	add("c", 30*time.Millisecond)
	add("a", 10*time.Millisecond)
	add("b", 20*time.Millisecond)

	c.Advance(50 * time.Millisecond)
	_ = l.ProcessEvents(0)

	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("fire order = %v, want [a b c]", got)
	}
	if l.PendingTimers() != 0 {
		t.Errorf("PendingTimers() = %d, want 0", l.PendingTimers())
	}
}

func TestTimers_EqualDeadlinesAreFIFO(t *testing.T) {
	l, _, c := newTestLoop(t)
	var got []int64
	proc := func(_ *Loop, id int64, _ any) { got = append(got, id) }
	ids := []int64{
		l.CreateTimer(time.Second, proc, nil, nil),
		l.CreateTimer(time.Second, proc, nil, nil),
		l.CreateTimer(time.Second, proc, nil, nil),
	}

	c.Advance(time.Second)
	_ = l.ProcessEvents(0)

	if !reflect.DeepEqual(got, ids) {
		t.Errorf("fire order = %v, want %v", got, ids)
	}
}

func TestTimers_NotBeforeDeadline(t *testing.T) {
	l, _, c := newTestLoop(t)
	fired := false
	l.CreateTimer(100*time.Millisecond, func(*Loop, int64, any) { fired = true }, nil, nil)

	c.Advance(99 * time.Millisecond)
	_ = l.ProcessEvents(0)
	if fired {
		t.Fatal("timer fired before its deadline")
	}

	c.Advance(time.Millisecond)
	_ = l.ProcessEvents(0)
	if !fired {
		t.Error("timer did not fire at its deadline")
	}
}

func TestTimers_RescheduleNotRefiredInSameSweep(t *testing.T) {
	l, _, c := newTestLoop(t)
	count := 0
	var tick TimeProc
	tick = func(l *Loop, _ int64, _ any) {
		count++
		l.CreateTimer(0, tick, nil, nil)
	}
	l.CreateTimer(0, tick, nil, nil)

	_ = l.ProcessEvents(0)
	if count != 1 {
		t.Fatalf("fired %d times in first sweep, want 1", count)
	}

	c.Advance(time.Millisecond)
	_ = l.ProcessEvents(0)
	if count != 2 {
		t.Errorf("fired %d times after second sweep, want 2", count)
	}
	if l.PendingTimers() != 1 {
		t.Errorf("PendingTimers() = %d, want 1", l.PendingTimers())
	}
}

func TestTimers_FireThenFinalize(t *testing.T) {
	l, _, _ := newTestLoop(t)
	var got []string
	l.CreateTimer(0,
		func(*Loop, int64, any) { got = append(got, "fire") },
		func(_ *Loop, data any) { got = append(got, "finalize:"+data.(string)) },
		"x")

	_ = l.ProcessEvents(0)
	if !reflect.DeepEqual(got, []string{"fire", "finalize:x"}) {
		t.Errorf("sequence = %v, want [fire finalize:x]", got)
	}
}

func TestTimers_DeleteFromEarlierCallback(t *testing.T) {
	l, _, c := newTestLoop(t)
	var got []string
	var second int64
	l.CreateTimer(time.Millisecond, func(l *Loop, _ int64, _ any) {
		got = append(got, "first")
		l.DeleteTimer(second)
	}, nil, nil)
	second = l.CreateTimer(2*time.Millisecond, func(*Loop, int64, any) {
		got = append(got, "second")
	}, func(*Loop, any) { got = append(got, "second-finalized") }, nil)

	c.Advance(time.Second)
	_ = l.ProcessEvents(0)

	want := []string{"first", "second-finalized"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sequence = %v, want %v", got, want)
	}
}

func TestDeleteTimer(t *testing.T) {
	l, _, c := newTestLoop(t)
	fired, finalized := false, false
	id := l.CreateTimer(time.Millisecond,
		func(*Loop, int64, any) { fired = true },
		func(*Loop, any) { finalized = true }, nil)

	l.DeleteTimer(id)
	l.DeleteTimer(id)
	l.DeleteTimer(12345)

	c.Advance(time.Second)
	_ = l.ProcessEvents(0)
	if fired {
		t.Error("deleted timer fired")
	}
	if !finalized {
		t.Error("deleted timer finalizer did not run")
	}
}

func TestTimers_IDsIncrease(t *testing.T) {
	l, _, _ := newTestLoop(t)
	var last int64
	for i := 0; i < 10; i++ {
		id := l.CreateTimer(time.Hour, func(*Loop, int64, any) {}, nil, nil)
		if id <= last {
			t.Fatalf("id %d not greater than previous %d", id, last)
		}
		last = id
	}
}

// ============================================================
// Wait bound
// ============================================================

func TestProcessEvents_WaitBoundedByNearestTimer(t *testing.T) {
	l, p, _ := newTestLoop(t)
	_ = l.CreateFileEvent(1, Readable, func(*Loop, int, any, Mask) {}, nil, nil)
	l.CreateTimer(250*time.Millisecond, func(*Loop, int64, any) {}, nil, nil)

	_ = l.ProcessEvents(-1)
	_ = l.ProcessEvents(100 * time.Millisecond)

	want := []time.Duration{250 * time.Millisecond, 100 * time.Millisecond}
	if !reflect.DeepEqual(p.timeouts, want) {
		t.Errorf("timeouts = %v, want %v", p.timeouts, want)
	}
}

func TestProcessEvents_PastDeadlineZeroWait(t *testing.T) {
	l, p, c := newTestLoop(t)
	l.CreateTimer(time.Millisecond, func(*Loop, int64, any) {}, nil, nil)
	c.Advance(time.Second)

	_ = l.ProcessEvents(-1)
	if len(p.timeouts) != 1 || p.timeouts[0] != 0 {
		t.Errorf("timeouts = %v, want [0]", p.timeouts)
	}
}

func TestProcessEvents_NothingRegistered(t *testing.T) {
	l, p, _ := newTestLoop(t)
	if err := l.ProcessEvents(-1); err != nil {
		t.Fatalf("ProcessEvents() error = %v", err)
	}
	if len(p.timeouts) != 0 {
		t.Errorf("poller waited %d times, want 0", len(p.timeouts))
	}
}

// ============================================================
// Errors
// ============================================================

func TestProcessEvents_RetriesEINTR(t *testing.T) {
	l, p, _ := newTestLoop(t)
	called := false
	_ = l.CreateFileEvent(4, Readable, func(*Loop, int, any, Mask) { called = true }, nil, nil)

	p.errs = []error{syscall.EINTR, syscall.EINTR}
	p.batches = [][]Ready{{{Fd: 4, Mask: Readable}}}

	if err := l.ProcessEvents(-1); err != nil {
		t.Fatalf("ProcessEvents() error = %v", err)
	}
	if !called {
		t.Error("callback not invoked after interrupted waits")
	}
	if len(p.timeouts) != 3 {
		t.Errorf("wait calls = %d, want 3", len(p.timeouts))
	}
}

func TestProcessEvents_FatalPollerError(t *testing.T) {
	l, p, _ := newTestLoop(t)
	_ = l.CreateFileEvent(4, Readable, func(*Loop, int, any, Mask) {}, nil, nil)
	p.errs = []error{syscall.EBADF}

	err := l.ProcessEvents(-1)
	if !errors.Is(err, ErrPoll) {
		t.Fatalf("ProcessEvents() error = %v, want ErrPoll", err)
	}
	if !errors.Is(err, syscall.EBADF) {
		t.Errorf("ProcessEvents() error = %v, want wrapped EBADF", err)
	}
}

func TestRun_ReturnsFatalError(t *testing.T) {
	l, p, _ := newTestLoop(t)
	_ = l.CreateFileEvent(4, Readable, func(*Loop, int, any, Mask) {}, nil, nil)
	p.errs = []error{nil, syscall.ENOMEM}

	if err := l.Run(); !errors.Is(err, ErrPoll) {
		t.Errorf("Run() error = %v, want ErrPoll", err)
	}
}

// ============================================================
// Run / Stop / Close
// ============================================================

func TestRun_StopFromCallback(t *testing.T) {
	l, _, c := newTestLoop(t)
	ticks := 0
	var tick TimeProc
	tick = func(l *Loop, _ int64, _ any) {
		ticks++
		if ticks == 3 {
			l.Stop()
			return
		}
		l.CreateTimer(10*time.Millisecond, tick, nil, nil)
	}
	l.CreateTimer(0, tick, nil, nil)

	// Each wait advances the fake clock by the requested timeout.
	l.poller.(*fakePoller).onWait = func(d time.Duration) {
		if d > 0 {
			c.Advance(d)
		}
	}

	if err := l.Run(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ticks != 3 {
		t.Errorf("ticks = %d, want 3", ticks)
	}
	if !l.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestClose_FinalizesEverything(t *testing.T) {
	l, p, _ := newTestLoop(t)
	var got []any
	fin := func(_ *Loop, data any) { got = append(got, data) }
	noopFile := func(*Loop, int, any, Mask) {}

	_ = l.CreateFileEvent(2, Readable, noopFile, fin, "fd2r")
	_ = l.CreateFileEvent(1, Readable, noopFile, fin, "fd1r")
	_ = l.CreateFileEvent(1, Writable, noopFile, fin, "fd1w")
	l.CreateTimer(time.Hour, func(*Loop, int64, any) {}, fin, "timer")

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	want := []any{"fd1r", "fd1w", "fd2r", "timer"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("finalized = %v, want %v", got, want)
	}
	if !p.closed {
		t.Error("poller not closed")
	}
	if err := l.CreateFileEvent(1, Readable, noopFile, nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateFileEvent() after Close error = %v, want ErrClosed", err)
	}
}

func TestMask_String(t *testing.T) {
	tests := []struct {
		m    Mask
		want string
	}{
		{None, "none"},
		{Readable, "r"},
		{Readable | Writable, "rw"},
		{Readable | Writable | Exception, "rwe"},
	}
	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Mask(%d).String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}

func TestTimeoutMillis(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{-1, -1},
		{0, 0},
		{time.Microsecond, 1},
		{time.Millisecond, 1},
		{1500 * time.Microsecond, 2},
		{time.Second, 1000},
	}
	for _, tt := range tests {
		if got := timeoutMillis(tt.d); got != tt.want {
			t.Errorf("timeoutMillis(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
