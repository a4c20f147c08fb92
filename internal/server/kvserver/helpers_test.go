package kvserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/redcon"
	"golang.org/x/sys/unix"

	"github.com/yndnr/emberkv/internal/core/eventloop"
	"github.com/yndnr/emberkv/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Bind = "127.0.0.1"
	cfg.Port = 0
	cfg.Databases = 4
	return cfg
}

func newTestServer(t *testing.T, cfg Config, opts ...Option) *Server {
	t.Helper()
	s, err := New(cfg, append([]Option{WithLogger(discardLogger())}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newClockedServer(t *testing.T, cfg Config, opts ...Option) (*Server, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts = append(opts, WithLoopOptions(eventloop.WithClock(clock)))
	return newTestServer(t, cfg, opts...), clock
}

// peer is the remote end of a client connection.
type peer struct {
	t    *testing.T
	s    *Server
	c    *Client
	conn net.Conn
	buf  []byte
}

// socketpair returns two connected, non-blocking-capable descriptors.
func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair() error = %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("SetNonblock() error = %v", err)
	}
	return fds[0], fds[1]
}

func fileConn(t *testing.T, fd int) net.Conn {
	t.Helper()
	f := os.NewFile(uintptr(fd), "peer")
	conn, err := net.FileConn(f)
	_ = f.Close()
	if err != nil {
		t.Fatalf("FileConn() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func connect(t *testing.T, s *Server) *peer {
	t.Helper()
	local, remote := socketpair(t)
	c, err := s.createClient(local, "pipe")
	if err != nil {
		t.Fatalf("createClient() error = %v", err)
	}
	return &peer{t: t, s: s, c: c, conn: fileConn(t, remote)}
}

func (p *peer) send(req string) {
	p.t.Helper()
	if _, err := p.conn.Write([]byte(req)); err != nil {
		p.t.Fatalf("Write(%q) error = %v", req, err)
	}
}

// step runs one loop iteration and moves whatever the server wrote into
// the peer buffer. It reports false once the server closed the connection.
func (p *peer) step() bool {
	p.t.Helper()
	if err := p.s.loop.ProcessEvents(5 * time.Millisecond); err != nil {
		p.t.Fatalf("ProcessEvents() error = %v", err)
	}
	_ = p.conn.SetReadDeadline(time.Now().Add(5 * time.Millisecond))
	tmp := make([]byte, 64<<10)
	n, err := p.conn.Read(tmp)
	p.buf = append(p.buf, tmp[:n]...)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return true
		}
		return false
	}
	return true
}

// reply returns the next complete reply.
func (p *peer) reply() string {
	p.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := redcon.ReadNextRESP(p.buf); n > 0 {
			out := string(p.buf[:n])
			p.buf = p.buf[n:]
			return out
		}
		if time.Now().After(deadline) {
			p.t.Fatalf("no reply, buffered %q", p.buf)
		}
		if !p.step() && len(p.buf) == 0 {
			p.t.Fatalf("connection closed while waiting for a reply")
		}
	}
}

func (p *peer) do(req string) string {
	p.t.Helper()
	p.send(req)
	return p.reply()
}

func (p *peer) expect(req, want string) {
	p.t.Helper()
	if got := p.do(req); got != want {
		p.t.Errorf("reply to %q = %q, want %q", req, got, want)
	}
}

// expectClosed steps the loop until the server closes the connection.
func (p *peer) expectClosed() {
	p.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.step() {
		if time.Now().After(deadline) {
			p.t.Fatalf("connection still open, buffered %q", p.buf)
		}
	}
}

// stepN runs n loop iterations without reading.
func stepN(t *testing.T, s *Server, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.loop.ProcessEvents(time.Millisecond); err != nil {
			t.Fatalf("ProcessEvents() error = %v", err)
		}
	}
}

// memPersister keeps snapshots in memory.
type memPersister struct {
	mu      sync.Mutex
	saves   []*storage.Snapshot
	saveErr error
	gate    chan struct{}
	records []record
	loadErr error
}

type record struct {
	db         int
	key, value string
}

func (m *memPersister) Save(_ context.Context, snap *storage.Snapshot) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves = append(m.saves, snap)
	return nil
}

func (m *memPersister) Load(_ context.Context, fn storage.LoadFunc) error {
	if m.loadErr != nil {
		return m.loadErr
	}
	for _, r := range m.records {
		if err := fn(r.db, []byte(r.key), []byte(r.value)); err != nil {
			return err
		}
	}
	return nil
}

func (m *memPersister) Close() error { return nil }

func (m *memPersister) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saves)
}

func (m *memPersister) last() *storage.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saves) == 0 {
		return nil
	}
	return m.saves[len(m.saves)-1]
}
